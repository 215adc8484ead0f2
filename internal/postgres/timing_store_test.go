package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

func TestUpsertArgs(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	at := time.Date(2026, 3, 1, 19, 0, 0, 0, loc)
	args := upsertArgs(timing.Record{
		OrderID: "o1", ItemCount: 3, QueuePosition: 2, BaseEstimateMinutes: 14,
		Status: timing.StatusPreparing, EnqueuedAt: at, StatusUpdatedAt: at.Add(time.Minute),
	})

	assert.Len(t, args, 7)
	assert.Equal(t, "o1", args[0])
	assert.Equal(t, "preparing", args[4])
	assert.Equal(t, time.UTC, args[5].(time.Time).Location())
	assert.True(t, at.Equal(args[5].(time.Time)))
}
