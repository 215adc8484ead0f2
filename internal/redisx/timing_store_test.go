package redisx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "timing:order:o-17", TimingRecordKey("o-17"))
	assert.Equal(t, "dedup:order-timing:ev1", DedupKey("order-timing", "ev1"))
	assert.Equal(t, "timing:parked:o-17", ParkedKey("o-17"))
}

func TestDecodeRecord(t *testing.T) {
	r, err := decodeRecord(`{"order_id":"o1","item_count":2,"queue_position":1,"base_estimate_minutes":11,` +
		`"status":"confirmed","enqueued_at":"2026-03-01T12:00:00Z","status_updated_at":"2026-03-01T12:03:00Z"}`)
	require.NoError(t, err)

	assert.Equal(t, "o1", r.OrderID)
	assert.Equal(t, 2, r.ItemCount)
	assert.Equal(t, 1, r.QueuePosition)
	assert.Equal(t, 11, r.BaseEstimateMinutes)
	assert.Equal(t, timing.StatusConfirmed, r.Status)
	assert.Equal(t, 3*time.Minute, r.StatusUpdatedAt.Sub(r.EnqueuedAt))

	_, err = decodeRecord(`{"order_id":`)
	assert.Error(t, err)
}
