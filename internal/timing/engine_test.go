package timing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyStore fails every call while fail is set.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	fail     bool
	saveAlls int
}

var errDown = errors.New("store down")

func (s *flakyStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *flakyStore) down() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *flakyStore) Load(ctx context.Context) ([]Record, error) {
	if s.down() {
		return nil, errDown
	}
	return s.MemoryStore.Load(ctx)
}

func (s *flakyStore) Save(ctx context.Context, rec Record) error {
	if s.down() {
		return errDown
	}
	return s.MemoryStore.Save(ctx, rec)
}

func (s *flakyStore) SaveAll(ctx context.Context, recs []Record) error {
	if s.down() {
		return errDown
	}
	s.mu.Lock()
	s.saveAlls++
	s.mu.Unlock()
	return s.MemoryStore.SaveAll(ctx, recs)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if s.down() {
		return errDown
	}
	return s.MemoryStore.Delete(ctx, id)
}

func flatConfig() Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeFlat
	cfg.PerItemMinutes = 3
	cfg.PerPositionMinutes = 5
	cfg.FloorMinutes = 5
	return cfg
}

func newEngine(t *testing.T, cfg Config, seed ...Record) (*Engine, *flakyStore, *clock) {
	t.Helper()
	st := &flakyStore{MemoryStore: NewMemoryStore(seed...)}
	clk := newClock()
	e, err := New(st, cfg, WithClock(clk.Now))
	require.NoError(t, err)
	return e, st, clk
}

func positions(e *Engine) map[string]int {
	out := map[string]int{}
	for _, est := range e.ListActiveOrders() {
		out[est.OrderID] = est.QueuePosition
	}
	return out
}

func TestEnqueue_FIFOPositions(t *testing.T) {
	e, _, clk := newEngine(t, flatConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec, err := e.Enqueue(ctx, fmt.Sprintf("o%d", i), 1+i)
		require.NoError(t, err)
		assert.Equal(t, i, rec.QueuePosition)
		assert.Equal(t, StatusPending, rec.Status)
		clk.Advance(time.Second)
	}

	list := e.ListActiveOrders()
	require.Len(t, list, 5)
	for i, est := range list {
		assert.Equal(t, fmt.Sprintf("o%d", i), est.OrderID)
		assert.Equal(t, i, est.QueuePosition)
	}
}

func TestEnqueue_FlatEstimate(t *testing.T) {
	e, _, _ := newEngine(t, flatConfig())
	ctx := context.Background()

	a, err := e.Enqueue(ctx, "a", 4)
	require.NoError(t, err)
	assert.Equal(t, 12, a.BaseEstimateMinutes)

	b, err := e.Enqueue(ctx, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, 3*2+5*1, b.BaseEstimateMinutes)
}

func TestEnqueue_QueueModeWaitsForTail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerItemMinutes = 3
	e, _, clk := newEngine(t, cfg)
	ctx := context.Background()

	a, err := e.Enqueue(ctx, "a", 4)
	require.NoError(t, err)
	assert.Equal(t, 12, a.BaseEstimateMinutes)

	b, err := e.Enqueue(ctx, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, 6+12, b.BaseEstimateMinutes)

	clk.Advance(10 * time.Minute)
	c, err := e.Enqueue(ctx, "c", 1)
	require.NoError(t, err)
	// b has 8 minutes left and is the last order ahead to finish.
	assert.Equal(t, 3+8, c.BaseEstimateMinutes)
}

func TestEnqueue_FloorEnforced(t *testing.T) {
	cfg := flatConfig()
	cfg.PerItemMinutes = 2
	cfg.FloorMinutes = 5
	e, _, _ := newEngine(t, cfg)

	rec, err := e.Enqueue(context.Background(), "tiny", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.QueuePosition)
	assert.Equal(t, 5, rec.BaseEstimateMinutes)
}

func TestEnqueue_InvalidInput(t *testing.T) {
	e, st, _ := newEngine(t, flatConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		id    string
		items int
	}{
		{"zero items", "a", 0},
		{"negative items", "a", -2},
		{"empty id", "", 1},
		{"padded id", " a ", 1},
		{"long id", string(make([]byte, maxOrderIDLen+1)), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Enqueue(ctx, tt.id, tt.items)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	recs, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestEnqueue_Idempotent(t *testing.T) {
	e, _, clk := newEngine(t, flatConfig())
	ctx := context.Background()

	first, created, err := e.EnqueueIdempotent(ctx, "a", 2)
	require.NoError(t, err)
	assert.True(t, created)
	clk.Advance(3 * time.Minute)

	again, created, err := e.EnqueueIdempotent(ctx, "a", 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)
	assert.Len(t, e.ListActiveOrders(), 1)

	_, err = e.Enqueue(ctx, "a", 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateStatus_RerankOnRemoval(t *testing.T) {
	e, st, _ := newEngine(t, flatConfig())
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		_, err := e.Enqueue(ctx, id, 1)
		require.NoError(t, err)
	}

	rec, err := e.UpdateStatus(ctx, "B", StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, rec.Status)

	assert.Equal(t, map[string]int{"A": 0, "C": 1}, positions(e))
	assert.Equal(t, 1, st.saveAlls)

	stored, ok := st.Get("C")
	require.True(t, ok)
	assert.Equal(t, 1, stored.QueuePosition)

	b, err := e.Get("B")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, b.Status)
}

func TestUpdateStatus_ReadyLeavesQueueButStaysActive(t *testing.T) {
	e, _, clk := newEngine(t, flatConfig())
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		_, err := e.Enqueue(ctx, id, 1)
		require.NoError(t, err)
	}

	for _, s := range []Status{StatusConfirmed, StatusPreparing, StatusReady} {
		clk.Advance(time.Minute)
		_, err := e.UpdateStatus(ctx, "B", s)
		require.NoError(t, err)
	}

	list := e.ListActiveOrders()
	require.Len(t, list, 3)
	assert.Equal(t, "A", list[0].OrderID)
	assert.Equal(t, "C", list[1].OrderID)
	assert.Equal(t, 1, list[1].QueuePosition)
	assert.Equal(t, "B", list[2].OrderID)
	assert.Equal(t, 0, list[2].RemainingMinutes)

	// Ready before an earlier order: A stays at the head.
	assert.Equal(t, 0, list[0].QueuePosition)
}

func TestUpdateStatus_NonQueueChangeKeepsPositions(t *testing.T) {
	e, st, _ := newEngine(t, flatConfig())
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		_, err := e.Enqueue(ctx, id, 1)
		require.NoError(t, err)
	}

	_, err := e.UpdateStatus(ctx, "A", StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, positions(e))
	assert.Zero(t, st.saveAlls)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	e, st, _ := newEngine(t, flatConfig())
	ctx := context.Background()
	_, err := e.Enqueue(ctx, "A", 1)
	require.NoError(t, err)

	_, err = e.UpdateStatus(ctx, "A", StatusDelivered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusPending, terr.From)
	assert.Equal(t, StatusDelivered, terr.To)

	stored, ok := st.Get("A")
	require.True(t, ok)
	assert.Equal(t, StatusPending, stored.Status)
	got, err := e.Get("A")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestUpdateStatus_TerminalIsFinal(t *testing.T) {
	e, _, _ := newEngine(t, flatConfig())
	ctx := context.Background()
	_, err := e.Enqueue(ctx, "A", 1)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, "A", StatusCancelled)
	require.NoError(t, err)

	_, err = e.UpdateStatus(ctx, "A", StatusPreparing)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestUpdateStatus_UnknownOrderAndStatus(t *testing.T) {
	e, _, _ := newEngine(t, flatConfig())
	ctx := context.Background()

	_, err := e.UpdateStatus(ctx, "ghost", StatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = e.Enqueue(ctx, "A", 1)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, "A", Status("Confirmed"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRemainingMinutes_Decay(t *testing.T) {
	cfg := flatConfig()
	cfg.PerItemMinutes = 10
	e, _, clk := newEngine(t, cfg)
	ctx := context.Background()

	rec, err := e.Enqueue(ctx, "A", 3)
	require.NoError(t, err)
	require.Equal(t, 30, rec.BaseEstimateMinutes)

	left, err := e.GetRemainingMinutes("A")
	require.NoError(t, err)
	assert.Equal(t, 30, left)

	clk.Advance(59 * time.Second)
	left, _ = e.GetRemainingMinutes("A")
	assert.Equal(t, 30, left)

	clk.Advance(11*time.Minute + time.Second)
	left, _ = e.GetRemainingMinutes("A")
	assert.Equal(t, 18, left)

	prev := left
	for i := 0; i < 40; i++ {
		clk.Advance(time.Minute)
		left, _ = e.GetRemainingMinutes("A")
		assert.LessOrEqual(t, left, prev)
		assert.GreaterOrEqual(t, left, 0)
		prev = left
	}
	assert.Equal(t, 0, left)
}

func TestRemainingMinutes_ReadyAndTerminalAreZero(t *testing.T) {
	e, _, _ := newEngine(t, flatConfig())
	ctx := context.Background()

	paths := map[string][]Status{
		"ready":     {StatusConfirmed, StatusPreparing, StatusReady},
		"delivered": {StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered},
		"completed": {StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted},
		"cancelled": {StatusCancelled},
	}
	for id, steps := range paths {
		_, err := e.Enqueue(ctx, id, 20)
		require.NoError(t, err)
		for _, s := range steps {
			_, err := e.UpdateStatus(ctx, id, s)
			require.NoError(t, err)
		}
		left, err := e.GetRemainingMinutes(id)
		require.NoError(t, err)
		assert.Equal(t, 0, left, id)
	}

	_, err := e.GetRemainingMinutes("ghost")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestInitialize_ClosesGapsAndIsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	seed := []Record{
		{OrderID: "a", ItemCount: 1, QueuePosition: 0, BaseEstimateMinutes: 5, Status: StatusPreparing, EnqueuedAt: base},
		{OrderID: "b", ItemCount: 1, QueuePosition: 1, BaseEstimateMinutes: 8, Status: StatusDelivered, EnqueuedAt: base.Add(time.Minute)},
		{OrderID: "c", ItemCount: 2, QueuePosition: 2, BaseEstimateMinutes: 11, Status: StatusConfirmed, EnqueuedAt: base.Add(2 * time.Minute)},
		{OrderID: "d", ItemCount: 1, QueuePosition: 4, BaseEstimateMinutes: 14, Status: StatusPending, EnqueuedAt: base.Add(3 * time.Minute)},
		{OrderID: "r", ItemCount: 1, QueuePosition: 3, BaseEstimateMinutes: 9, Status: StatusReady, EnqueuedAt: base.Add(150 * time.Second)},
	}
	e, st, _ := newEngine(t, flatConfig(), seed...)
	ctx := context.Background()

	require.NoError(t, e.Initialize(ctx))
	first := positions(e)
	assert.Equal(t, 0, first["a"])
	assert.Equal(t, 1, first["c"])
	assert.Equal(t, 2, first["d"])
	assert.Contains(t, first, "r")
	assert.NotContains(t, first, "b")
	assert.Equal(t, 1, st.saveAlls)

	stored, _ := st.Get("d")
	assert.Equal(t, 2, stored.QueuePosition)

	require.NoError(t, e.Initialize(ctx))
	assert.Equal(t, first, positions(e))
	assert.Equal(t, 1, st.saveAlls, "no corrections on second pass")

	b, err := e.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, b.Status)
}

func TestInitialize_StoreDownStartsEmpty(t *testing.T) {
	seed := Record{OrderID: "a", ItemCount: 1, BaseEstimateMinutes: 5, Status: StatusPending, EnqueuedAt: time.Now()}
	e, st, _ := newEngine(t, flatConfig(), seed)
	st.setFail(true)

	err := e.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, errDown)
	assert.Empty(t, e.ListActiveOrders())

	st.setFail(false)
	rec, err := e.Enqueue(context.Background(), "b", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.QueuePosition)
}

func TestStoreFailureLeavesMemoryUnchanged(t *testing.T) {
	e, st, _ := newEngine(t, flatConfig())
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		_, err := e.Enqueue(ctx, id, 1)
		require.NoError(t, err)
	}
	before := e.ListActiveOrders()

	st.setFail(true)
	_, err := e.Enqueue(ctx, "D", 1)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = e.UpdateStatus(ctx, "A", StatusCancelled)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	assert.Equal(t, before, e.ListActiveOrders())
	_, err = e.Get("D")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	st.setFail(false)
	rec, err := e.Enqueue(ctx, "D", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.QueuePosition)
}

type blockingStore struct{ *MemoryStore }

func (blockingStore) Save(ctx context.Context, _ Record) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStoreTimeoutSurfacesAsUnavailable(t *testing.T) {
	cfg := flatConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	e, err := New(blockingStore{NewMemoryStore()}, cfg)
	require.NoError(t, err)

	_, err = e.Enqueue(context.Background(), "A", 1)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPurge(t *testing.T) {
	cfg := flatConfig()
	cfg.RetentionWindowMinutes = 60
	e, st, clk := newEngine(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"old", "fresh", "live"} {
		_, err := e.Enqueue(ctx, id, 1)
		require.NoError(t, err)
	}
	_, err := e.UpdateStatus(ctx, "old", StatusCancelled)
	require.NoError(t, err)
	clk.Advance(30 * time.Minute)
	_, err = e.UpdateStatus(ctx, "fresh", StatusCancelled)
	require.NoError(t, err)
	clk.Advance(31 * time.Minute)

	purged, err := e.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, purged)

	_, err = e.Get("old")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, ok := st.Get("old")
	assert.False(t, ok)

	_, err = e.Get("fresh")
	assert.NoError(t, err)
	_, err = e.Get("live")
	assert.NoError(t, err)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func TestNotifier(t *testing.T) {
	n := &recordingNotifier{}
	e, err := New(NewMemoryStore(), flatConfig(), WithNotifier(n))
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		_, err := e.Enqueue(ctx, id, 1)
		require.NoError(t, err)
	}
	_, err = e.Enqueue(ctx, "A", 1)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, "A", StatusCancelled)
	require.NoError(t, err)
	_, err = e.UpdateStatus(ctx, "A", StatusConfirmed)
	require.Error(t, err)

	require.Len(t, n.events, 4)
	last := n.events[3]
	assert.Equal(t, EventStatusChanged, last.Type)
	assert.Equal(t, StatusPending, last.Previous)
	require.Len(t, last.Reranked, 2)
	assert.Equal(t, "B", last.Reranked[0].OrderID)
	assert.Equal(t, 0, last.Reranked[0].QueuePosition)
}

func TestConcurrentCancellationsKeepContiguity(t *testing.T) {
	e, _, _ := newEngine(t, flatConfig())
	ctx := context.Background()
	const n = 50
	for i := 0; i < n; i++ {
		_, err := e.Enqueue(ctx, fmt.Sprintf("o%02d", i), 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i += 2 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.UpdateStatus(ctx, id, StatusCancelled)
			assert.NoError(t, err)
		}(fmt.Sprintf("o%02d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.ListActiveOrders()
		}()
	}
	wg.Wait()

	list := e.ListActiveOrders()
	require.Len(t, list, n/2)
	for i, est := range list {
		assert.Equal(t, i, est.QueuePosition)
		assert.Equal(t, fmt.Sprintf("o%02d", 2*i+1), est.OrderID)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FloorMinutes = 0
	_, err := New(NewMemoryStore(), cfg)
	assert.ErrorIs(t, err, ErrInvalidInput)

	cfg = DefaultConfig()
	cfg.Mode = "priority"
	_, err = New(NewMemoryStore(), cfg)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
