// Package timing tracks in-flight orders, ranks them in a FIFO preparation
// queue and quotes remaining preparation time for each of them.
package timing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-timing/internal/logger"
)

const maxOrderIDLen = 128

// Engine owns queue positions and remaining-time math. Mutations are
// serialised by mu and persisted before they are applied to memory, so a
// failed store call leaves the engine exactly as it was.
type Engine struct {
	store    Store
	cfg      Config
	now      func() time.Time
	log      *logger.Logger
	notifier Notifier

	mu    sync.RWMutex
	recs  map[string]Record
	queue []string // order ids; queue[i] has QueuePosition i
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New builds an engine with an empty queue. Call Initialize to load persisted
// records.
func New(store Store, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   logger.Nop(),
		recs:  map[string]Record{},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Initialize loads every persisted record, rebuilds the FIFO queue and closes
// position gaps left by orders that changed while the engine was down.
// Corrected positions are written back with one SaveAll. On failure the
// engine keeps its previous state (empty on first start) and stays usable.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sctx, cancel := e.storeCtx(ctx)
	loaded, err := e.store.Load(sctx)
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Msg("timing store unavailable, keeping current queue")
		return storageUnavailable("load", err)
	}

	recs := make(map[string]Record, len(loaded))
	var queued []Record
	for _, r := range loaded {
		if !r.Status.Valid() {
			e.log.Warn().Str("order_id", r.OrderID).Str("status", string(r.Status)).Msg("skipping record with unknown status")
			continue
		}
		recs[r.OrderID] = r
		if r.Status.Queued() {
			queued = append(queued, r)
		}
	}

	sort.Slice(queued, func(i, j int) bool {
		a, b := queued[i], queued[j]
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		if a.QueuePosition != b.QueuePosition {
			return a.QueuePosition < b.QueuePosition
		}
		return a.OrderID < b.OrderID
	})

	queue := make([]string, len(queued))
	var fixed []Record
	for i, r := range queued {
		queue[i] = r.OrderID
		if r.QueuePosition != i {
			r.QueuePosition = i
			recs[r.OrderID] = r
			fixed = append(fixed, r)
		}
	}

	if len(fixed) > 0 {
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.SaveAll(sctx, fixed)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Int("fixed", len(fixed)).Msg("persisting corrected queue positions failed")
			return storageUnavailable("save all", err)
		}
	}

	e.recs = recs
	e.queue = queue
	e.log.Info().Int("records", len(recs)).Int("queued", len(queue)).Int("repositioned", len(fixed)).Msg("timing engine initialized")
	return nil
}

// Enqueue appends a new pending order to the tail of the queue and quotes its
// base estimate. Re-enqueueing a known order with the same item count returns
// the stored record unchanged.
func (e *Engine) Enqueue(ctx context.Context, orderID string, itemCount int) (Record, error) {
	rec, _, err := e.EnqueueIdempotent(ctx, orderID, itemCount)
	return rec, err
}

// EnqueueIdempotent is Enqueue that also reports whether the order was newly
// tracked; false means an identical order was already present.
func (e *Engine) EnqueueIdempotent(ctx context.Context, orderID string, itemCount int) (Record, bool, error) {
	rec, created, err := e.enqueue(ctx, orderID, itemCount)
	if err == nil && created {
		e.notify(ctx, Event{Type: EventEnqueued, Record: rec, At: rec.EnqueuedAt})
	}
	return rec, created, err
}

func (e *Engine) enqueue(ctx context.Context, orderID string, itemCount int) (Record, bool, error) {
	if err := validateOrderID(orderID); err != nil {
		return Record{}, false, err
	}
	if itemCount <= 0 {
		return Record{}, false, invalidInput(orderID, "item count must be positive, got %d", itemCount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.recs[orderID]; ok {
		if cur.ItemCount != itemCount {
			return Record{}, false, invalidInput(orderID, "order %s already tracked with %d items", orderID, cur.ItemCount)
		}
		return cur, false, nil
	}

	now := e.now()
	pos := len(e.queue)
	rec := Record{
		OrderID:             orderID,
		ItemCount:           itemCount,
		QueuePosition:       pos,
		BaseEstimateMinutes: e.estimate(itemCount, pos, now),
		Status:              StatusPending,
		EnqueuedAt:          now,
		StatusUpdatedAt:     now,
	}

	sctx, cancel := e.storeCtx(ctx)
	err := e.store.Save(sctx, rec)
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Str("order_id", orderID).Msg("enqueue not persisted")
		return Record{}, false, storageUnavailable("save", err)
	}

	e.recs[orderID] = rec
	e.queue = append(e.queue, orderID)
	e.log.Debug().Str("order_id", orderID).Int("position", pos).Int("estimate_min", rec.BaseEstimateMinutes).Msg("order enqueued")
	return rec, true, nil
}

// estimate quotes the base minutes for an order entering at pos. Caller holds mu.
func (e *Engine) estimate(itemCount, pos int, now time.Time) int {
	minutes := e.cfg.PerItemMinutes * itemCount
	switch e.cfg.Mode {
	case ModeFlat:
		minutes += e.cfg.PerPositionMinutes * pos
	default:
		drain := 0
		for _, id := range e.queue[:pos] {
			if left := e.recs[id].RemainingAt(now); left > drain {
				drain = left
			}
		}
		minutes += drain
	}
	if minutes < e.cfg.FloorMinutes {
		return e.cfg.FloorMinutes
	}
	return minutes
}

// UpdateStatus applies a caller-driven transition. When the order leaves the
// queue every order behind it moves up one place; the order and all moved
// orders are persisted in a single SaveAll.
func (e *Engine) UpdateStatus(ctx context.Context, orderID string, to Status) (Record, error) {
	rec, ev, err := e.updateStatus(ctx, orderID, to)
	if err == nil {
		e.notify(ctx, ev)
	}
	return rec, err
}

func (e *Engine) updateStatus(ctx context.Context, orderID string, to Status) (Record, Event, error) {
	if !to.Valid() {
		return Record{}, Event{}, invalidInput(orderID, "unknown status %q", to)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.recs[orderID]
	if !ok {
		return Record{}, Event{}, &Error{Kind: KindOrderNotFound, OrderID: orderID}
	}
	if !CanTransition(cur.Status, to) {
		return Record{}, Event{}, &Error{Kind: KindInvalidStatusTransition, OrderID: orderID, From: cur.Status, To: to}
	}

	now := e.now()
	next := cur
	next.Status = to
	next.StatusUpdatedAt = now

	batch := []Record{next}
	queue := e.queue
	if idx := e.indexOf(orderID); idx >= 0 && !to.Queued() {
		queue = make([]string, 0, len(e.queue)-1)
		queue = append(queue, e.queue[:idx]...)
		queue = append(queue, e.queue[idx+1:]...)
		for i := idx; i < len(queue); i++ {
			r := e.recs[queue[i]]
			r.QueuePosition = i
			batch = append(batch, r)
		}
	}

	sctx, cancel := e.storeCtx(ctx)
	var err error
	if len(batch) == 1 {
		err = e.store.Save(sctx, next)
	} else {
		err = e.store.SaveAll(sctx, batch)
	}
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Str("order_id", orderID).Str("to", string(to)).Msg("status change not persisted")
		return Record{}, Event{}, storageUnavailable("save", err)
	}

	for _, r := range batch {
		e.recs[r.OrderID] = r
	}
	e.queue = queue

	ev := Event{Type: EventStatusChanged, Record: next, Previous: cur.Status, Reranked: batch[1:], At: now}
	e.log.Debug().Str("order_id", orderID).Str("from", string(cur.Status)).Str("to", string(to)).Int("reranked", len(ev.Reranked)).Msg("order status changed")
	return next, ev, nil
}

// indexOf finds an order in the queue. Caller holds mu.
func (e *Engine) indexOf(orderID string) int {
	if p := e.recs[orderID].QueuePosition; p >= 0 && p < len(e.queue) && e.queue[p] == orderID {
		return p
	}
	for i, id := range e.queue {
		if id == orderID {
			return i
		}
	}
	return -1
}

// GetRemainingMinutes returns the live countdown for one order. It never
// mutates state.
func (e *Engine) GetRemainingMinutes(orderID string) (int, error) {
	est, err := e.Get(orderID)
	if err != nil {
		return 0, err
	}
	return est.RemainingMinutes, nil
}

// Get returns any tracked record, terminal ones included, with its remaining
// minutes.
func (e *Engine) Get(orderID string) (Estimate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.recs[orderID]
	if !ok {
		return Estimate{}, &Error{Kind: KindOrderNotFound, OrderID: orderID}
	}
	return Estimate{Record: rec, RemainingMinutes: rec.RemainingAt(e.now())}, nil
}

// ListActiveOrders returns every non-terminal order: queued orders by queue
// position, followed by ready orders in the order they became ready.
func (e *Engine) ListActiveOrders() []Estimate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	out := make([]Estimate, 0, len(e.recs))
	for _, id := range e.queue {
		r := e.recs[id]
		out = append(out, Estimate{Record: r, RemainingMinutes: r.RemainingAt(now)})
	}

	var ready []Record
	for _, r := range e.recs {
		if r.Status == StatusReady {
			ready = append(ready, r)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].StatusUpdatedAt.Equal(ready[j].StatusUpdatedAt) {
			return ready[i].StatusUpdatedAt.Before(ready[j].StatusUpdatedAt)
		}
		return ready[i].OrderID < ready[j].OrderID
	})
	for _, r := range ready {
		out = append(out, Estimate{Record: r})
	}
	return out
}

// Purge deletes terminal records older than the retention window. Records are
// removed from memory one by one as their delete succeeds; on a store failure
// the ids purged so far are returned with the error.
func (e *Engine) Purge(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-e.cfg.retention())
	var due []string
	for id, r := range e.recs {
		if r.Status.Terminal() && !r.StatusUpdatedAt.After(cutoff) {
			due = append(due, id)
		}
	}
	sort.Strings(due)

	purged := make([]string, 0, len(due))
	for _, id := range due {
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.Delete(sctx, id)
		cancel()
		if err != nil {
			return purged, storageUnavailable("delete", err)
		}
		delete(e.recs, id)
		purged = append(purged, id)
	}
	if len(purged) > 0 {
		e.log.Info().Int("purged", len(purged)).Msg("terminal timing records purged")
	}
	return purged, nil
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, ev)
	}
}

func validateOrderID(id string) error {
	switch {
	case id == "":
		return invalidInput(id, "order id is required")
	case strings.TrimSpace(id) != id:
		return invalidInput(id, "order id must not have surrounding whitespace")
	case len(id) > maxOrderIDLen:
		return invalidInput(id, "order id longer than %d bytes", maxOrderIDLen)
	}
	return nil
}
