// Package intake keeps the timing engine in lockstep with the
// order-management system by consuming its order events.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-order-timing/internal/events"
	kafkax "github.com/ariefcatur/go-order-timing/internal/kafka"
	"github.com/ariefcatur/go-order-timing/internal/logger"
	"github.com/ariefcatur/go-order-timing/internal/redisx"
	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// Engine is the subset of *timing.Engine intake drives.
type Engine interface {
	Enqueue(ctx context.Context, orderID string, itemCount int) (timing.Record, error)
	UpdateStatus(ctx context.Context, orderID string, to timing.Status) (timing.Record, error)
}

type Service struct {
	Engine      Engine
	Redis       redis.Cmdable // optional; enables dedup by event id
	Parking     Parking       // defaults to MemoryParking
	Log         *logger.Logger
	ServiceName string

	// mu orders a parking decision against the enqueue that drains it.
	mu   sync.Mutex
	once sync.Once
}

// Topics lists what Handle consumes.
var Topics = []string{events.TopicOrderCreated, events.TopicOrderStatusChanged}

// Handle routes a message by topic. The two topics are not ordered against
// each other, so a status change may arrive before its order; it is parked
// and replayed once the order is enqueued.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	switch m.Topic {
	case events.TopicOrderCreated:
		return s.HandleOrderCreated(ctx, m)
	case events.TopicOrderStatusChanged:
		return s.HandleStatusChanged(ctx, m)
	}
	return nil
}

// HandleOrderCreated enqueues the new order with its item count.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.open(ctx, m, events.EventOrderCreated)
	if err != nil || !ok {
		return err
	}
	p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
	if err != nil {
		s.Log.Warn().Err(err).Str("event_id", env.EventID).Msg("dropping malformed OrderCreated")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err = s.Engine.Enqueue(ctx, p.OrderID, p.ItemCount()); err == nil {
		// a failed replay is redelivered; Enqueue is then a no-op and replay resumes
		if err := s.replay(ctx, p.OrderID); err != nil {
			return err
		}
	}
	return s.settle(ctx, env, p.OrderID, err)
}

// HandleStatusChanged mirrors an order status change into the engine.
func (s *Service) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	env, ok, err := s.open(ctx, m, events.EventOrderStatusChanged)
	if err != nil || !ok {
		return err
	}
	p, err := kafkax.UnwrapPayload[events.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		s.Log.Warn().Err(err).Str("event_id", env.EventID).Msg("dropping malformed OrderStatusChanged")
		return nil
	}
	to := timing.Status(p.Status)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.Engine.UpdateStatus(ctx, p.OrderID, to)
	if errors.Is(err, timing.ErrOrderNotFound) {
		if perr := s.parking().Park(ctx, p.OrderID, to); perr != nil {
			return perr
		}
		s.Log.Info().Str("order_id", p.OrderID).Str("status", p.Status).Msg("status change parked until order is created")
		err = nil
	}
	return s.settle(ctx, env, p.OrderID, err)
}

func (s *Service) parking() Parking {
	s.once.Do(func() {
		if s.Parking == nil {
			s.Parking = NewMemoryParking()
		}
	})
	return s.Parking
}

// replay applies parked status changes of a freshly enqueued order. Applied
// entries are dropped; a storage failure keeps the rest for the next attempt.
func (s *Service) replay(ctx context.Context, orderID string) error {
	parked, err := s.parking().Parked(ctx, orderID)
	if err != nil || len(parked) == 0 {
		return err
	}
	for i, to := range parked {
		_, err := s.Engine.UpdateStatus(ctx, orderID, to)
		if errors.Is(err, timing.ErrStorageUnavailable) {
			if derr := s.parking().Drop(ctx, orderID, i); derr != nil {
				s.Log.Warn().Err(derr).Str("order_id", orderID).Msg("drop replayed statuses")
			}
			return err
		}
		if err != nil {
			s.Log.Warn().Err(err).Str("order_id", orderID).Str("status", string(to)).Msg("parked status change rejected")
		}
	}
	return s.parking().Drop(ctx, orderID, len(parked))
}

// open decodes the envelope and filters by type and dedup key.
func (s *Service) open(ctx context.Context, m kafkago.Message, want string) (events.Envelope, bool, error) {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn().Err(err).Str("topic", m.Topic).Msg("dropping undecodable message")
		return env, false, nil
	}
	if env.EventType != want {
		return env, false, nil
	}
	if s.Redis != nil && env.EventID != "" {
		n, err := s.Redis.Exists(ctx, redisx.DedupKey(s.ServiceName, env.EventID)).Result()
		if err != nil {
			s.Log.Warn().Err(err).Msg("dedup lookup failed, processing anyway")
		} else if n > 0 {
			return env, false, nil
		}
	}
	return env, true, nil
}

// settle classifies the engine result: business rejections are logged and the
// message committed, storage failures are returned for retry.
func (s *Service) settle(ctx context.Context, env events.Envelope, orderID string, err error) error {
	if errors.Is(err, timing.ErrStorageUnavailable) {
		return err
	}
	if err != nil {
		s.Log.Warn().Err(err).Str("order_id", orderID).Str("kind", string(timing.KindOf(err))).
			Str("event_type", env.EventType).Msg("order event rejected by timing engine")
	}
	if s.Redis != nil && env.EventID != "" {
		if _, derr := redisx.MarkOnce(ctx, s.Redis, redisx.DedupKey(s.ServiceName, env.EventID), redisx.TTLDedup); derr != nil {
			s.Log.Warn().Err(derr).Str("event_id", env.EventID).Msg("dedup mark failed")
		}
	}
	return nil
}
