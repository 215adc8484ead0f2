package events

import (
	"context"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-order-timing/internal/kafka"
	"github.com/ariefcatur/go-order-timing/internal/logger"
	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// Publisher is the part of kafkax.Producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

var _ Publisher = (*kafkax.Producer)(nil)

// KafkaNotifier publishes engine changes to TopicOrderTiming.
type KafkaNotifier struct {
	Producer Publisher
	Service  string
	Log      *logger.Logger
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev timing.Event) {
	env := Build(n.Service, ev)
	err := n.Producer.Publish(ctx, PartitionKey(ev.Record.OrderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil {
		n.Log.Warn().Err(err).Str("order_id", ev.Record.OrderID).Msg("timing event dropped")
	}
}

// Build wraps an engine event in a v1 envelope.
func Build(service string, ev timing.Event) Envelope {
	typ := EventOrderTimingStatusChanged
	if ev.Type == timing.EventEnqueued {
		typ = EventOrderTimingEnqueued
	}
	p := TimingPayload{
		OrderID:             ev.Record.OrderID,
		Status:              string(ev.Record.Status),
		PreviousStatus:      string(ev.Previous),
		QueuePosition:       ev.Record.QueuePosition,
		BaseEstimateMinutes: ev.Record.BaseEstimateMinutes,
		EnqueuedAt:          ev.Record.EnqueuedAt,
	}
	for _, r := range ev.Reranked {
		p.Reranked = append(p.Reranked, Rank{OrderID: r.OrderID, QueuePosition: r.QueuePosition})
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     typ,
		EventVersion:  1,
		OccurredAt:    ev.At.UTC(),
		Producer:      service,
		CorrelationID: ev.Record.OrderID,
		Payload:       kafkax.MustMarshal(p),
	}
}
