package events

import (
	"encoding/json"
	"time"
)

const (
	// consumed from the order-management system
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"

	// published by the timing engine
	EventOrderTimingEnqueued      = "OrderTimingEnqueued"
	EventOrderTimingStatusChanged = "OrderTimingStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id,omitempty"`
	Items   []ItemQty `json:"items"`
}

// ItemCount is the number of line items; quantities do not add preparation
// time.
func (p OrderCreatedPayload) ItemCount() int { return len(p.Items) }

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type TimingPayload struct {
	OrderID             string    `json:"order_id"`
	Status              string    `json:"status"`
	PreviousStatus      string    `json:"previous_status,omitempty"`
	QueuePosition       int       `json:"queue_position"`
	BaseEstimateMinutes int       `json:"base_estimate_minutes"`
	EnqueuedAt          time.Time `json:"enqueued_at"`
	Reranked            []Rank    `json:"reranked,omitempty"`
}

type Rank struct {
	OrderID       string `json:"order_id"`
	QueuePosition int    `json:"queue_position"`
}
