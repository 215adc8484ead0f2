package timing

import "time"

// Record is the timing state of one tracked order.
type Record struct {
	OrderID             string    `json:"order_id"`
	ItemCount           int       `json:"item_count"`
	QueuePosition       int       `json:"queue_position"` // frozen at its last value once the order leaves the queue
	BaseEstimateMinutes int       `json:"base_estimate_minutes"`
	Status              Status    `json:"status"`
	EnqueuedAt          time.Time `json:"enqueued_at"`
	StatusUpdatedAt     time.Time `json:"status_updated_at"`
}

// RemainingAt is the countdown value at now: the base estimate minus whole
// elapsed minutes, clamped at zero. Ready and terminal orders report zero.
func (r Record) RemainingAt(now time.Time) int {
	if !r.Status.Queued() {
		return 0
	}
	elapsed := int(now.Sub(r.EnqueuedAt) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	if left := r.BaseEstimateMinutes - elapsed; left > 0 {
		return left
	}
	return 0
}

// Estimate pairs a record with its remaining minutes computed at read time.
type Estimate struct {
	Record
	RemainingMinutes int `json:"remaining_minutes"`
}
