package timing

import "fmt"

// Status is the shared order status vocabulary. Values are case-sensitive and
// must match the order-management system exactly.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing: {StatusReady: true, StatusCancelled: true},
	StatusReady:     {StatusDelivered: true, StatusCompleted: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusCompleted: {},
}

// ParseStatus validates s against the vocabulary.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusCompleted
}

// Queued reports whether an order in this status holds a position in the
// active queue. Ready orders are active but no longer consume capacity.
func (s Status) Queued() bool {
	return s.Valid() && !s.Terminal() && s != StatusReady
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
