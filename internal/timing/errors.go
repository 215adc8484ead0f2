package timing

import (
	"errors"
	"fmt"
)

// Kind discriminates engine failures. The string value is what crosses a
// network boundary.
type Kind string

const (
	KindInvalidInput            Kind = "InvalidInput"
	KindOrderNotFound           Kind = "OrderNotFound"
	KindInvalidStatusTransition Kind = "InvalidStatusTransition"
	KindStorageUnavailable      Kind = "StorageUnavailable"
)

// Sentinels for errors.Is matching.
var (
	ErrInvalidInput            = &Error{Kind: KindInvalidInput}
	ErrOrderNotFound           = &Error{Kind: KindOrderNotFound}
	ErrInvalidStatusTransition = &Error{Kind: KindInvalidStatusTransition}
	ErrStorageUnavailable      = &Error{Kind: KindStorageUnavailable}
)

type Error struct {
	Kind    Kind
	OrderID string
	From    Status // current status, for transition failures
	To      Status // attempted status
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Msg
	switch {
	case msg != "":
	case e.Kind == KindInvalidStatusTransition:
		msg = fmt.Sprintf("cannot move order %s from %s to %s", e.OrderID, e.From, e.To)
	case e.Kind == KindOrderNotFound:
		msg = fmt.Sprintf("order %s not found", e.OrderID)
	default:
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is regardless of the order id or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidInput(orderID, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, OrderID: orderID, Msg: fmt.Sprintf(format, args...)}
}

func storageUnavailable(op string, err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Msg: "store " + op, Err: err}
}
