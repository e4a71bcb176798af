// Package apperr defines the error kinds surfaced by the trade core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindSelfTradeRejected  Kind = "self_trade_rejected"
	KindTradeClosed        Kind = "trade_closed"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInvalid            Kind = "invalid"
)

// Error carries a Kind plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

// Sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrSelfTradeRejected  = &Error{Kind: KindSelfTradeRejected}
	ErrTradeClosed        = &Error{Kind: KindTradeClosed}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrInvalid            = &Error{Kind: KindInvalid}
)

// NotFound reports a missing item, trade or counter.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden is returned when the caller does not own what they act on.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Conflict means a conditional write lost: the row was not in the expected state.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// SelfTrade rejects a proposal where both items belong to the same owner.
func SelfTrade(format string, args ...any) error {
	return &Error{Kind: KindSelfTradeRejected, Msg: fmt.Sprintf(format, args...)}
}

// TradeClosed is for accept or decline on a trade that is no longer pending.
func TradeClosed(format string, args ...any) error {
	return &Error{Kind: KindTradeClosed, Msg: fmt.Sprintf(format, args...)}
}

// Invalid flags malformed input.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a backing-store failure. Errors that already carry a Kind pass through.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorageUnavailable, Msg: op, Err: err}
}

// KindOf reports the Kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
