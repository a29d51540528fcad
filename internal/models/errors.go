package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownAccount         = errors.New("unknown account")
	ErrUnknownSecurity        = errors.New("unknown security")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientPosition   = errors.New("insufficient position")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrSameAccount            = errors.New("source and destination account are the same")
	ErrBusy                   = errors.New("account busy")
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
	ErrAccountHalted          = errors.New("account halted")
)

// Error is a typed ledger failure. Kind is one of the Err* sentinels.
type Error struct {
	Kind   error
	Msg    string
	Fields map[string]any
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// With attaches a context field and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// Retryable reports whether the caller may safely retry the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Fatal reports whether err signals a broken ledger invariant.
func Fatal(err error) bool {
	return errors.Is(err, ErrReconciliationMismatch) || errors.Is(err, ErrAccountHalted)
}

// FieldsOf returns the context fields carried by err, if any.
func FieldsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
