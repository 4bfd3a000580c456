package market

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the engine matches exactly one of them
// through errors.Is.
var (
	ErrAuthorization = errors.New("unauthorized")
	ErrState         = errors.New("invalid state")
	ErrValidation    = errors.New("invalid input")
	ErrPayment       = errors.New("invalid payment")
	ErrRegistry      = errors.New("registry")
)

var (
	errNilState  = errors.New("market: state not configured")
	errNilTokens = errors.New("market: token resolver not configured")
)

// Error describes a rejected operation.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("market: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, op string, err error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a market error, or nil for foreign errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrAuthorization, ErrState, ErrValidation, ErrPayment, ErrRegistry} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func itemError(index int, err error) error {
	return fmt.Errorf("item %d: %w", index, err)
}
