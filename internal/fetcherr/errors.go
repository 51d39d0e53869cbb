// package fetcherr classifies every failure a fetch can settle with.
//
// errors are matched by kind:
//
//	if errors.Is(err, fetcherr.ErrMaxSize) { ... }
//
// and the concrete *[Error] exposes the message and the underlying cause.
package fetcherr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRequestTimeout    Kind = "request-timeout"
	KindBodyTimeout       Kind = "body-timeout"
	KindMaxSize           Kind = "max-size"
	KindSystem            Kind = "system"
	KindNoRedirect        Kind = "no-redirect"
	KindMaxRedirect       Kind = "max-redirect"
	KindInvalidRedirect   Kind = "invalid-redirect"
	KindConstruction      Kind = "construction"
	KindBodyReused        Kind = "body-reused"
	KindUnsupportedScheme Kind = "unsupported-scheme"
)

type Error struct {
	Kind    Kind
	Message string
	error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "fetch: " + string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.error
}

// Is reports whether err is an *Error of the same kind.
func (e *Error) Is(err error) bool {
	if t, ok := err.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{e.Kind, e.Message, err}
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. The cause stays reachable through
// [errors.Unwrap] and [errors.As].
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{kind, fmt.Sprintf(format, args...), cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

var (
	ErrRequestTimeout    = &Error{Kind: KindRequestTimeout}
	ErrBodyTimeout       = &Error{Kind: KindBodyTimeout}
	ErrMaxSize           = &Error{Kind: KindMaxSize}
	ErrSystem            = &Error{Kind: KindSystem}
	ErrNoRedirect        = &Error{Kind: KindNoRedirect}
	ErrMaxRedirect       = &Error{Kind: KindMaxRedirect}
	ErrInvalidRedirect   = &Error{Kind: KindInvalidRedirect}
	ErrConstruction      = &Error{Kind: KindConstruction}
	ErrBodyReused        = &Error{Kind: KindBodyReused}
	ErrUnsupportedScheme = &Error{Kind: KindUnsupportedScheme}
)

// construction sub-causes
var (
	ErrBadType          = errors.New("no matching constructor signature")
	ErrBadPairType      = errors.New("the value provided is neither a slice nor a pair")
	ErrBadPairLength    = errors.New("pair should contain exactly two items")
	ErrBadName          = errors.New("invalid name")
	ErrBadValue         = errors.New("invalid value")
	ErrBodyProhibited   = errors.New("request with GET/HEAD method cannot have body")
	ErrArgumentRequired = errors.New("1 argument required, but only 0 present")
	ErrInvalidInit      = errors.New("invalid init")
)

// Construct wraps cause as a construction error of the named constructor,
// e.g. Construct("headers", err) reads "headers: invalid name ...".
func Construct(constructor string, cause error) *Error {
	return Wrap(KindConstruction, cause, "%s: %v", constructor, cause)
}
