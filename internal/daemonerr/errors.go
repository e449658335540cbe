// Package daemonerr defines the error taxonomy described in spec §7:
// the router and background loops branch on Kind, not on concrete types.
package daemonerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories the daemon distinguishes.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthorization
	KindNotFound
	KindDomain
	KindTransport
	KindTermination
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindDomain:
		return "domain"
	case KindTransport:
		return "transport"
	case KindTermination:
		return "termination"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Code is one of the five HTTP-ish response codes in spec §6.
type Code int

const (
	CodeOK                  Code = 200
	CodeBadRequest          Code = 400
	CodeNotAuthorized       Code = 401
	CodeNotFound            Code = 404
	CodeInternalServerError Code = 500
)

// Error is the daemon's wrapped error type. It carries a Kind for
// background-loop branching and an HTTP-ish Code for the router.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code maps the error's Kind to a router response code.
func (e *Error) Code() Code {
	switch e.Kind {
	case KindValidation:
		return CodeBadRequest
	case KindAuthorization:
		return CodeNotAuthorized
	case KindNotFound:
		return CodeNotFound
	default:
		return CodeInternalServerError
	}
}

func new_(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

func Validation(msg string) *Error             { return new_(KindValidation, msg, nil) }
func Validationf(format string, a ...any) *Error {
	return new_(KindValidation, fmt.Sprintf(format, a...), nil)
}
func Authorization(msg string) *Error { return new_(KindAuthorization, msg, nil) }
func NotFound(msg string) *Error      { return new_(KindNotFound, msg, nil) }
func Domain(msg string, cause error) *Error    { return new_(KindDomain, msg, cause) }
func Transport(msg string, cause error) *Error { return new_(KindTransport, msg, cause) }
func Backend(msg string, cause error) *Error   { return new_(KindBackend, msg, cause) }

// terminated is the sentinel a TerminationError chain must reach.
var terminated = errors.New("daemon: terminated")

// Termination wraps ctx.Err() (or any cause) as a termination marker.
func Termination(cause error) *Error {
	return &Error{Kind: KindTermination, Message: "cancelled", cause: errors.Join(terminated, cause)}
}

// IsTermination walks the cause chain looking for the termination marker,
// per spec §7 ("Detection must walk the error-cause chain").
func IsTermination(err error) bool {
	return errors.Is(err, terminated)
}

// Is reports whether err is a *Error of the given kind, walking Unwrap.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}
