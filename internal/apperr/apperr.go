// Package apperr is the error taxonomy shared by services and handlers.
// Every failure that reaches the HTTP boundary is an *Error whose Kind
// decides the status code; its Msg is the only text a client ever sees.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Authentication
	Forbidden
	NotFound
	Conflict
	Delivery
	Persistence
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authentication:
		return "authentication"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Delivery:
		return "delivery"
	case Persistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case Validation, Conflict:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Msg     string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by identity and, for wrapped copies produced by
// Wrap, by kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.Kind == t.Kind && e.Msg == t.Msg)
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a collaborator failure to a public message.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Because returns a copy of sentinel that carries err as its cause, so the
// cause is logged while errors.Is(result, sentinel) still holds.
func Because(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Msg: sentinel.Msg, Details: sentinel.Details, Err: err}
}

// From extracts the *Error in err's chain. Anything else is reported as an
// internal error with a generic message.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Internal, Msg: "internal server error", Err: err}
}

func KindOf(err error) Kind {
	return From(err).Kind
}
