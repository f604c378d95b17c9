package httpclient

import (
	"errors"
	"fmt"
)

// ErrKind categorizes request failures.
type ErrKind uint8

const (
	KindMalformedURL ErrKind = iota + 1
	KindTransport
	KindStatus
	KindMalformedRedirect
	KindMalformedResponse
	KindTooManyRedirects
	KindIO
	KindEmptyBody
)

func (k ErrKind) String() string {
	switch k {
	case KindMalformedURL:
		return "malformed url"
	case KindTransport:
		return "transport error"
	case KindStatus:
		return "unexpected status"
	case KindMalformedRedirect:
		return "malformed redirect"
	case KindMalformedResponse:
		return "malformed response"
	case KindTooManyRedirects:
		return "too many redirects"
	case KindIO:
		return "i/o error"
	case KindEmptyBody:
		return "empty body"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Error describes a failed Get or Download.
type Error struct {
	Kind       ErrKind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "http: " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an http *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind == kind
	}
	return false
}
