package transport

import (
	"errors"
	"fmt"
)

// ErrKind categorizes session failures.
type ErrKind uint8

const (
	KindUninitialized ErrKind = iota + 1
	KindConnect
	KindHandshake
	KindNotConnected
	KindSend
	KindReceive
)

func (k ErrKind) String() string {
	switch k {
	case KindUninitialized:
		return "session not initialized"
	case KindConnect:
		return "connect failed"
	case KindHandshake:
		return "handshake failed"
	case KindNotConnected:
		return "not connected"
	case KindSend:
		return "send failed"
	case KindReceive:
		return "receive failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Error is returned by every Session operation that fails.
type Error struct {
	Kind ErrKind
	Host string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "transport: " + e.Kind.String()
	if e.Host != "" {
		msg += " (" + e.Host + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a transport *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
