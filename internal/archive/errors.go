package archive

import (
	"errors"
	"fmt"
)

// ErrKind categorizes extraction failures.
type ErrKind uint8

const (
	KindOpen ErrKind = iota + 1
	KindCorrupt
	KindUnsafePath
	KindMkdir
	KindCreate
	KindTruncated
	KindWrite
)

func (k ErrKind) String() string {
	switch k {
	case KindOpen:
		return "cannot open archive"
	case KindCorrupt:
		return "corrupt archive"
	case KindUnsafePath:
		return "unsafe entry path"
	case KindMkdir:
		return "cannot create directory"
	case KindCreate:
		return "cannot create file"
	case KindTruncated:
		return "truncated entry"
	case KindWrite:
		return "cannot write file"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Error describes a failed extraction.
type Error struct {
	Kind ErrKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an archive *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
