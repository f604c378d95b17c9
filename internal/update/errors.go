package update

import "errors"

// ErrKind classifies orchestrator failures.
type ErrKind int

const (
	KindLaunchConfig ErrKind = iota + 1
	KindInvalidRevision
	KindEmptyRevision
	KindAssetNotFound
	KindDownload
	KindExtract
	KindUserData
	KindBackup
	KindInstall
	KindFilesystem
)

var kindNames = map[ErrKind]string{
	KindLaunchConfig:    "launch config",
	KindInvalidRevision: "invalid revision",
	KindEmptyRevision:   "empty revision",
	KindAssetNotFound:   "asset not found",
	KindDownload:        "download",
	KindExtract:         "extract",
	KindUserData:        "user data",
	KindBackup:          "backup",
	KindInstall:         "install",
	KindFilesystem:      "filesystem",
}

func (k ErrKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a failed phase. Msg is the message shown to the user.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Kind == kind
}

func newError(kind ErrKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}
