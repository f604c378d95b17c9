package update

import (
	"context"
	"fmt"
)

// State is a phase of an update run.
type State int

const (
	StatePrepare State = iota
	StateCheckForUpdate
	StateDownloadBuild
	StateExtractBuild
	StateCopyUserdata
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StatePrepare:
		return "PREPARE"
	case StateCheckForUpdate:
		return "CHECK_FOR_UPDATE"
	case StateDownloadBuild:
		return "DOWNLOAD_BUILD"
	case StateExtractBuild:
		return "EXTRACT_BUILD"
	case StateCopyUserdata:
		return "COPY_USERDATA"
	case StateFinished:
		return "FINISHED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateError
}

// Context is the mutable record of one update run.
type Context struct {
	RootPath     string
	ExtractPath  string
	BackupPath   string
	ArchivePath  string
	MarkerPath   string
	UserDataPath string

	CurrentRevision string
	LatestRevision  string
	Channel         string
	LastError       string

	ArchiveSize   int64
	ArchiveDigest string
}

// Fetcher retrieves remote resources.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
	Download(ctx context.Context, url, dst string) (int64, error)
}

// Extractor unpacks a downloaded build archive.
type Extractor interface {
	Extract(archivePath, destRoot string) error
}
