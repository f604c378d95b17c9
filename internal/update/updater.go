// Package update drives one update run as a state machine: check the
// channel for a newer revision, download and unpack it beside the live
// install, merge user data, then swap it in.
package update

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/adamancini/buildswap/internal/fsutil"
	"github.com/adamancini/buildswap/internal/launch"
)

// Default asset names.
const (
	DefaultMarkerAsset  = "version.txt"
	DefaultArchiveAsset = "build.tar"
)

// Options fixes the paths and feed of a run.
type Options struct {
	// RootPath is the live install directory.
	RootPath string
	// ScratchDir receives the downloaded marker and archive.
	ScratchDir string
	// UserDataPath is merged into every new build. Empty disables the merge.
	UserDataPath string

	Feed Feed
	// Channel is used when the launch data does not name one.
	Channel string

	MarkerAsset  string
	ArchiveAsset string
}

// Deps are the collaborators of an Updater.
type Deps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Launch    launch.Source
	Installer *Installer
	Logger    *slog.Logger
}

// Updater advances an update run one phase at a time.
type Updater struct {
	opts      Options
	fetcher   Fetcher
	extractor Extractor
	launch    launch.Source
	installer *Installer
	logger    *slog.Logger

	state   State
	uctx    Context
	err     *Error
	release string
}

// New returns an updater in StatePrepare.
func New(opts Options, deps Deps) *Updater {
	if opts.MarkerAsset == "" {
		opts.MarkerAsset = DefaultMarkerAsset
	}
	if opts.ArchiveAsset == "" {
		opts.ArchiveAsset = DefaultArchiveAsset
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	installer := deps.Installer
	if installer == nil {
		installer = NewInstaller(logger)
	}

	return &Updater{
		opts:      opts,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		launch:    deps.Launch,
		installer: installer,
		logger:    logger,
		state:     StatePrepare,
	}
}

// State returns the current state.
func (u *Updater) State() State { return u.state }

// Context returns a copy of the run record.
func (u *Updater) Context() Context { return u.uctx }

// Err returns the error that moved the run to StateError.
func (u *Updater) Err() error {
	if u.err == nil {
		return nil
	}
	return u.err
}

// Advance runs the current phase to completion and returns the new state.
// Terminal states are left unchanged; StateError keeps returning the error
// that caused it. A cancelled ctx returns its error without a transition.
func (u *Updater) Advance(ctx context.Context) (State, error) {
	switch u.state {
	case StateFinished:
		return u.state, nil
	case StateError:
		return u.state, u.err
	}
	if err := ctx.Err(); err != nil {
		return u.state, err
	}

	var (
		next State
		err  *Error
	)
	switch u.state {
	case StatePrepare:
		next, err = u.prepare(ctx)
	case StateCheckForUpdate:
		next, err = u.checkForUpdate(ctx)
	case StateDownloadBuild:
		next, err = u.downloadBuild(ctx)
	case StateExtractBuild:
		next, err = u.extractBuild()
	case StateCopyUserdata:
		next, err = u.copyUserdata()
	default:
		err = newError(KindFilesystem, fmt.Sprintf("unknown state %s", u.state), nil)
	}

	if err != nil {
		u.logger.Error("update failed", "state", u.state.String(), "error", err)
		u.err = err
		u.uctx.LastError = err.Msg
		u.state = StateError
		return u.state, err
	}

	u.logger.Debug("update advanced", "from", u.state.String(), "to", next.String())
	u.state = next
	return next, nil
}

func (u *Updater) prepare(ctx context.Context) (State, *Error) {
	if u.launch == nil {
		return StateError, newError(KindLaunchConfig, "failed to read launch data", errors.New("no launch source"))
	}
	params, err := u.launch.Read(ctx)
	if err != nil {
		return StateError, newError(KindLaunchConfig, "failed to read launch data", err)
	}

	revision := strings.TrimSpace(params.Revision())
	if revision == "" || IsPlaceholder(revision) {
		return StateError, newError(KindInvalidRevision, "invalid version installed: "+revision, nil)
	}

	channel := params.Channel()
	if channel == "" {
		channel = u.opts.Channel
	}
	if channel == "" {
		return StateError, newError(KindLaunchConfig, "failed to read launch data", errors.New("no update channel"))
	}

	if u.opts.RootPath == "" || u.opts.ScratchDir == "" {
		return StateError, newError(KindFilesystem, "install paths not configured", nil)
	}
	root := filepath.Clean(u.opts.RootPath)
	scratch := filepath.Clean(u.opts.ScratchDir)
	for _, tree := range []string{root, root + ScratchSuffix, root + BackupSuffix} {
		if fsutil.Within(tree, scratch) {
			return StateError, newError(KindFilesystem, "scratch directory overlaps install root", errors.New(scratch))
		}
	}

	u.uctx = Context{
		RootPath:        root,
		ExtractPath:     root + ScratchSuffix,
		BackupPath:      root + BackupSuffix,
		ArchivePath:     filepath.Join(scratch, u.opts.ArchiveAsset),
		MarkerPath:      filepath.Join(scratch, u.opts.MarkerAsset),
		UserDataPath:    u.opts.UserDataPath,
		CurrentRevision: revision,
		Channel:         channel,
	}

	if err := u.cleanScratch(scratch); err != nil {
		return StateError, newError(KindFilesystem, "failed to prepare scratch space", err)
	}

	u.logger.Info("update prepared",
		"revision", revision,
		"channel", channel,
		"root", root,
	)
	return StateCheckForUpdate, nil
}

// cleanScratch removes what an interrupted run may have left behind.
func (u *Updater) cleanScratch(scratch string) error {
	if fsutil.Exists(u.uctx.ExtractPath) {
		u.logger.Debug("removing stale scratch tree", "path", u.uctx.ExtractPath)
		if err := fsutil.Wipe(u.uctx.ExtractPath); err != nil {
			return err
		}
	}
	for _, path := range []string{u.uctx.ArchivePath, u.uctx.MarkerPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return os.MkdirAll(scratch, 0755)
}

func (u *Updater) checkForUpdate(ctx context.Context) (State, *Error) {
	// Always start from fresh metadata.
	u.release = ""

	name := u.opts.MarkerAsset
	url := u.FindAsset(ctx, name)
	if url == "" {
		return StateError, newError(KindAssetNotFound, "failed to find asset: "+name, nil)
	}
	if _, err := u.fetcher.Download(ctx, url, u.uctx.MarkerPath); err != nil {
		return StateError, newError(KindDownload, "failed to download asset: "+name, err)
	}

	latest, err := readFirstLine(u.uctx.MarkerPath)
	if err != nil {
		return StateError, newError(KindDownload, "failed to download asset: "+name, err)
	}
	if latest == "" {
		return StateError, newError(KindEmptyRevision, "failed to get latest version", nil)
	}
	u.uctx.LatestRevision = latest

	if SameRevision(u.uctx.CurrentRevision, latest) {
		u.logger.Info("already up to date", "revision", latest)
		return StateFinished, nil
	}

	u.logger.Info("new build available",
		"current", u.uctx.CurrentRevision,
		"latest", latest,
		"direction", Direction(u.uctx.CurrentRevision, latest),
	)
	return StateDownloadBuild, nil
}

func (u *Updater) downloadBuild(ctx context.Context) (State, *Error) {
	name := u.opts.ArchiveAsset
	url := u.FindAsset(ctx, name)
	if url == "" {
		return StateError, newError(KindAssetNotFound, "failed to find asset: "+name, nil)
	}

	n, err := u.fetcher.Download(ctx, url, u.uctx.ArchivePath)
	if err != nil {
		return StateError, newError(KindDownload, "failed to download update", err)
	}
	digest, err := digestFile(u.uctx.ArchivePath)
	if err != nil {
		return StateError, newError(KindDownload, "failed to download update", err)
	}
	u.uctx.ArchiveSize = n
	u.uctx.ArchiveDigest = digest

	u.logger.Info("build downloaded",
		"path", u.uctx.ArchivePath,
		"size", humanize.IBytes(uint64(n)),
		"blake3", digest,
	)
	return StateExtractBuild, nil
}

func (u *Updater) extractBuild() (State, *Error) {
	if err := os.MkdirAll(u.uctx.ExtractPath, 0755); err != nil {
		return StateError, newError(KindExtract, "failed to extract archive: "+err.Error(), err)
	}
	if err := u.extractor.Extract(u.uctx.ArchivePath, u.uctx.ExtractPath); err != nil {
		return StateError, newError(KindExtract, "failed to extract archive: "+err.Error(), err)
	}
	u.logger.Info("build extracted", "path", u.uctx.ExtractPath)
	return StateCopyUserdata, nil
}

func (u *Updater) copyUserdata() (State, *Error) {
	src := u.uctx.UserDataPath
	if src != "" && fsutil.Exists(src) {
		dst := filepath.Join(u.uctx.ExtractPath, filepath.Base(filepath.Clean(src)))
		stats, err := fsutil.CopyDir(src, dst)
		if err != nil {
			return StateError, newError(KindUserData, "failed to copy user data", err)
		}
		u.logger.Info("user data copied",
			"from", src,
			"files", stats.Files,
			"size", humanize.IBytes(uint64(stats.Bytes)),
		)
	} else {
		u.logger.Debug("no user data to copy", "path", src)
	}

	if err := u.installer.Install(u.uctx.ExtractPath, u.uctx.RootPath); err != nil {
		var ue *Error
		if errors.As(err, &ue) {
			return StateError, ue
		}
		return StateError, newError(KindInstall, "failed to install new build", err)
	}
	return StateFinished, nil
}

// readFirstLine returns the first line of path, trimmed.
func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// digestFile returns the hex BLAKE3 digest of path.
func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
