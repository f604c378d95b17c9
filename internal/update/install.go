package update

import (
	"fmt"
	"log/slog"

	"github.com/adamancini/buildswap/internal/fsutil"
)

// Suffixes of the trees that sit next to the install root.
const (
	ScratchSuffix = "_NEW"
	BackupSuffix  = "_OLD"
)

// Installer swaps a prepared tree into the install root, keeping one
// generation of backup.
type Installer struct {
	// rename moves the live root aside; install moves the new tree in
	// without replacing anything.
	rename  func(oldpath, newpath string) error
	install func(oldpath, newpath string) error
	logger  *slog.Logger
}

// NewInstaller returns an installer using the platform renames.
func NewInstaller(logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		rename:  fsutil.Rename,
		install: fsutil.RenameNoReplace,
		logger:  logger,
	}
}

// Install replaces root with scratch: any previous backup is removed, root
// is renamed to root+BackupSuffix, then scratch is renamed to root. A
// failure of the first rename leaves root untouched; a failure of the
// second leaves the old build in the backup path.
func (i *Installer) Install(scratch, root string) error {
	backup := root + BackupSuffix

	if fsutil.Exists(backup) {
		i.logger.Debug("removing previous backup", "path", backup)
		if err := fsutil.Wipe(backup); err != nil {
			return newError(KindFilesystem, "failed to remove previous backup", err)
		}
	}

	if fsutil.Exists(root) {
		if err := i.rename(root, backup); err != nil {
			return newError(KindBackup, "failed to backup previous build", err)
		}
		i.logger.Info("previous build moved aside", "path", backup)
	}

	if err := i.install(scratch, root); err != nil {
		return newError(KindInstall, "failed to install new build", err)
	}
	i.logger.Info("new build installed", "path", root)
	return nil
}

// Rollback restores root+BackupSuffix into an empty root slot. It is never
// run automatically.
func (i *Installer) Rollback(root string) error {
	backup := root + BackupSuffix
	if !fsutil.IsDir(backup) {
		return newError(KindFilesystem, "no previous build to restore", fmt.Errorf("%s not found", backup))
	}
	if fsutil.Exists(root) {
		return newError(KindFilesystem, "install root still present", fmt.Errorf("move %s away before restoring", root))
	}
	if err := i.install(backup, root); err != nil {
		return newError(KindInstall, "failed to restore previous build", err)
	}
	i.logger.Info("previous build restored", "path", root)
	return nil
}
