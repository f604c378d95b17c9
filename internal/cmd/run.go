package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/config"
	"github.com/adamancini/buildswap/internal/fsutil"
	"github.com/adamancini/buildswap/internal/history"
	"github.com/adamancini/buildswap/internal/interactive"
	"github.com/adamancini/buildswap/internal/output"
	"github.com/adamancini/buildswap/internal/update"
)

// ErrUpdateFailed is returned when a run ends in the ERROR state. The
// message has already been shown.
var ErrUpdateFailed = errors.New("update failed")

// stepLabels are the console lines printed while a phase runs.
var stepLabels = map[update.State]string{
	update.StatePrepare:        "Preparing update",
	update.StateCheckForUpdate: "Checking for new version",
	update.StateDownloadBuild:  "Downloading update",
	update.StateExtractBuild:   "Extracting update",
	update.StateCopyUserdata:   "Installing update",
}

// stepper is the part of *update.Updater the driving loop needs.
type stepper interface {
	State() update.State
	Advance(ctx context.Context) (update.State, error)
}

// drive advances s until it reaches a terminal state, or until stop
// reports true for the state just reached.
func drive(ctx context.Context, s stepper, console *output.Console, stop func(update.State) bool) (update.State, error) {
	for !s.State().Terminal() {
		console.Step(stepLabels[s.State()])
		state, err := s.Advance(ctx)
		if err != nil {
			var ue *update.Error
			if errors.As(err, &ue) {
				console.Failed(ue.Msg)
			} else {
				console.Failed(err.Error())
			}
			return state, err
		}
		console.Success()
		if stop != nil && stop(state) {
			return state, nil
		}
	}
	return s.State(), nil
}

func newRunCmd() *cobra.Command {
	var (
		lf       launchFlags
		noReboot bool
		noWait   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check for, download, and install a new build",
		Long: `Run performs a full update: it checks the release channel, and when the
latest revision differs from the installed one it downloads the build archive,
extracts it to <root>_NEW, copies user data into it, and swaps it into place.

After a successful run the configured reboot command is executed. On failure
the error is shown and, on a terminal, buildswap waits for a key press.`,
		Example: `  buildswap run --launch "revision=v1.0&channel=nightly"
  buildswap run --launch-file /var/run/app/launch.dat --no-reboot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), lf, noReboot, noWait)
		},
	}

	lf.register(cmd.Flags())
	cmd.Flags().BoolVar(&noReboot, "no-reboot", false, "Do not reboot after a successful update")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Do not wait for a key press after a failure")

	return cmd
}

func runUpdate(ctx context.Context, lf launchFlags, noReboot, noWait bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	u, err := newUpdater(cfg, lf.source(cfg), logger)
	if err != nil {
		return err
	}

	console := output.NewConsole(os.Stdout, quiet)
	started := time.Now()
	final, runErr := drive(ctx, u, console, nil)
	recordRun(cfg, logger, u, started)

	if final == update.StateError {
		if !noWait && interactive.IsTerminal() {
			_ = interactive.NewPrompter().WaitForKey("Press any key to exit")
		}
		return ErrUpdateFailed
	}
	if runErr != nil {
		return runErr
	}

	uctx := u.Context()
	if uctx.ArchiveSize == 0 {
		console.Printf("Already running the latest version (%s)", uctx.CurrentRevision)
		return nil
	}
	reportInstall(console, uctx, logger)
	return reboot(ctx, cfg, noReboot, console, logger)
}

// reportInstall summarizes a finished install.
func reportInstall(console *output.Console, uctx update.Context, logger *slog.Logger) {
	console.Printf("Updated %s -> %s (%s)", uctx.CurrentRevision, uctx.LatestRevision, output.Bytes(uctx.ArchiveSize))
	if uctx.ArchiveDigest != "" {
		console.Detail("archive blake3 %s", uctx.ArchiveDigest)
	}
	if uctx.UserDataPath == "" || !fsutil.IsDir(uctx.UserDataPath) {
		return
	}
	size, err := fsutil.DirSize(uctx.UserDataPath)
	if err != nil {
		logger.Warn("failed to measure user data", "path", uctx.UserDataPath, "error", err)
		return
	}
	console.Detail("user data %s carried over from %s", output.Bytes(size), uctx.UserDataPath)
}

// recordRun stores the outcome of a run in the history directory.
func recordRun(cfg *config.Config, logger *slog.Logger, u *update.Updater, started time.Time) {
	if cfg.History.Dir == "" {
		return
	}
	manager, err := history.NewManager(cfg.History.Dir)
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return
	}

	uctx := u.Context()
	rec := &history.Record{
		StartedAt:     started,
		FinishedAt:    time.Now(),
		Channel:       uctx.Channel,
		From:          uctx.CurrentRevision,
		To:            uctx.LatestRevision,
		State:         u.State().String(),
		Error:         uctx.LastError,
		ArchiveSize:   uctx.ArchiveSize,
		ArchiveDigest: uctx.ArchiveDigest,
	}
	if err := manager.Save(rec); err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}
	if cfg.History.Keep > 0 {
		if _, err := manager.Prune(cfg.History.Keep); err != nil {
			logger.Warn("failed to prune history", "error", err)
		}
	}
}

// reboot waits the configured delay and runs the reboot command.
func reboot(ctx context.Context, cfg *config.Config, skip bool, console *output.Console, logger *slog.Logger) error {
	command := cfg.Reboot.Command
	if skip || len(command) == 0 {
		console.Printf("Reboot skipped")
		return nil
	}

	delay := cfg.RebootDelay()
	console.Printf("Rebooting in %s", delay)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info("running reboot command", "command", command)
	c := exec.CommandContext(ctx, command[0], command[1:]...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("reboot command failed: %w", err)
	}
	return nil
}
