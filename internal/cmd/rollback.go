package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/fsutil"
	"github.com/adamancini/buildswap/internal/interactive"
	"github.com/adamancini/buildswap/internal/update"
)

func newRollbackCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore the previous build",
		Long: `Rollback moves <root>_OLD back into place. The current install, if any, is
moved to <root>_NEW first, replacing whatever scratch build is there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			root := cfg.InstallRoot
			if root == "" {
				return fmt.Errorf("install_root is not configured")
			}
			backup := root + update.BackupSuffix
			if !fsutil.IsDir(backup) {
				return fmt.Errorf("no previous build at %s", backup)
			}

			if !yes {
				if !interactive.IsTerminal() {
					return fmt.Errorf("refusing to roll back without --yes on a non-interactive session")
				}
				if !interactive.NewPrompter().Confirm("Restore %s from %s?", root, backup) {
					fmt.Println("Aborted")
					return nil
				}
			}

			if fsutil.Exists(root) {
				scratch := root + update.ScratchSuffix
				if err := fsutil.Wipe(scratch); err != nil {
					return err
				}
				if err := fsutil.Rename(root, scratch); err != nil {
					return fmt.Errorf("failed to move current build aside: %w", err)
				}
				logger.Info("current build moved aside", "path", scratch)
			}

			if err := update.NewInstaller(logger).Rollback(root); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("Restored %s\n", root)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
