package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/output"
	"github.com/adamancini/buildswap/internal/update"
)

// checkResult is the machine-readable outcome of check.
type checkResult struct {
	Channel   string `json:"channel" yaml:"channel"`
	Current   string `json:"current" yaml:"current"`
	Latest    string `json:"latest" yaml:"latest"`
	Available bool   `json:"available" yaml:"available"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

func (r checkResult) String() string {
	if !r.Available {
		return fmt.Sprintf("Up to date on %s (%s)", r.Channel, r.Current)
	}
	return fmt.Sprintf("Update available on %s: %s -> %s (%s)", r.Channel, r.Current, r.Latest, r.Direction)
}

func newCheckCmd() *cobra.Command {
	var lf launchFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether a new build is available",
		Long:  `Check resolves the latest revision on the release channel without downloading or installing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			u, err := newUpdater(cfg, lf.source(cfg), logger)
			if err != nil {
				return err
			}

			// Quiet console: only the result is printed.
			console := output.NewConsole(os.Stdout, true)
			state, err := drive(cmd.Context(), u, console, func(s update.State) bool {
				return s == update.StateDownloadBuild
			})
			if err != nil {
				return ErrUpdateFailed
			}

			uctx := u.Context()
			result := checkResult{
				Channel:   uctx.Channel,
				Current:   uctx.CurrentRevision,
				Latest:    uctx.LatestRevision,
				Available: state == update.StateDownloadBuild,
			}
			if result.Available {
				result.Direction = update.Direction(uctx.CurrentRevision, uctx.LatestRevision)
			}
			return output.NewWriter(os.Stdout, format).Write(result)
		},
	}

	lf.register(cmd.Flags())
	return cmd
}
