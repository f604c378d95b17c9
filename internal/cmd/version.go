package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/output"
)

// versionInfo is the build metadata printed by version.
type versionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("buildswap version %s (commit %s, built %s, %s %s)", v.Version, v.Commit, v.Date, v.Go, v.Platform)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			return output.NewWriter(os.Stdout, format).Write(currentVersion())
		},
	}
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:  buildVersion,
		Commit:   buildCommit,
		Date:     buildDate,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}
