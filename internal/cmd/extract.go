package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/output"
)

// extractResult is the machine-readable outcome of extract.
type extractResult struct {
	Archive     string `json:"archive" yaml:"archive"`
	Destination string `json:"destination" yaml:"destination"`
	Compression string `json:"compression" yaml:"compression"`
	Files       int    `json:"files" yaml:"files"`
	Dirs        int    `json:"dirs" yaml:"dirs"`
	Skipped     int    `json:"skipped" yaml:"skipped"`
	Bytes       int64  `json:"bytes" yaml:"bytes"`
}

func (r extractResult) String() string {
	return fmt.Sprintf("Extracted %d files (%s) into %s", r.Files, output.Bytes(r.Bytes), r.Destination)
}

func newExtractCmd() *cobra.Command {
	var stripPrefix string

	cmd := &cobra.Command{
		Use:   "extract <archive> <destination>",
		Short: "Unpack a build archive",
		Long: `Extract unpacks a build archive the same way an update does: GNU long names
are honoured, the top-level prefix directory is stripped, and gzip, zstd and
lz4 compressed archives are detected automatically.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			extractor := newExtractor(cfg, logger)
			if cmd.Flags().Changed("strip-prefix") {
				extractor.StripPrefix = stripPrefix
			}

			if err := os.MkdirAll(args[1], 0755); err != nil {
				return err
			}
			stats, err := extractor.ExtractWithStats(args[0], args[1])
			if err != nil {
				return err
			}

			return output.NewWriter(os.Stdout, format).Write(extractResult{
				Archive:     args[0],
				Destination: args[1],
				Compression: stats.Compression.String(),
				Files:       stats.Files,
				Dirs:        stats.Dirs,
				Skipped:     stats.Skipped,
				Bytes:       stats.Bytes,
			})
		},
	}

	cmd.Flags().StringVar(&stripPrefix, "strip-prefix", "", "Top-level directory to strip (default: archive.strip_prefix from config)")
	return cmd
}
