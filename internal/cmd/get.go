package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/output"
)

func newGetCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch a URL over the pinned TLS client",
		Long: `Get fetches an https URL with the same client the updater uses, following
redirects. The body is printed, or written to a file with --output-file.`,
		Example: `  buildswap get https://api.github.com/repos/acme/console/releases/tags/nightly
  buildswap get -O build.tar https://api.github.com/repos/acme/console/releases/assets/42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}

			if dest == "" {
				body, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(os.Stdout, body)
				return err
			}

			n, err := client.Download(cmd.Context(), args[0], dest)
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(os.Stderr, "Saved %s to %s\n", output.Bytes(n), dest)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dest, "output-file", "O", "", "Write the body to this file")
	return cmd
}
