package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/buildswap/internal/history"
	"github.com/adamancini/buildswap/internal/output"
)

func newStatusCmd() *cobra.Command {
	var (
		prune int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status [id|latest]",
		Short: "Show recorded update runs",
		Long: `Status lists previous runs from the history directory, newest first. Pass a
record ID, or "latest", to show a single run. Use --prune to drop all but the
newest N records.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			manager, err := history.NewManager(cfg.History.Dir)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("prune") {
				result, err := manager.Prune(prune)
				if err != nil {
					return err
				}
				if !quiet {
					fmt.Printf("Removed %d records, kept %d\n", len(result.Deleted), result.Kept)
				}
				return nil
			}

			if len(args) == 1 {
				rec, err := manager.Get(args[0])
				if err != nil {
					return err
				}
				if format == output.FormatText {
					printRecord(os.Stdout, rec)
					return nil
				}
				return output.NewWriter(os.Stdout, format).Write(rec)
			}

			records, err := manager.List()
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			if format == output.FormatText {
				if len(records) == 0 {
					fmt.Println("No runs recorded")
					return nil
				}
				printRecords(os.Stdout, records, time.Now())
				return nil
			}
			return output.NewWriter(os.Stdout, format).Write(records)
		},
	}

	cmd.Flags().IntVar(&prune, "prune", 0, "Keep only the newest N records")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most N records")

	return cmd
}

func printRecords(w io.Writer, records []history.Record, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tCHANNEL\tFROM\tTO\tSTATE")
	for _, rec := range records {
		to := rec.To
		if to == "" {
			to = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, humanize.RelTime(rec.StartedAt, now, "ago", "from now"), rec.Channel, rec.From, to, rec.State)
	}
	_ = tw.Flush()
}

func printRecord(w io.Writer, rec *history.Record) {
	fmt.Fprintf(w, "ID:       %s\n", rec.ID)
	fmt.Fprintf(w, "Started:  %s\n", rec.StartedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "Duration: %s\n", rec.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Channel:  %s\n", rec.Channel)
	fmt.Fprintf(w, "From:     %s\n", rec.From)
	if rec.To != "" {
		fmt.Fprintf(w, "To:       %s\n", rec.To)
	}
	fmt.Fprintf(w, "State:    %s\n", rec.State)
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", rec.Error)
	}
	if rec.ArchiveSize > 0 {
		fmt.Fprintf(w, "Archive:  %s (blake3 %s)\n", output.Bytes(rec.ArchiveSize), rec.ArchiveDigest)
	}
}
