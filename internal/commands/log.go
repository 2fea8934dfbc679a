package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/ingestlog"
)

func newLogCommand(dir *string) *cobra.Command {
	var run string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the ingest log, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd.Context(), cmd.OutOrStdout(), *dir, run)
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "only entries of this run id")

	return cmd
}

func runLog(ctx context.Context, w io.Writer, dir, run string) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	var entries []ingestlog.Entry
	if run != "" {
		entries, err = a.ingestLog.Run(ctx, run)
	} else {
		entries, err = a.ingestLog.Read(ctx)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No ingest runs.")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(w, "%s %s %-40s %-8s %-8s added %d, duplicates %d, skipped %d, filtered %d\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.RunID, e.File, e.Kind, e.Status,
			e.Added, e.Duplicates, e.Skipped, e.Filtered)
		if e.Details != "" {
			fmt.Fprintf(w, "    %s\n", e.Details)
		}
	}
	return nil
}
