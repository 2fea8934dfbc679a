package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/importer"
	"github.com/pfinance-dev/pfinance/internal/ingest"
	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/watch"
)

// settleDelay is how long a dropped file must stay unchanged before it is
// ingested in watch mode.
const settleDelay = 500 * time.Millisecond

type ingestOptions struct {
	keep  bool
	watch bool
}

func newIngestCommand(dir *string) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Import statements into the ledger",
		Long: "Import bank, card and wallet statements. With no arguments every " +
			"accepted file in the import directory is ingested and moved to " +
			"its processed/ subdirectory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.watch && len(args) > 0 {
				return fmt.Errorf("--watch works on the import directory, not on named files")
			}
			ctx := cmd.Context()
			if opts.watch {
				var stop context.CancelFunc
				ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}
			return runIngest(ctx, cmd.OutOrStdout(), *dir, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.keep, "keep", false, "leave scanned files in the import directory")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "keep running and ingest files as they are dropped into the import directory")

	return cmd
}

func runIngest(ctx context.Context, w io.Writer, dir string, files []string, opts ingestOptions) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.ingestService()
	if err != nil {
		return err
	}

	var uploads []ingest.Upload
	scanned := len(files) == 0
	if scanned {
		infos, err := importer.Scan(a.importDir())
		if err != nil {
			return err
		}
		for _, fi := range infos {
			uploads = append(uploads, ingest.FileUpload(fi.Path))
		}
	} else {
		for _, f := range files {
			uploads = append(uploads, ingest.FileUpload(f))
		}
	}

	move := scanned && !opts.keep
	if len(uploads) == 0 {
		if !opts.watch {
			fmt.Fprintln(w, "Nothing to ingest.")
			return nil
		}
	} else {
		sum, err := ingestBatch(ctx, w, a, svc, uploads, move)
		if err != nil {
			return err
		}
		if n := sum.Failed(); n > 0 && !opts.watch {
			return fmt.Errorf("%d of %d files failed", n, len(sum.Files))
		}
	}

	if opts.watch {
		return watchImportDir(ctx, w, a, svc, move)
	}
	return nil
}

// ingestBatch runs one ingest, prints its summary and moves ingested files
// out of the import directory when move is set.
func ingestBatch(ctx context.Context, w io.Writer, a *app, svc *ingest.Service, uploads []ingest.Upload, move bool) (*ingest.Summary, error) {
	sum, runErr := svc.Ingest(ctx, uploads)
	printSummary(w, sum)
	if n := sum.Added(); n > 0 {
		a.commit(ctx, fmt.Sprintf("ingest: %d rows from %d files (run %s)", n, len(sum.Files), sum.RunID))
	}

	if move {
		log := logger.FromContext(ctx)
		for _, f := range sum.Files {
			if f.Status != ingest.StatusOK {
				continue
			}
			if err := importer.MarkProcessed(a.importDir(), f.Name); err != nil {
				log.Warn().Err(err).Str("file", f.Name).Msg("could not move ingested file")
			}
		}
	}
	return sum, runErr
}

func watchImportDir(ctx context.Context, w io.Writer, a *app, svc *ingest.Service, move bool) error {
	wt, err := watch.New(a.importDir(), settleDelay, importer.Accepted)
	if err != nil {
		return err
	}
	defer wt.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		errCh <- wt.Run(ctx, paths)
		close(paths)
	}()

	fmt.Fprintf(w, "Watching %s\n", a.importDir())
	for path := range paths {
		if _, err := ingestBatch(ctx, w, a, svc, []ingest.Upload{ingest.FileUpload(path)}, move); err != nil {
			return err
		}
	}
	return <-errCh
}

func printSummary(w io.Writer, sum *ingest.Summary) {
	for _, f := range sum.Files {
		switch f.Status {
		case ingest.StatusOK:
			fmt.Fprintf(w, "%-40s %-8s added %d, duplicates %d, skipped %d, filtered %d\n",
				filepath.Base(f.Name), f.Kind, f.Added, f.Duplicates, f.Skipped, f.Filtered)
		default:
			fmt.Fprintf(w, "%-40s %-8s %s\n", filepath.Base(f.Name), f.Status, f.Detail())
		}
		for _, s := range f.Skips {
			fmt.Fprintf(w, "  skipped %q: %v\n", s.Record, s.Reason)
		}
		if f.Status == ingest.StatusOK {
			for _, msg := range f.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", msg)
			}
		}
	}
	fmt.Fprintf(w, "Ledger: %d -> %d rows (run %s)\n", sum.Before, sum.After, sum.RunID)
}
