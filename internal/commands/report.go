package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/classify"
)

const dateLayout = "2006-01-02"

type reportOptions struct {
	from     string
	to       string
	category string
}

func newReportCommand(dir *string) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show totals per category, or per alias within one category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), *dir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.category, "category", "", "break one category down by alias")

	return cmd
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse(dateLayout, from); err != nil {
			return f, t, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		if t, err = time.Parse(dateLayout, to); err != nil {
			return f, t, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return f, t, nil
}

func runReport(ctx context.Context, w io.Writer, dir string, opts reportOptions) error {
	from, to, err := parseRange(opts.from, opts.to)
	if err != nil {
		return err
	}

	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.ledger.Load(ctx)
	if err != nil {
		return err
	}
	engine, err := a.engine(ctx)
	if err != nil {
		return err
	}
	rows := classify.Between(engine.Apply(l.Transactions), from, to)

	palette := engine.Palette()
	var totals []classify.Total
	if opts.category != "" {
		totals = classify.Breakdown(rows, opts.category)
	} else {
		totals = classify.Summarize(rows)
	}
	if len(totals) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return nil
	}

	sum := decimal.Zero
	for _, t := range totals {
		label := t.Key
		if opts.category != "" {
			label = opts.category
		}
		fmt.Fprintf(w, "%s %14s  (%d)\n", palette.Sprint(label, fmt.Sprintf("%-24s", t.Key)), t.Sum.StringFixed(2), t.Count)
		sum = sum.Add(t.Sum)
	}
	fmt.Fprintf(w, "%-24s %14s\n", "total", sum.StringFixed(2))
	return nil
}
