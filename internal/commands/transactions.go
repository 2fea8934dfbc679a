package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/classify"
	"github.com/pfinance-dev/pfinance/internal/ledger"
	"github.com/pfinance-dev/pfinance/internal/model"
)

func newAddCommand(dir *string) *cobra.Command {
	var (
		date  string
		entry ledger.ManualEntry
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a hand-typed transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Now()
			if date != "" {
				var err error
				if d, err = time.Parse(dateLayout, date); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}
			entry.Date = d
			return runAdd(cmd.Context(), cmd.OutOrStdout(), *dir, entry)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "transaction date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&entry.Name, "name", "", "description (required)")
	cmd.Flags().StringVar(&entry.Amount, "amount", "", "amount as printed, e.g. -1.234,56 (required)")
	cmd.Flags().StringVar(&entry.Category, "category", "", "category hint")
	cmd.Flags().StringVar(&entry.Alias, "alias", "", "alias hint")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runAdd(ctx context.Context, w io.Writer, dir string, entry ledger.ManualEntry) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	txn, added, err := a.ledger.AddManual(ctx, entry)
	if err != nil {
		return err
	}
	if !added {
		fmt.Fprintf(w, "Already recorded: %s\n", txn.ID)
		return nil
	}
	a.commit(ctx, "add: "+txn.Name)
	fmt.Fprintf(w, "Added %s\n", txn.ID)
	return nil
}

func newSearchCommand(dir *string) *cobra.Command {
	var byID bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find transactions by name, or by id or card voucher with --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd.OutOrStdout(), *dir, args[0], byID)
		},
	}

	cmd.Flags().BoolVar(&byID, "id", false, "match the transaction id exactly, then card vouchers")

	return cmd
}

func runSearch(ctx context.Context, w io.Writer, dir, query string, byID bool) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	var found []model.Transaction
	if byID {
		t, ok, err := a.ledger.Find(ctx, query)
		if err != nil {
			return err
		}
		if ok {
			found = append(found, t)
		} else if found, err = a.ledger.ByVoucher(ctx, query); err != nil {
			return err
		}
	} else {
		if found, err = a.ledger.Search(ctx, query); err != nil {
			return err
		}
	}
	if len(found) == 0 {
		fmt.Fprintln(w, "No matches.")
		return nil
	}

	engine, err := a.engine(ctx)
	if err != nil {
		return err
	}
	printRows(w, engine.Palette(), engine.Apply(found))
	return nil
}

func printRows(w io.Writer, p *classify.Palette, rows []classify.Row) {
	for _, r := range rows {
		fmt.Fprintf(w, "%s  %12s  %-40s %s  %s\n",
			r.Date.Format(dateLayout), r.Amount.StringFixed(2), r.Name,
			p.Sprint(r.Category, r.Category), r.ID)
	}
}

func newDeleteCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a transaction from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd.OutOrStdout(), *dir, args[0])
		},
	}
}

func runDelete(ctx context.Context, w io.Writer, dir, txnID string) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	ok, err := a.ledger.Delete(ctx, txnID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no transaction with id %q", txnID)
	}
	a.commit(ctx, "delete: "+txnID)
	fmt.Fprintf(w, "Deleted %s\n", txnID)
	return nil
}
