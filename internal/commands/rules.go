package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/rules"
)

func newRulesCommand(dir *string) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Category and alias rules",
	}
	rulesCmd.AddCommand(newRulesListCommand(dir))
	rulesCmd.AddCommand(newRulesAddCommand(dir))
	return rulesCmd
}

func newRulesListCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list [categories|aliases]",
		Short: "Print rules in application order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []rules.Kind{rules.KindCategories, rules.KindAliases}
			if len(args) > 0 {
				k, err := rules.ParseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []rules.Kind{k}
			}
			return runRulesList(cmd.Context(), cmd.OutOrStdout(), *dir, kinds)
		},
	}
}

func runRulesList(ctx context.Context, w io.Writer, dir string, kinds []rules.Kind) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, kind := range kinds {
		set, err := a.rules.Load(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\n", kind)
		for _, r := range set {
			fmt.Fprintf(w, "  %2d %-20s %s\n", r.ID, r.Label, strings.Join(r.Keywords, ", "))
		}
	}
	return nil
}

func newRulesAddCommand(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <categories|aliases> <label> <keyword>...",
		Short: "Append keywords to a rule, creating it at the end if needed",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := rules.ParseKind(args[0])
			if err != nil {
				return err
			}
			return runRulesAdd(cmd.Context(), cmd.OutOrStdout(), *dir, kind, args[1], args[2:])
		},
	}
}

func runRulesAdd(ctx context.Context, w io.Writer, dir string, kind rules.Kind, label string, keywords []string) error {
	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	set, err := a.rules.AddKeywords(ctx, kind, label, keywords)
	if err != nil {
		return err
	}
	r := set[set.Find(strings.TrimSpace(label))]
	a.commit(ctx, fmt.Sprintf("rules: %s %s", kind, r.Label))
	fmt.Fprintf(w, "%s %q: %s\n", kind, r.Label, strings.Join(r.Keywords, ", "))
	return nil
}
