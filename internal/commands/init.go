package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfinance-dev/pfinance/internal/config"
	"github.com/pfinance-dev/pfinance/internal/rules"
)

func newInitCommand() *cobra.Command {
	var (
		backend string
		history bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new pfinance project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			if err := runInit(cmd.Context(), absDir, backend, history); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized pfinance project at %s\n", absDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "csv", "table backend: csv or sqlite")
	cmd.Flags().BoolVar(&history, "history", false, "commit the project to git after every change")

	return cmd
}

func runInit(ctx context.Context, dir, backend string, history bool) error {
	cfg := config.Default()
	switch backend {
	case "csv":
	case "sqlite":
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = filepath.Join("data", "pfinance.db")
	default:
		return fmt.Errorf("init supports the csv and sqlite backends, got %q", backend)
	}
	cfg.History.Enabled = history

	dirs := []string{
		"data",
		cfg.Import.Dir,
		filepath.Join(cfg.Import.Dir, "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// An existing config is kept so init can be rerun to restore seed rules.
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
	}

	a, ctx, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()

	seeds := map[rules.Kind]rules.Set{
		rules.KindCategories: rules.DefaultCategories(),
		rules.KindAliases:    rules.DefaultAliases(),
	}
	for _, kind := range []rules.Kind{rules.KindCategories, rules.KindAliases} {
		set, err := a.rules.Load(ctx, kind)
		if err != nil {
			return err
		}
		if len(set) > 0 {
			continue
		}
		if err := a.rules.Save(ctx, kind, seeds[kind]); err != nil {
			return fmt.Errorf("seeding %s: %w", kind, err)
		}
	}

	ic := a.cfg.Import
	gitignore := strings.Join([]string{ic.Dir + "/", ic.CredentialsPath, ic.SnapshotPath}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	a.commit(ctx, "init: pfinance project")
	return nil
}
