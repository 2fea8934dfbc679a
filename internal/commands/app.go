package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/pfinance-dev/pfinance/internal/classify"
	"github.com/pfinance-dev/pfinance/internal/config"
	"github.com/pfinance-dev/pfinance/internal/gitops"
	"github.com/pfinance-dev/pfinance/internal/importer"
	"github.com/pfinance-dev/pfinance/internal/ingest"
	"github.com/pfinance-dev/pfinance/internal/ingestlog"
	"github.com/pfinance-dev/pfinance/internal/ledger"
	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/metrics"
	"github.com/pfinance-dev/pfinance/internal/rates"
	"github.com/pfinance-dev/pfinance/internal/rules"
	"github.com/pfinance-dev/pfinance/internal/store"
	"github.com/pfinance-dev/pfinance/internal/store/csvfile"
	"github.com/pfinance-dev/pfinance/internal/store/sheets"
	"github.com/pfinance-dev/pfinance/internal/store/sqlite"
)

// app is the wiring shared by every command that touches the tables.
type app struct {
	root      string
	cfg       *config.Config
	log       zerolog.Logger
	store     store.Store
	close     func() error
	ledger    *ledger.Service
	rules     *rules.Service
	ingestLog *ingestlog.Log
	metrics   *metrics.Metrics
}

// openApp loads <dir>/pfinance.yaml and opens the configured store. The
// returned context carries the logger.
func openApp(ctx context.Context, dir string) (*app, context.Context, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, ctx, fmt.Errorf("resolving path: %w", err)
	}
	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		return nil, ctx, err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx = logger.WithContext(ctx, log)

	st, closeFn, err := openStore(ctx, root, cfg)
	if err != nil {
		return nil, ctx, err
	}
	return &app{
		root:      root,
		cfg:       cfg,
		log:       log,
		store:     st,
		close:     closeFn,
		ledger:    ledger.NewService(st, cfg.Tables.Ledger),
		rules:     rules.NewService(st, cfg.Tables.Categories, cfg.Tables.Aliases),
		ingestLog: ingestlog.New(st, cfg.Tables.IngestLog),
		metrics:   metrics.New(),
	}, ctx, nil
}

// Close releases the store.
func (a *app) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// openStore builds the backend named in cfg.Storage.
func openStore(ctx context.Context, root string, cfg *config.Config) (store.Store, func() error, error) {
	path := config.Resolve(root, cfg.Storage.Path)
	switch cfg.Storage.Backend {
	case "csv":
		return csvfile.New(path), nil, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "sheets":
		st, err := sheets.New(ctx, cfg.Storage.Sheets.SpreadsheetID, config.Resolve(root, cfg.Storage.Sheets.CredentialsFile))
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func (a *app) classifyConfig() classify.Config {
	c := a.cfg.Classify
	return classify.Config{
		DefaultCategory: c.DefaultCategory,
		SuppressLabel:   c.SuppressLabel,
		ExactLabels:     c.ExactLabels,
	}
}

func (a *app) engine(ctx context.Context) (*classify.Engine, error) {
	return classify.Load(ctx, a.classifyConfig(), a.rules)
}

func (a *app) importDir() string {
	return config.Resolve(a.root, a.cfg.Import.Dir)
}

// ingestService wires the parsers from config.
func (a *app) ingestService() (*ingest.Service, error) {
	text, err := importer.NewExtractor(a.cfg.PDF.Extractor, a.cfg.PDF.PDFToTextPath)
	if err != nil {
		return nil, err
	}
	sign, err := importer.ParseSignMode(a.cfg.Wallet.SignMode)
	if err != nil {
		return nil, err
	}

	opts := importer.Options{
		Text:         text,
		RatePair:     a.cfg.Rates.Pair,
		WalletSign:   sign,
		BankDenylist: a.cfg.Import.BankDenylist,
	}
	if a.cfg.Rates.Enabled {
		client := rates.NewClient(a.cfg.Rates.BaseURL, a.cfg.Rates.Timeout, a.cfg.Rates.Retries)
		opts.Rates = a.metrics.Rates(client)
	}

	ic := a.cfg.Import
	return ingest.NewService(a.ledger, importer.DefaultRegistry(opts), ingest.Options{
		Detector: importer.Detector{
			BankMarker:   ic.BankMarker,
			CardMarker:   ic.CardMarker,
			WalletMarker: ic.WalletMarker,
		},
		SnapshotPath:    config.Resolve(a.root, ic.SnapshotPath),
		CredentialsPath: config.Resolve(a.root, ic.CredentialsPath),
		Log:             a.ingestLog,
		Metrics:         a.metrics,
	}), nil
}

// commit records the project directory in git when history is enabled.
// Failures are logged: the tables are already saved.
func (a *app) commit(ctx context.Context, message string) {
	h := a.cfg.History
	if !h.Enabled {
		return
	}
	log := logger.FromContext(ctx)
	if !gitops.IsRepo(a.root) {
		if err := gitops.Init(a.root); err != nil {
			log.Warn().Err(err).Msg("history disabled for this run")
			return
		}
	}
	hash, err := gitops.CommitAll(a.root, message, h.AuthorName, h.AuthorEmail)
	switch {
	case errors.Is(err, gitops.ErrNothingToCommit):
	case err != nil:
		log.Warn().Err(err).Msg("could not commit history")
	default:
		log.Debug().Str("commit", hash).Msg(message)
	}
}
