package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file at the project root.
const FileName = "pfinance.yaml"

// Config represents the top-level pfinance.yaml configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Tables   TablesConfig   `yaml:"tables"`
	Classify ClassifyConfig `yaml:"classify"`
	Rates    RatesConfig    `yaml:"rates"`
	Import   ImportConfig   `yaml:"import"`
	PDF      PDFConfig      `yaml:"pdf"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	History  HistoryConfig  `yaml:"history"`
}

// StorageConfig selects the table backend.
type StorageConfig struct {
	Backend string       `yaml:"backend"` // csv, sqlite or sheets
	Path    string       `yaml:"path"`    // csv directory or sqlite file
	Sheets  SheetsConfig `yaml:"sheets,omitempty"`
}

// SheetsConfig locates the Google spreadsheet backend.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// TablesConfig names the logical tables.
type TablesConfig struct {
	Ledger     string `yaml:"ledger"`
	Categories string `yaml:"categories"`
	Aliases    string `yaml:"aliases"`
	IngestLog  string `yaml:"ingest_log"`
}

// ClassifyConfig controls labels with special meaning.
type ClassifyConfig struct {
	DefaultCategory string   `yaml:"default_category"`
	SuppressLabel   string   `yaml:"suppress_label"`
	ExactLabels     []string `yaml:"exact_labels"`
}

// RatesConfig configures the exchange-rate lookup for USD card rows.
type RatesConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Pair    string        `yaml:"pair"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// ImportConfig controls upload detection and maintenance destinations.
type ImportConfig struct {
	Dir             string   `yaml:"dir"`
	BankMarker      string   `yaml:"bank_marker"`
	CardMarker      string   `yaml:"card_marker"`
	WalletMarker    string   `yaml:"wallet_marker"`
	SnapshotPath    string   `yaml:"snapshot_path"`
	CredentialsPath string   `yaml:"credentials_path"`
	BankDenylist    []string `yaml:"bank_denylist,omitempty"` // empty keeps the built-in list
}

// PDFConfig selects the PDF text extractor.
type PDFConfig struct {
	Extractor     string `yaml:"extractor"` // native or pdftotext
	PDFToTextPath string `yaml:"pdftotext_path,omitempty"`
}

// WalletConfig controls wallet amount signs.
type WalletConfig struct {
	SignMode string `yaml:"sign_mode"` // negate or directional
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// HistoryConfig commits the project directory after every change.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a pfinance.yaml file from disk. Fields absent from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "csv",
			Path:    "data",
		},
		Tables: TablesConfig{
			Ledger:     "movimientos",
			Categories: "tags",
			Aliases:    "alias",
			IngestLog:  "ingest_log",
		},
		Classify: ClassifyConfig{
			DefaultCategory: "otros",
			SuppressLabel:   "ignore",
			ExactLabels:     []string{"ignore"},
		},
		Rates: RatesConfig{
			Enabled: true,
			BaseURL: "https://dolarapi.com/v1/dolares",
			Pair:    "blue",
			Timeout: 5 * time.Second,
			Retries: 1,
		},
		Import: ImportConfig{
			Dir:             "import",
			BankMarker:      "movimientos",
			CardMarker:      "Resumen de tarjeta de crédito",
			WalletMarker:    "download",
			SnapshotPath:    "data/finance.db",
			CredentialsPath: "credentials.json",
		},
		PDF: PDFConfig{
			Extractor: "native",
		},
		Wallet: WalletConfig{
			SignMode: "negate",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			AuthorName:  "pfinance",
			AuthorEmail: "pfinance@localhost",
		},
	}
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "csv", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend))
		}
	case "sheets":
		if c.Storage.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("storage.sheets.spreadsheet_id is required for the sheets backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	seen := map[string]string{}
	for key, name := range map[string]string{
		"ledger":     c.Tables.Ledger,
		"categories": c.Tables.Categories,
		"aliases":    c.Tables.Aliases,
		"ingest_log": c.Tables.IngestLog,
	} {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("tables.%s is empty", key))
			continue
		}
		if other, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("tables.%s and tables.%s share the name %q", key, other, name))
		}
		seen[name] = key
	}

	if c.Classify.DefaultCategory == "" {
		errs = append(errs, errors.New("classify.default_category is empty"))
	}
	if c.Rates.Enabled && c.Rates.BaseURL == "" {
		errs = append(errs, errors.New("rates.base_url is required when rates are enabled"))
	}
	if c.Rates.Timeout < 0 || c.Rates.Retries < 0 {
		errs = append(errs, errors.New("rates.timeout and rates.retries must not be negative"))
	}

	switch c.PDF.Extractor {
	case "", "native", "pdftotext":
	default:
		errs = append(errs, fmt.Errorf("unknown pdf.extractor %q", c.PDF.Extractor))
	}
	switch c.Wallet.SignMode {
	case "", "negate", "directional":
	default:
		errs = append(errs, fmt.Errorf("unknown wallet.sign_mode %q", c.Wallet.SignMode))
	}

	if c.History.Enabled {
		if c.Storage.Backend == "sheets" {
			errs = append(errs, errors.New("history needs a local storage backend"))
		}
		if c.History.AuthorName == "" || c.History.AuthorEmail == "" {
			errs = append(errs, errors.New("history.author_name and history.author_email are required"))
		}
	}

	return errors.Join(errs...)
}

// Resolve returns p relative to root unless it is already absolute.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
