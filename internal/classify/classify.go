// Package classify labels ledger rows at read time from ordered keyword rules.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/rules"
)

// Config holds the labels the engine treats specially.
type Config struct {
	DefaultCategory string   // given to rows no category rule matches
	SuppressLabel   string   // rows in this category are left out of reports
	ExactLabels     []string // labels whose keywords must equal the whole name
}

// DefaultConfig returns the stock labels.
func DefaultConfig() Config {
	return Config{DefaultCategory: "otros", SuppressLabel: "ignore", ExactLabels: []string{"ignore"}}
}

// RuleSource loads rule tables.
type RuleSource interface {
	Load(ctx context.Context, kind rules.Kind) (rules.Set, error)
}

// Row is a transaction with its derived labels. It is never persisted.
type Row struct {
	model.Transaction
	Category   string
	Alias      string
	Color      string
	Suppressed bool
}

// Engine applies a category and an alias rule set. Build one per session
// and call Reload after the rule tables change.
type Engine struct {
	cfg        Config
	exact      map[string]bool
	categories rules.Set
	aliases    rules.Set
	palette    *Palette
}

// NewEngine creates an Engine from already loaded rule sets.
func NewEngine(cfg Config, categories, aliases rules.Set) *Engine {
	e := &Engine{cfg: cfg, exact: make(map[string]bool, len(cfg.ExactLabels))}
	for _, l := range cfg.ExactLabels {
		e.exact[l] = true
	}
	e.set(categories, aliases)
	return e
}

// Load creates an Engine from the stored rule tables.
func Load(ctx context.Context, cfg Config, src RuleSource) (*Engine, error) {
	e := NewEngine(cfg, nil, nil)
	if err := e.Reload(ctx, src); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads both rule tables.
func (e *Engine) Reload(ctx context.Context, src RuleSource) error {
	cats, err := src.Load(ctx, rules.KindCategories)
	if err != nil {
		return fmt.Errorf("reloading categories: %w", err)
	}
	aliases, err := src.Load(ctx, rules.KindAliases)
	if err != nil {
		return fmt.Errorf("reloading aliases: %w", err)
	}
	e.set(cats, aliases)
	return nil
}

func (e *Engine) set(categories, aliases rules.Set) {
	e.categories = categories
	e.aliases = aliases
	e.palette = NewPalette(categories.Labels(), e.cfg.DefaultCategory)
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Palette returns the category colours of the current rule set.
func (e *Engine) Palette() *Palette { return e.palette }

// Apply labels every transaction. For each rule in order and each keyword in
// order, every row whose name contains the keyword (ignoring case) takes the
// rule's label, so the last matching rule wins. Rows no rule matches keep
// their stored hint, or the default.
func (e *Engine) Apply(txns []model.Transaction) []Row {
	names := make([]string, len(txns))
	for i, t := range txns {
		names[i] = strings.ToLower(strings.TrimSpace(t.Name))
	}
	cats := e.label(names, e.categories)
	aliases := e.label(names, e.aliases)

	rows := make([]Row, len(txns))
	for i, t := range txns {
		cat := cats[i]
		if cat == "" {
			cat = t.CategoryHint
		}
		if cat == "" {
			cat = e.cfg.DefaultCategory
		}
		alias := aliases[i]
		if alias == "" {
			alias = t.AliasHint
		}
		rows[i] = Row{
			Transaction: t,
			Category:    cat,
			Alias:       alias,
			Color:       e.palette.Name(cat),
			Suppressed:  cat == e.cfg.SuppressLabel,
		}
	}
	return rows
}

func (e *Engine) label(names []string, set rules.Set) []string {
	labels := make([]string, len(names))
	for _, r := range set {
		exact := e.exact[r.Label]
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			for i, name := range names {
				if exact && name == kw || !exact && strings.Contains(name, kw) {
					labels[i] = r.Label
				}
			}
		}
	}
	return labels
}
