// Package rules stores the ordered keyword tables that drive classification.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pfinance-dev/pfinance/internal/store"
)

// ErrInvalid wraps rejected rule input.
var ErrInvalid = errors.New("invalid rule")

// Kind names one of the two rule tables.
type Kind string

const (
	KindCategories Kind = "categories"
	KindAliases    Kind = "aliases"
)

// ParseKind accepts "categories"/"category" and "aliases"/"alias".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "categories", "category", "tags":
		return KindCategories, nil
	case "aliases", "alias":
		return KindAliases, nil
	}
	return "", fmt.Errorf("unknown rule kind %q", s)
}

// Rule assigns Label to every transaction whose name contains one of Keywords.
type Rule struct {
	ID       int
	Label    string
	Keywords []string
}

// Set is a rule table in application order.
type Set []Rule

// Labels returns the rule labels in order.
func (s Set) Labels() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Label
	}
	return out
}

// Find returns the index of the rule with the given label, or -1.
func (s Set) Find(label string) int {
	for i, r := range s {
		if r.Label == label {
			return i
		}
	}
	return -1
}

// Service loads and saves rule tables.
type Service struct {
	store  store.Store
	tables map[Kind]string
}

// NewService creates a rule Service. categories and aliases are table names.
func NewService(st store.Store, categories, aliases string) *Service {
	return &Service{store: st, tables: map[Kind]string{KindCategories: categories, KindAliases: aliases}}
}

func (s *Service) table(kind Kind) (string, error) {
	name, ok := s.tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown rule kind %q", kind)
	}
	return name, nil
}

func (s *Service) load(ctx context.Context, kind Kind) (Set, string, error) {
	name, err := s.table(kind)
	if err != nil {
		return nil, "", err
	}
	t, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, "", fmt.Errorf("loading %s rules: %w", kind, err)
	}
	set, err := Decode(t)
	if err != nil {
		return nil, "", fmt.Errorf("decoding %s rules: %w", kind, err)
	}
	return set, t.Version, nil
}

// Load returns the rule table of the given kind ordered by id.
func (s *Service) Load(ctx context.Context, kind Kind) (Set, error) {
	set, _, err := s.load(ctx, kind)
	return set, err
}

// Save replaces the whole rule table. Ids are renumbered to match order.
func (s *Service) Save(ctx context.Context, kind Kind, set Set) error {
	_, version, err := s.load(ctx, kind)
	if err != nil {
		return err
	}
	return s.save(ctx, kind, set, version)
}

func (s *Service) save(ctx context.Context, kind Kind, set Set, version string) error {
	name, err := s.table(kind)
	if err != nil {
		return err
	}
	for i := range set {
		set[i].ID = i
	}
	t := Encode(set)
	t.Version = version
	if err := s.store.Save(ctx, name, t); err != nil {
		return fmt.Errorf("saving %s rules: %w", kind, err)
	}
	return nil
}

// AddKeywords appends keywords to the rule labelled label, creating the rule
// at the end of the table when it does not exist.
func (s *Service) AddKeywords(ctx context.Context, kind Kind, label string, keywords []string) (Set, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("%w: label is empty", ErrInvalid)
	}
	set, version, err := s.load(ctx, kind)
	if err != nil {
		return nil, err
	}

	if i := set.Find(label); i >= 0 {
		set[i].Keywords = SplitKeywords(JoinKeywords(append(set[i].Keywords, keywords...)))
	} else {
		set = append(set, Rule{Label: label, Keywords: SplitKeywords(JoinKeywords(keywords))})
	}

	if err := s.save(ctx, kind, set, version); err != nil {
		return nil, err
	}
	return set, nil
}
