package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pfinance-dev/pfinance/internal/rates"
)

// Kind names a statement layout or a maintenance upload.
type Kind string

const (
	KindUnknown     Kind = ""
	KindBank        Kind = "bank"
	KindCard        Kind = "card"
	KindWallet      Kind = "wallet"
	KindSnapshot    Kind = "snapshot"
	KindCredentials Kind = "credentials"
)

// Maintenance reports whether files of kind k are copied verbatim instead of
// parsed.
func (k Kind) Maintenance() bool {
	return k == KindSnapshot || k == KindCredentials
}

// Parser converts one statement file into transactions.
type Parser interface {
	Parse(ctx context.Context, r io.Reader) (*Result, error)
	Kind() Kind
}

// Registry holds one parser per statement kind.
type Registry struct {
	parsers map[Kind]Parser
}

// FileInfo describes a file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[Kind]Parser)}
}

// Register adds a parser. Panics on duplicate kind.
func (r *Registry) Register(p Parser) {
	key := Kind(strings.ToLower(string(p.Kind())))
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser kind: " + string(key))
	}
	r.parsers[key] = p
}

// Get returns the parser for kind, or nil.
func (r *Registry) Get(kind Kind) Parser {
	return r.parsers[Kind(strings.ToLower(string(kind)))]
}

// Options configures the built-in parsers.
type Options struct {
	Text         TextExtractor
	Rates        rates.Provider
	RatePair     string
	WalletSign   SignMode
	BankDenylist []string
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(&BankParser{Denylist: opts.BankDenylist})
	r.Register(&CardParser{Text: opts.Text, Rates: opts.Rates, Pair: opts.RatePair})
	r.Register(&WalletParser{Text: opts.Text, Sign: opts.WalletSign})
	return r
}

// processedDir is the subdirectory of the import directory that ingested
// files are moved to.
const processedDir = "processed"

// acceptedExts are the upload extensions, statements and maintenance files.
var acceptedExts = map[string]bool{".xlsx": true, ".xls": true, ".pdf": true, ".db": true, ".json": true}

// Accepted reports whether name has an upload extension.
func Accepted(name string) bool {
	return acceptedExts[strings.ToLower(filepath.Ext(name))]
}

// Scan returns uploadable files directly inside dir.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !Accepted(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from dir to dir/processed/.
func MarkProcessed(dir, fileName string) error {
	src := filepath.Join(dir, fileName)
	dstDir := filepath.Join(dir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// CopyVerbatim writes a maintenance upload to its fixed destination.
func CopyVerbatim(r io.Reader, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", tmp, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("replacing %s: %w", dst, err)
	}
	return n, nil
}
