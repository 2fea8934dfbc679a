package importer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextExtractor returns the text of each page of a PDF, one string per page
// with rows separated by newlines.
type TextExtractor interface {
	Pages(ctx context.Context, data []byte) ([]string, error)
}

// NativeExtractor reads PDFs in-process.
type NativeExtractor struct{}

// Pages extracts page text row by row. Glyphs separated by more than a
// fraction of the font size are joined with a space.
func (NativeExtractor) Pages(ctx context.Context, data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, joinRow(row.Content))
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages, nil
}

func joinRow(texts pdf.TextHorizontal) string {
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].X < sorted[b].X })

	var sb strings.Builder
	var prevEnd float64
	for i, t := range sorted {
		if i > 0 {
			gap := t.X - prevEnd
			if gap > 0.2*t.FontSize && !strings.HasSuffix(sb.String(), " ") && !strings.HasPrefix(t.S, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return strings.TrimSpace(sb.String())
}

// PDFToText shells out to poppler's pdftotext in layout mode.
type PDFToText struct {
	Path string // binary path; "pdftotext" when empty
}

// Pages runs pdftotext and splits its output on form feeds.
func (p PDFToText) Pages(ctx context.Context, data []byte) ([]string, error) {
	bin := p.Path
	if bin == "" {
		bin = "pdftotext"
	}

	tmp, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("staging pdf: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("staging pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("staging pdf: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", tmp.Name(), "-")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages := strings.Split(string(out), "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

// NewExtractor returns the extractor named by kind: "native" or "pdftotext".
func NewExtractor(kind, pdftotextPath string) (TextExtractor, error) {
	switch kind {
	case "", "native":
		return NativeExtractor{}, nil
	case "pdftotext":
		return PDFToText{Path: pdftotextPath}, nil
	}
	return nil, fmt.Errorf("unknown pdf extractor %q", kind)
}

// StaticText serves fixed page text. Tests and text dumps use it in place of
// a real PDF.
type StaticText []string

// Pages returns the fixed pages.
func (s StaticText) Pages(context.Context, []byte) ([]string, error) {
	return s, nil
}

// splitLines concatenates pages and returns the non-blank lines.
func splitLines(pages []string) []string {
	var lines []string
	for _, p := range pages {
		for _, l := range strings.Split(strings.ReplaceAll(p, "\r\n", "\n"), "\n") {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, l)
			}
		}
	}
	return lines
}
