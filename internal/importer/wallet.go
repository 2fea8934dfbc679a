package importer

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pfinance-dev/pfinance/internal/logger"
	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/money"
)

// SignMode selects how wallet amounts are signed.
type SignMode string

const (
	// SignNegate negates every amount, sent or received.
	SignNegate SignMode = "negate"
	// SignDirectional makes sent transfers negative and received positive.
	SignDirectional SignMode = "directional"
)

// ParseSignMode validates a configured sign mode; "" means SignNegate.
func ParseSignMode(s string) (SignMode, error) {
	switch SignMode(s) {
	case "", SignNegate:
		return SignNegate, nil
	case SignDirectional:
		return SignDirectional, nil
	}
	return "", fmt.Errorf("unknown wallet sign mode %q", s)
}

// WalletParser parses the MercadoPago account statement PDF.
type WalletParser struct {
	Text TextExtractor
	Sign SignMode
}

const (
	walletSection  = "DETALLE DE MOVIMIENTOS"
	walletSent     = "Transferencia enviada"
	walletReceived = "Transferencia recibida"
	walletDate     = "02-01-2006"
)

var (
	walletDateRe = regexp.MustCompile(`\d{2}-\d{2}-\d{4}`)
	walletIDRe   = regexp.MustCompile(`\d{8,}`)
	walletLabel  = regexp.MustCompile(walletSent + "|" + walletReceived)
)

// Kind returns KindWallet.
func (p *WalletParser) Kind() Kind { return KindWallet }

// Parse extracts sent and received transfers.
func (p *WalletParser) Parse(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	text := p.Text
	if text == nil {
		text = NativeExtractor{}
	}
	pages, err := text.Pages(ctx, data)
	if err != nil {
		return nil, err
	}
	return p.parseLines(ctx, splitLines(pages))
}

func (p *WalletParser) parseLines(ctx context.Context, lines []string) (*Result, error) {
	log := logger.FromContext(ctx)

	start := -1
	for i, l := range lines {
		if strings.Contains(l, walletSection) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, &TableNotFoundError{Anchor: fmt.Sprintf("%q section", walletSection)}
	}

	res := &Result{}
	for _, chunk := range walletChunks(lines[start:]) {
		raw := strings.Join(chunk, " / ")
		if !strings.Contains(raw, walletSent) && !strings.Contains(raw, walletReceived) {
			res.filter()
			continue
		}
		txn, err := p.parseChunk(chunk)
		if err != nil {
			logSkip(log, KindWallet, raw, err)
			res.skip(raw, err)
			continue
		}
		res.Transactions = append(res.Transactions, txn)
	}
	return res, nil
}

// walletChunks groups lines into movements, each closed by a line holding a
// DD-MM-YYYY date. Trailing lines without a date are dropped.
func walletChunks(lines []string) [][]string {
	var chunks [][]string
	var cur []string
	for _, l := range lines {
		cur = append(cur, l)
		if walletDateRe.MatchString(l) {
			chunks = append(chunks, cur)
			cur = nil
		}
	}
	return chunks
}

func (p *WalletParser) parseChunk(chunk []string) (model.Transaction, error) {
	raw := strings.Join(chunk, " / ")

	var dateText, amountText, txnID, labelLine string
	for _, l := range chunk {
		if dateText == "" {
			dateText = walletDateRe.FindString(l)
		}
		if amountText == "" && strings.Contains(l, "$") {
			segs := strings.Split(l, "$")
			amountText = strings.TrimSpace(segs[len(segs)-2])
		}
		if txnID == "" {
			txnID = walletIDRe.FindString(l)
		}
		if labelLine == "" && walletLabel.MatchString(l) {
			labelLine = l
		}
	}

	date, err := time.Parse(walletDate, dateText)
	if err != nil {
		return model.Transaction{}, malformed(raw, "date", err)
	}
	if amountText == "" {
		return model.Transaction{}, malformed(raw, "amount", nil)
	}
	value, err := money.Parse(amountText)
	if err != nil {
		return model.Transaction{}, malformed(raw, "amount", err)
	}
	if txnID == "" {
		return model.Transaction{}, malformed(raw, "id", nil)
	}

	amount := value.Neg()
	if p.Sign == SignDirectional {
		amount = value.Abs()
		if strings.Contains(raw, walletSent) {
			amount = amount.Neg()
		}
	}

	return model.Transaction{
		Date:   model.Day(date),
		Amount: amount,
		ID:     txnID,
		Name:   walletName(labelLine, txnID),
		Source: model.SourceWallet,
	}, nil
}

// walletName keeps the text after the transfer label, up to the first "$",
// without the id and punctuation.
func walletName(line, txnID string) string {
	parts := walletLabel.Split(line, -1)
	name := parts[len(parts)-1]
	name, _, _ = strings.Cut(name, "$")
	for _, s := range []string{txnID, ",", "."} {
		name = strings.ReplaceAll(name, s, "")
	}
	return strings.TrimSpace(name)
}
