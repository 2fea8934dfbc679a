package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pfinance-dev/pfinance/internal/classify"
	"github.com/pfinance-dev/pfinance/internal/ingest"
	"github.com/pfinance-dev/pfinance/internal/ingestlog"
	"github.com/pfinance-dev/pfinance/internal/ledger"
	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/rules"
	"github.com/pfinance-dev/pfinance/internal/store"
)

type transactionJSON struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Installment string          `json:"installment_label,omitempty"`
	Source      string          `json:"source,omitempty"`
	Category    string          `json:"category,omitempty"`
	Alias       string          `json:"alias,omitempty"`
	Color       string          `json:"color,omitempty"`
	Suppressed  bool            `json:"suppressed,omitempty"`
}

func rowJSON(r classify.Row) transactionJSON {
	return transactionJSON{
		ID:          r.ID,
		Date:        r.Date.Format("2006-01-02"),
		Name:        r.Name,
		Amount:      r.Amount,
		Installment: r.Installment,
		Source:      string(r.Source),
		Category:    r.Category,
		Alias:       r.Alias,
		Color:       r.Color,
		Suppressed:  r.Suppressed,
	}
}

// transaction converts an edited row. Category and alias become the stored
// hints.
func (t transactionJSON) transaction() (model.Transaction, error) {
	date, err := ledger.ParseDate(t.Date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: row %q: %w", ledger.ErrInvalid, t.ID, err)
	}
	return model.Transaction{
		Date:         date,
		Amount:       t.Amount,
		ID:           t.ID,
		Name:         t.Name,
		Installment:  t.Installment,
		Source:       model.Source(t.Source),
		CategoryHint: t.Category,
		AliasHint:    t.Alias,
	}, nil
}

type totalJSON struct {
	Key   string          `json:"key"`
	Color string          `json:"color"`
	Sum   decimal.Decimal `json:"sum"`
	Count int             `json:"count"`
}

type skipJSON struct {
	Record string `json:"record"`
	Reason string `json:"reason"`
}

type outcomeJSON struct {
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Added      int        `json:"added"`
	Duplicates int        `json:"duplicates"`
	Skipped    int        `json:"skipped"`
	Filtered   int        `json:"filtered"`
	Skips      []skipJSON `json:"skips,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type summaryJSON struct {
	RunID  string        `json:"run_id"`
	Before int           `json:"before"`
	After  int           `json:"after"`
	Files  []outcomeJSON `json:"files"`
	Error  string        `json:"error,omitempty"`
}

type logEntryJSON struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	File       string    `json:"file"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Added      int       `json:"added"`
	Duplicates int       `json:"duplicates"`
	Skipped    int       `json:"skipped"`
	Filtered   int       `json:"filtered"`
	Details    string    `json:"details,omitempty"`
}

func summaryToJSON(sum *ingest.Summary) summaryJSON {
	out := summaryJSON{RunID: sum.RunID, Before: sum.Before, After: sum.After, Files: []outcomeJSON{}}
	for _, f := range sum.Files {
		o := outcomeJSON{
			Name:       f.Name,
			Kind:       string(f.Kind),
			Status:     string(f.Status),
			Added:      f.Added,
			Duplicates: f.Duplicates,
			Skipped:    f.Skipped,
			Filtered:   f.Filtered,
			Warnings:   f.Warnings,
		}
		if f.Err != nil {
			o.Error = f.Err.Error()
		}
		for _, sk := range f.Skips {
			reason := ""
			if sk.Reason != nil {
				reason = sk.Reason.Error()
			}
			o.Skips = append(o.Skips, skipJSON{Record: sk.Record, Reason: reason})
		}
		out.Files = append(out.Files, o)
	}
	return out
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, `no files in field "files"`)
		return
	}
	uploads := make([]ingest.Upload, len(headers))
	for i, fh := range headers {
		uploads[i] = ingest.Upload{Name: fh.Filename, Open: func() (io.ReadCloser, error) { return fh.Open() }}
	}

	sum, err := s.ingest.Ingest(r.Context(), uploads)
	body := summaryToJSON(sum)
	if err != nil {
		body.Error = err.Error()
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrConflict) {
			status = http.StatusConflict
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", key, v)
	}
	return t, nil
}

// classified loads the ledger and labels it with the current rules,
// restricted to the from/to query range.
func (s *Server) classified(r *http.Request) ([]classify.Row, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrInvalid, err)
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrInvalid, err)
	}

	l, err := s.ledger.Load(r.Context())
	if err != nil {
		return nil, err
	}
	engine, err := classify.Load(r.Context(), s.classify, s.rules)
	if err != nil {
		return nil, err
	}
	return classify.Between(engine.Apply(l.Transactions), from, to), nil
}

// handleListTransactions returns the raw ledger with derived labels.
// Suppressed rows are included unless visible=true.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.classified(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q := r.URL.Query()
	if q.Get("visible") == "true" {
		rows = classify.Visible(rows)
	}
	name := strings.ToLower(q.Get("q"))
	category := q.Get("category")
	voucher := q.Get("voucher")

	out := []transactionJSON{}
	for _, row := range rows {
		if name != "" && !strings.Contains(strings.ToLower(row.Name), name) {
			continue
		}
		if category != "" && row.Category != category {
			continue
		}
		if voucher != "" && !ledger.HasVoucher(row.Transaction, voucher) {
			continue
		}
		out = append(out, rowJSON(row))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleIngestLog lists ingest log entries, oldest first, optionally for one
// run.
func (s *Server) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, http.StatusNotFound, "ingest log is not configured")
		return
	}
	var (
		entries []ingestlog.Entry
		err     error
	)
	if run := r.URL.Query().Get("run"); run != "" {
		entries, err = s.log.Run(r.Context(), run)
	} else {
		entries, err = s.log.Read(r.Context())
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]logEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntryJSON{
			Timestamp:  e.Timestamp,
			RunID:      e.RunID,
			File:       e.File,
			Kind:       e.Kind,
			Status:     e.Status,
			Added:      e.Added,
			Duplicates: e.Duplicates,
			Skipped:    e.Skipped,
			Filtered:   e.Filtered,
			Details:    e.Details,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "id")
	txn, ok, err := s.ledger.Find(r.Context(), txnID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("transaction %q not found", txnID))
		return
	}
	engine, err := classify.Load(r.Context(), s.classify, s.rules)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rowJSON(engine.Apply([]model.Transaction{txn})[0]))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "id")
	found, err := s.ledger.Delete(r.Context(), txnID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("transaction %q not found", txnID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type manualJSON struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Alias    string `json:"alias"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req manualJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txn, added, err := s.ledger.AddManual(r.Context(), ledger.ManualEntry{
		Date:     date,
		Name:     req.Name,
		Amount:   req.Amount,
		Category: req.Category,
		Alias:    req.Alias,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"id": txn.ID, "added": added})
}

func (s *Server) handleSaveEdits(w http.ResponseWriter, r *http.Request) {
	var req []transactionJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	edited := make([]model.Transaction, 0, len(req))
	for _, tj := range req {
		txn, err := tj.transaction()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		edited = append(edited, txn)
	}
	l, err := s.ledger.SaveEdits(r.Context(), edited)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": len(l.Transactions), "edited": len(edited)})
}

// handleReport totals visible rows per category, or per alias inside one
// category when category is set.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.classified(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var totals []classify.Total
	if c := r.URL.Query().Get("category"); c != "" {
		totals = classify.Breakdown(rows, c)
	} else {
		totals = classify.Summarize(rows)
	}

	out := []totalJSON{}
	sum := decimal.Zero
	for _, t := range totals {
		out = append(out, totalJSON{Key: t.Key, Color: t.Color, Sum: t.Sum, Count: t.Count})
		sum = sum.Add(t.Sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{"totals": out, "total": sum})
}

type ruleJSON struct {
	ID       int      `json:"id"`
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
}

func rulesJSON(set rules.Set) []ruleJSON {
	out := make([]ruleJSON, len(set))
	for i, rule := range set {
		kws := rule.Keywords
		if kws == nil {
			kws = []string{}
		}
		out[i] = ruleJSON{ID: rule.ID, Label: rule.Label, Keywords: kws}
	}
	return out
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	kind, err := rules.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	set, err := s.rules.Load(r.Context(), kind)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rulesJSON(set))
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	kind, err := rules.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req struct {
		Label    string   `json:"label"`
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	set, err := s.rules.AddKeywords(r.Context(), kind, req.Label, req.Keywords)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rulesJSON(set))
}
