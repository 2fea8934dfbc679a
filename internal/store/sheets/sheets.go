// Package sheets stores each table as one worksheet of a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/pfinance-dev/pfinance/internal/store"
)

const backupSuffix = "__backup"

// api is the subset of the Sheets service the store needs.
type api interface {
	Sheets(ctx context.Context, spreadsheetID string) ([]*sheetsapi.SheetProperties, error)
	Values(ctx context.Context, spreadsheetID, rangeA1 string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, rangeA1 string, values [][]interface{}) error
	Batch(ctx context.Context, spreadsheetID string, reqs ...*sheetsapi.Request) (*sheetsapi.BatchUpdateSpreadsheetResponse, error)
}

// Store is a Google Sheets-backed store.Store.
type Store struct {
	api           api
	spreadsheetID string
}

// New connects to the Sheets API with a service-account credentials file.
func New(ctx context.Context, spreadsheetID, credentialsFile string) (*Store, error) {
	svc, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(credentialsFile), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	return &Store{api: &serviceAPI{svc: svc}, spreadsheetID: spreadsheetID}, nil
}

func (s *Store) find(ctx context.Context, title string) (*sheetsapi.SheetProperties, []*sheetsapi.SheetProperties, error) {
	props, err := s.api.Sheets(ctx, s.spreadsheetID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing worksheets: %w", err)
	}
	for _, p := range props {
		if p.Title == title {
			return p, props, nil
		}
	}
	return nil, props, nil
}

// locate finds the worksheet for name and recovers from an interrupted
// save. A backup with no primary, or with a primary that was added but never
// written, holds the table and is renamed back.
func (s *Store) locate(ctx context.Context, name string) (*sheetsapi.SheetProperties, []*sheetsapi.SheetProperties, error) {
	sheet, all, err := s.find(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	var backup *sheetsapi.SheetProperties
	for _, p := range all {
		if p.Title == name+backupSuffix {
			backup = p
		}
	}
	if backup == nil {
		return sheet, all, nil
	}

	if sheet != nil {
		values, err := s.api.Values(ctx, s.spreadsheetID, rangeOf(name))
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if len(values) > 0 {
			return sheet, all, nil
		}
		if _, err := s.api.Batch(ctx, s.spreadsheetID, deleteSheet(sheet.SheetId)); err != nil {
			return nil, nil, fmt.Errorf("removing unwritten %s: %w", name, err)
		}
		all = without(all, sheet.SheetId)
	}

	if _, err := s.api.Batch(ctx, s.spreadsheetID, renameSheet(backup.SheetId, name)); err != nil {
		return nil, nil, fmt.Errorf("restoring backup of %s: %w", name, err)
	}
	backup.Title = name
	return backup, all, nil
}

func without(props []*sheetsapi.SheetProperties, id int64) []*sheetsapi.SheetProperties {
	out := make([]*sheetsapi.SheetProperties, 0, len(props))
	for _, p := range props {
		if p.SheetId != id {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the worksheet named name. A missing worksheet is an empty table.
func (s *Store) Load(ctx context.Context, name string) (*store.Table, error) {
	sheet, _, err := s.locate(ctx, name)
	if err != nil {
		return nil, err
	}
	if sheet == nil {
		return &store.Table{}, nil
	}
	return s.read(ctx, name)
}

func (s *Store) read(ctx context.Context, name string) (*store.Table, error) {
	values, err := s.api.Values(ctx, s.spreadsheetID, rangeOf(name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	t := &store.Table{}
	if len(values) > 0 {
		t.Columns = cells(values[0])
		for _, v := range values[1:] {
			row := make([]string, len(t.Columns))
			copy(row, cells(v))
			t.Rows = append(t.Rows, row)
		}
	}
	t.Version = store.Fingerprint(t.Columns, t.Rows)
	return t, nil
}

// Save replaces the worksheet. The existing sheet is renamed to a backup,
// a fresh sheet is written, and the backup is dropped. If writing fails the
// partial sheet is removed and the backup renamed back.
func (s *Store) Save(ctx context.Context, name string, t *store.Table) error {
	if err := store.Normalize(t); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}

	sheet, all, err := s.locate(ctx, name)
	if err != nil {
		return err
	}

	current := ""
	if sheet != nil {
		cur, err := s.read(ctx, name)
		if err != nil {
			return err
		}
		current = cur.Version
	}
	if current != t.Version {
		return fmt.Errorf("saving %s: %w", name, store.ErrConflict)
	}

	// The primary exists here, so a leftover backup is older than it and
	// would block the rename.
	for _, p := range all {
		if p.Title == name+backupSuffix {
			if _, err := s.api.Batch(ctx, s.spreadsheetID, deleteSheet(p.SheetId)); err != nil {
				return fmt.Errorf("removing stale backup of %s: %w", name, err)
			}
		}
	}

	if sheet != nil {
		if _, err := s.api.Batch(ctx, s.spreadsheetID, renameSheet(sheet.SheetId, name+backupSuffix)); err != nil {
			return fmt.Errorf("backing up %s: %w", name, err)
		}
	}

	restore := func(cause error) error {
		if sheet == nil {
			return cause
		}
		if _, err := s.api.Batch(ctx, s.spreadsheetID, renameSheet(sheet.SheetId, name)); err != nil {
			return fmt.Errorf("%w (restore failed: %v)", cause, err)
		}
		return cause
	}

	resp, err := s.api.Batch(ctx, s.spreadsheetID, &sheetsapi.Request{
		AddSheet: &sheetsapi.AddSheetRequest{Properties: &sheetsapi.SheetProperties{
			Title:          name,
			GridProperties: gridFor(t),
		}},
	})
	if err != nil {
		return restore(fmt.Errorf("adding sheet %s: %w", name, err))
	}
	newID := addedSheetID(resp)

	if err := s.api.Update(ctx, s.spreadsheetID, rangeOf(name)+"!A1", values(t)); err != nil {
		cause := fmt.Errorf("writing %s: %w", name, err)
		if _, derr := s.api.Batch(ctx, s.spreadsheetID, deleteSheet(newID)); derr != nil {
			return fmt.Errorf("%w (cleanup failed: %v)", cause, derr)
		}
		return restore(cause)
	}

	if sheet != nil {
		if _, err := s.api.Batch(ctx, s.spreadsheetID, deleteSheet(sheet.SheetId)); err != nil {
			return fmt.Errorf("dropping backup of %s: %w", name, err)
		}
	}
	t.Version = store.Fingerprint(t.Columns, t.Rows)
	return nil
}

// gridFor sizes a new sheet to hold t. The API default is 1000x26.
func gridFor(t *store.Table) *sheetsapi.GridProperties {
	return &sheetsapi.GridProperties{
		RowCount:    int64(len(t.Rows) + 1),
		ColumnCount: int64(max(len(t.Columns), 1)),
	}
}

func rangeOf(name string) string {
	return "'" + name + "'"
}

func cells(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func values(t *store.Table) [][]interface{} {
	out := make([][]interface{}, 0, len(t.Rows)+1)
	out = append(out, toInterfaces(t.Columns))
	for _, r := range t.Rows {
		out = append(out, toInterfaces(r))
	}
	return out
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, c := range row {
		out[i] = c
	}
	return out
}

func addedSheetID(resp *sheetsapi.BatchUpdateSpreadsheetResponse) int64 {
	if resp == nil || len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0
	}
	return resp.Replies[0].AddSheet.Properties.SheetId
}

// SheetId 0 is the first worksheet and must be sent explicitly.
func renameSheet(id int64, title string) *sheetsapi.Request {
	return &sheetsapi.Request{
		UpdateSheetProperties: &sheetsapi.UpdateSheetPropertiesRequest{
			Properties: &sheetsapi.SheetProperties{SheetId: id, Title: title, ForceSendFields: []string{"SheetId"}},
			Fields:     "title",
		},
	}
}

func deleteSheet(id int64) *sheetsapi.Request {
	return &sheetsapi.Request{
		DeleteSheet: &sheetsapi.DeleteSheetRequest{SheetId: id, ForceSendFields: []string{"SheetId"}},
	}
}

// serviceAPI adapts *sheets.Service to api.
type serviceAPI struct {
	svc *sheetsapi.Service
}

func (a *serviceAPI) Sheets(ctx context.Context, spreadsheetID string) ([]*sheetsapi.SheetProperties, error) {
	ss, err := a.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	props := make([]*sheetsapi.SheetProperties, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			props = append(props, sh.Properties)
		}
	}
	return props, nil
}

func (a *serviceAPI) Values(ctx context.Context, spreadsheetID, rangeA1 string) ([][]interface{}, error) {
	vr, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return vr.Values, nil
}

func (a *serviceAPI) Update(ctx context.Context, spreadsheetID, rangeA1 string, values [][]interface{}) error {
	_, err := a.svc.Spreadsheets.Values.Update(spreadsheetID, rangeA1, &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (a *serviceAPI) Batch(ctx context.Context, spreadsheetID string, reqs ...*sheetsapi.Request) (*sheetsapi.BatchUpdateSpreadsheetResponse, error) {
	return a.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
}
