package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/pfinance-dev/pfinance/internal/store"
)

// fakeAPI is an in-memory spreadsheet keyed by sheet id. Like the real API
// it gives new sheets a 1000x26 grid unless told otherwise and rejects
// writes past the grid.
type fakeAPI struct {
	nextID    int64
	titles    map[int64]string
	data      map[int64][][]interface{}
	grids     map[int64]*sheetsapi.GridProperties
	order     []int64
	failWrite bool
}

func newFake() *fakeAPI {
	return &fakeAPI{
		titles: map[int64]string{},
		data:   map[int64][][]interface{}{},
		grids:  map[int64]*sheetsapi.GridProperties{},
	}
}

func (f *fakeAPI) byTitle(title string) (int64, bool) {
	for _, id := range f.order {
		if f.titles[id] == title {
			return id, true
		}
	}
	return 0, false
}

func (f *fakeAPI) Sheets(_ context.Context, _ string) ([]*sheetsapi.SheetProperties, error) {
	var out []*sheetsapi.SheetProperties
	for _, id := range f.order {
		out = append(out, &sheetsapi.SheetProperties{SheetId: id, Title: f.titles[id]})
	}
	return out, nil
}

func (f *fakeAPI) Values(_ context.Context, _ string, rangeA1 string) ([][]interface{}, error) {
	id, ok := f.byTitle(strings.Trim(rangeA1, "'"))
	if !ok {
		return nil, errors.New("no such sheet")
	}
	return f.data[id], nil
}

func (f *fakeAPI) Update(_ context.Context, _ string, rangeA1 string, values [][]interface{}) error {
	if f.failWrite {
		return errors.New("quota exceeded")
	}
	title := strings.Trim(strings.TrimSuffix(rangeA1, "!A1"), "'")
	id, ok := f.byTitle(title)
	if !ok {
		return errors.New("no such sheet")
	}
	grid := f.grids[id]
	for i, row := range values {
		if int64(i) >= grid.RowCount || int64(len(row)) > grid.ColumnCount {
			return fmt.Errorf("range %s exceeds grid limits", rangeA1)
		}
	}
	f.data[id] = values
	return nil
}

func (f *fakeAPI) Batch(_ context.Context, _ string, reqs ...*sheetsapi.Request) (*sheetsapi.BatchUpdateSpreadsheetResponse, error) {
	resp := &sheetsapi.BatchUpdateSpreadsheetResponse{}
	for _, r := range reqs {
		switch {
		case r.AddSheet != nil:
			id := f.nextID
			f.nextID++
			f.titles[id] = r.AddSheet.Properties.Title
			grid := &sheetsapi.GridProperties{RowCount: 1000, ColumnCount: 26}
			if g := r.AddSheet.Properties.GridProperties; g != nil {
				grid = g
			}
			f.grids[id] = grid
			f.order = append(f.order, id)
			resp.Replies = append(resp.Replies, &sheetsapi.Response{
				AddSheet: &sheetsapi.AddSheetResponse{Properties: &sheetsapi.SheetProperties{SheetId: id}},
			})
		case r.UpdateSheetProperties != nil:
			f.titles[r.UpdateSheetProperties.Properties.SheetId] = r.UpdateSheetProperties.Properties.Title
		case r.DeleteSheet != nil:
			id := r.DeleteSheet.SheetId
			delete(f.titles, id)
			delete(f.data, id)
			delete(f.grids, id)
			for i, o := range f.order {
				if o == id {
					f.order = append(f.order[:i], f.order[i+1:]...)
					break
				}
			}
		}
	}
	return resp, nil
}

func TestStore_LoadMissing(t *testing.T) {
	s := &Store{api: newFake(), spreadsheetID: "sheet"}
	tbl, err := s.Load(context.Background(), "movimientos")
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.Equal(t, "", tbl.Version)
}

func TestStore_SaveAndReplace(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := &Store{api: fake, spreadsheetID: "sheet"}

	tbl := &store.Table{Columns: []string{"id", "name"}, Rows: [][]string{{"1", "Cafe"}}}
	require.NoError(t, s.Save(ctx, "movimientos", tbl))

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Equal(t, tbl.Rows, got.Rows)
	assert.Equal(t, tbl.Version, got.Version)

	got.Rows = append(got.Rows, []string{"2", "Panaderia"})
	require.NoError(t, s.Save(ctx, "movimientos", got))

	again, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Len(t, again.Rows, 2)

	props, _ := fake.Sheets(ctx, "sheet")
	require.Len(t, props, 1, "backup sheet is dropped after a successful save")
	assert.Equal(t, "movimientos", props[0].Title)
}

func TestStore_FailedWriteRestoresBackup(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := &Store{api: fake, spreadsheetID: "sheet"}
	require.NoError(t, s.Save(ctx, "tags", &store.Table{Columns: []string{"id"}, Rows: [][]string{{"1"}}}))

	cur, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	cur.Rows = nil
	fake.failWrite = true
	err = s.Save(ctx, "tags", cur)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	fake.failWrite = false
	got, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, got.Rows)

	props, _ := fake.Sheets(ctx, "sheet")
	require.Len(t, props, 1)
	assert.Equal(t, "tags", props[0].Title)
}

func TestStore_Conflict(t *testing.T) {
	ctx := context.Background()
	s := &Store{api: newFake(), spreadsheetID: "sheet"}
	require.NoError(t, s.Save(ctx, "alias", &store.Table{Columns: []string{"id"}}))

	stale, err := s.Load(ctx, "alias")
	require.NoError(t, err)
	fresh, err := s.Load(ctx, "alias")
	require.NoError(t, err)
	fresh.Rows = [][]string{{"9"}}
	require.NoError(t, s.Save(ctx, "alias", fresh))

	assert.ErrorIs(t, s.Save(ctx, "alias", stale), store.ErrConflict)
}

func TestRenameSheet_SendsZeroID(t *testing.T) {
	req := renameSheet(0, "x")
	assert.Contains(t, req.UpdateSheetProperties.Properties.ForceSendFields, "SheetId")
	assert.Contains(t, deleteSheet(0).DeleteSheet.ForceSendFields, "SheetId")
}

// rows builds n single-cell rows numbered from 1.
func rows(n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{fmt.Sprint(i + 1), "x"}
	}
	return out
}

func TestStore_SaveSizesGrid(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := &Store{api: fake, spreadsheetID: "sheet"}

	tbl := &store.Table{Columns: []string{"id", "name"}, Rows: rows(1500)}
	require.NoError(t, s.Save(ctx, "movimientos", tbl))

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Len(t, got.Rows, 1500)

	id, ok := fake.byTitle("movimientos")
	require.True(t, ok)
	assert.Equal(t, int64(1501), fake.grids[id].RowCount)
	assert.Equal(t, int64(2), fake.grids[id].ColumnCount)
}

func TestStore_InterruptedSaveRecoversBackup(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := &Store{api: fake, spreadsheetID: "sheet"}
	require.NoError(t, s.Save(ctx, "movimientos", &store.Table{Columns: []string{"id", "name"}, Rows: rows(3)}))

	// Crash right after the primary was renamed to its backup.
	id, ok := fake.byTitle("movimientos")
	require.True(t, ok)
	_, err := fake.Batch(ctx, "sheet", renameSheet(id, "movimientos"+backupSuffix))
	require.NoError(t, err)

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	require.Len(t, got.Rows, 3)
	assert.NotEmpty(t, got.Version)

	got.Rows = append(got.Rows, []string{"4", "D"})
	require.NoError(t, s.Save(ctx, "movimientos", got))

	again, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Len(t, again.Rows, 4)

	props, _ := fake.Sheets(ctx, "sheet")
	require.Len(t, props, 1)
	assert.Equal(t, "movimientos", props[0].Title)
}

func TestStore_InterruptedSaveBeforeWrite(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := &Store{api: fake, spreadsheetID: "sheet"}
	require.NoError(t, s.Save(ctx, "movimientos", &store.Table{Columns: []string{"id", "name"}, Rows: rows(3)}))

	// Crash after the new sheet was added but before it was written.
	id, ok := fake.byTitle("movimientos")
	require.True(t, ok)
	_, err := fake.Batch(ctx, "sheet",
		renameSheet(id, "movimientos"+backupSuffix),
		&sheetsapi.Request{AddSheet: &sheetsapi.AddSheetRequest{Properties: &sheetsapi.SheetProperties{Title: "movimientos"}}},
	)
	require.NoError(t, err)

	// A stale save would pass the version check if the empty sheet counted.
	err = s.Save(ctx, "movimientos", &store.Table{Columns: []string{"id", "name"}, Rows: rows(1)})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Len(t, got.Rows, 3)

	props, _ := fake.Sheets(ctx, "sheet")
	require.Len(t, props, 1)
}
