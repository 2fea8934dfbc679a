package csvfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfinance-dev/pfinance/internal/store"
)

func TestStore_LoadMissing(t *testing.T) {
	s := New(t.TempDir())
	tbl, err := s.Load(context.Background(), "movimientos")
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.Equal(t, "", tbl.Version)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(filepath.Join(dir, "data"))

	tbl := &store.Table{
		Columns: []string{"date", "name", "amount"},
		Rows: [][]string{
			{"2024-03-05", "Cafe, centro", "-1234.56"},
			{"2024-03-06", "Sueldo", "100000.00"},
		},
	}
	require.NoError(t, s.Save(ctx, "movimientos", tbl))

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, got.Columns)
	assert.Equal(t, tbl.Rows, got.Rows)
	assert.Equal(t, tbl.Version, got.Version)

	_, err = os.Stat(filepath.Join(dir, "data", "movimientos.csv.bak"))
	assert.True(t, os.IsNotExist(err), "backup is removed after a successful swap")
	_, err = os.Stat(filepath.Join(dir, "data", "movimientos.csv.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Conflict(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	require.NoError(t, s.Save(ctx, "tags", &store.Table{Columns: []string{"id"}}))

	stale, err := s.Load(ctx, "tags")
	require.NoError(t, err)

	fresh, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	fresh.Rows = append(fresh.Rows, []string{"1"})
	require.NoError(t, s.Save(ctx, "tags", fresh))

	stale.Rows = append(stale.Rows, []string{"2"})
	err = s.Save(ctx, "tags", stale)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, got.Rows)
}

func TestStore_FailedSwapKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Save(ctx, "tags", &store.Table{Columns: []string{"id"}, Rows: [][]string{{"1"}}}))

	// A directory squatting on the staging path makes the stage step fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tags.csv.tmp", "x"), 0o755))

	cur, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	cur.Rows = nil
	assert.Error(t, s.Save(ctx, "tags", cur))

	got, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, got.Rows)
}

func TestStore_InterruptedSaveRecoversBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	orig := &store.Table{Columns: []string{"id", "name"}, Rows: [][]string{{"1", "A"}, {"2", "B"}, {"3", "C"}}}
	require.NoError(t, s.Save(ctx, "movimientos", orig))

	// Crash after the original was moved aside, before the swap.
	final := filepath.Join(dir, "movimientos.csv")
	require.NoError(t, os.Rename(final, final+".bak"))

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Equal(t, orig.Rows, got.Rows)
	assert.Equal(t, orig.Version, got.Version)

	got.Rows = append(got.Rows, []string{"4", "D"})
	require.NoError(t, s.Save(ctx, "movimientos", got))

	again, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Len(t, again.Rows, 4)
	_, err = os.Stat(final + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_InterruptedSaveRejectsBlindWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Save(ctx, "movimientos", &store.Table{Columns: []string{"id"}, Rows: [][]string{{"1"}, {"2"}}}))

	final := filepath.Join(dir, "movimientos.csv")
	require.NoError(t, os.Rename(final, final+".bak"))

	// A writer that never loaded must not see an empty table.
	err := s.Save(ctx, "movimientos", &store.Table{Columns: []string{"id"}, Rows: [][]string{{"9"}}})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Load(ctx, "movimientos")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, got.Rows)
}

func TestReadTable_ShortRowsArePadded(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("id,tag_name,keywords\n1,comida\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "comida", ""}}, tbl.Rows)
}

func TestReadTable_TooManyFields(t *testing.T) {
	_, err := ReadTable(strings.NewReader("id\n1,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTable(&buf, &store.Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "x,y"}}})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x,y\"\n", buf.String())
}
