package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfinance-dev/pfinance/internal/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTest(t)
	tbl, err := s.Load(context.Background(), "movimientos")
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.Equal(t, "", tbl.Version)
}

func TestStore_SaveReplacesTable(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	first := &store.Table{
		Columns: []string{"id", "tag_name", "keywords"},
		Rows:    [][]string{{"0", "comida", "cafe,panaderia"}, {"1", "ignore", "Transferencia"}},
	}
	require.NoError(t, s.Save(ctx, "tags", first))
	assert.Equal(t, "1", first.Version)

	got, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, first.Columns, got.Columns)
	assert.Equal(t, first.Rows, got.Rows)
	assert.Equal(t, "1", got.Version)

	got.Columns = []string{"id", "tag_name"}
	got.Rows = [][]string{{"0", "otros"}}
	require.NoError(t, s.Save(ctx, "tags", got))

	again, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "tag_name"}, again.Columns)
	assert.Equal(t, [][]string{{"0", "otros"}}, again.Rows)
	assert.Equal(t, "2", again.Version)
}

func TestStore_Conflict(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.Save(ctx, "alias", &store.Table{Columns: []string{"id"}}))

	a, err := s.Load(ctx, "alias")
	require.NoError(t, err)
	b, err := s.Load(ctx, "alias")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "alias", a))
	assert.ErrorIs(t, s.Save(ctx, "alias", b), store.ErrConflict)
}

func TestStore_RejectsBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	_, err := s.Load(ctx, "tags; DROP TABLE x")
	assert.Error(t, err)

	err = s.Save(ctx, "tags", &store.Table{Columns: []string{"bad col"}})
	assert.Error(t, err)
}

func TestStore_FailedInsertRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.Save(ctx, "tags", &store.Table{Columns: []string{"id"}, Rows: [][]string{{"1"}}}))

	cur, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	cur.Rows = [][]string{{"2", "too", "wide"}}
	assert.Error(t, s.Save(ctx, "tags", cur))

	got, err := s.Load(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, got.Rows)
	assert.Equal(t, "1", got.Version)
}
