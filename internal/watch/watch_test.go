package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 50*time.Millisecond, func(name string) bool {
		return strings.HasSuffix(name, ".xlsx")
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movimientos.xlsx"), []byte("x"), 0o644))

	select {
	case got := <-out:
		assert.Equal(t, filepath.Join(dir, "movimientos.xlsx"), got)
	case <-time.After(5 * time.Second):
		t.Fatal("no file reported")
	}

	select {
	case got := <-out:
		t.Fatalf("unexpected file %s", got)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), time.Second, nil)
	require.Error(t, err)
}
