package commands_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pfinance-dev/pfinance/internal/commands"
	"github.com/pfinance-dev/pfinance/internal/config"
)

func runPfinance(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runPfinanceContext(context.Background(), args...)
}

func runPfinanceContext(ctx context.Context, args ...string) (string, error) {
	cmd := commands.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func initProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := runPfinance(t, "init", dir)
	require.NoError(t, err)
	return dir
}

func writeBankExport(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Fecha", "Sucursal origen", "Descripción", "Referencia", "Caja de Ahorro", "Cuenta Corriente", "Saldo"},
		{"05/03/2024", "Casa central", "Compra con tarjeta de debito COTO", "A0001", 1234.56, "", 10000},
		{"06/03/2024", "Casa central", "Transf. a terceros", "A0002", 5000, "", 5000},
		{"08/03/2024", "", "Compra con tarjeta de debito SUBE", "A0004", 500, "", 4500},
		{"10/03/2024", "", "Deposito", "A0006", -20000, "", 24500},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(2, i+3)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := initProject(t)

	for _, d := range []string{"data", "import", filepath.Join("import", "processed")} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Storage.Backend)

	data, err := os.ReadFile(filepath.Join(dir, "data", "tags.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "supermercado")
}

func TestInit_SQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	_, err := runPfinance(t, "init", dir, "--backend", "sqlite")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "data", "pfinance.db"))
	require.NoError(t, err)

	out, err := runPfinance(t, "rules", "list", "categories", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "supermercado")
}

func TestInit_RejectsSheetsBackend(t *testing.T) {
	_, err := runPfinance(t, "init", t.TempDir(), "--backend", "sheets")
	require.Error(t, err)
}

func TestInit_RerunKeepsEditedRules(t *testing.T) {
	dir := initProject(t)
	_, err := runPfinance(t, "rules", "add", "categories", "vivienda", "alquiler", "--dir", dir)
	require.NoError(t, err)

	_, err = runPfinance(t, "init", dir)
	require.NoError(t, err)

	out, err := runPfinance(t, "rules", "list", "categories", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "vivienda")
	assert.Equal(t, 1, strings.Count(out, "supermercado"))
}

func TestIngest_ScansImportDir(t *testing.T) {
	dir := initProject(t)
	writeBankExport(t, filepath.Join(dir, "import", "movimientos.xlsx"))

	out, err := runPfinance(t, "ingest", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "added 3")
	assert.Contains(t, out, "filtered 1")
	assert.Contains(t, out, "Ledger: 0 -> 3 rows")

	_, err = os.Stat(filepath.Join(dir, "import", "movimientos.xlsx"))
	assert.True(t, os.IsNotExist(err), "ingested file should be moved")
	_, err = os.Stat(filepath.Join(dir, "import", "processed", "movimientos.xlsx"))
	require.NoError(t, err)

	out, err = runPfinance(t, "ingest", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to ingest.")
}

func TestIngest_ExplicitFileIsIdempotent(t *testing.T) {
	dir := initProject(t)
	path := filepath.Join(t.TempDir(), "movimientos.xlsx")
	writeBankExport(t, path)

	_, err := runPfinance(t, "ingest", path, "--dir", dir)
	require.NoError(t, err)

	out, err := runPfinance(t, "ingest", path, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "added 0, duplicates 3")
	assert.Contains(t, out, "Ledger: 3 -> 3 rows")

	_, err = os.Stat(path)
	require.NoError(t, err, "explicit files are not moved")
}

func TestIngest_UnknownFileSkipped(t *testing.T) {
	dir := initProject(t)
	path := filepath.Join(t.TempDir(), "extracto.xlsx")
	writeBankExport(t, path)

	out, err := runPfinance(t, "ingest", path, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "Ledger: 0 -> 0 rows")
}

func TestLog(t *testing.T) {
	dir := initProject(t)

	out, err := runPfinance(t, "log", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No ingest runs.")

	writeBankExport(t, filepath.Join(dir, "import", "movimientos.xlsx"))
	out, err = runPfinance(t, "ingest", "--dir", dir)
	require.NoError(t, err)
	_, after, ok := strings.Cut(out, "(run ")
	require.True(t, ok, out)
	runID, _, _ := strings.Cut(after, ")")

	unknown := filepath.Join(t.TempDir(), "extracto.xlsx")
	writeBankExport(t, unknown)
	_, err = runPfinance(t, "ingest", unknown, "--dir", dir)
	require.NoError(t, err)

	out, err = runPfinance(t, "log", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "movimientos.xlsx")
	assert.Contains(t, out, "extracto.xlsx")

	out, err = runPfinance(t, "log", "--run", runID, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "movimientos.xlsx")
	assert.Contains(t, out, "added 3")
	assert.NotContains(t, out, "extracto.xlsx")
}

func TestIngest_Watch(t *testing.T) {
	dir := initProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := runPfinanceContext(ctx, "ingest", "--watch", "--dir", dir)
		done <- result{out, err}
	}()

	// Give the watcher time to start before dropping the file.
	processed := filepath.Join(dir, "import", "processed", "movimientos.xlsx")
	staged := filepath.Join(t.TempDir(), "movimientos.xlsx")
	writeBankExport(t, staged)
	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "movimientos.xlsx"), data, 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(processed)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Contains(t, res.out, "Watching ")
		assert.Contains(t, res.out, "added 3")
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestIngest_WatchRejectsFiles(t *testing.T) {
	dir := initProject(t)
	_, err := runPfinance(t, "ingest", "--watch", "movimientos.xlsx", "--dir", dir)
	require.Error(t, err)
}

func TestReport(t *testing.T) {
	dir := initProject(t)
	path := filepath.Join(t.TempDir(), "movimientos.xlsx")
	writeBankExport(t, path)
	_, err := runPfinance(t, "ingest", path, "--dir", dir)
	require.NoError(t, err)

	out, err := runPfinance(t, "report", "--dir", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "otros"), lines[0])
	assert.Contains(t, lines[0], "20000.00")
	assert.True(t, strings.HasPrefix(lines[1], "supermercado"), lines[1])
	assert.Contains(t, lines[1], "-1234.56")
	assert.True(t, strings.HasPrefix(lines[2], "transporte"), lines[2])
	assert.Contains(t, lines[3], "18265.44")

	out, err = runPfinance(t, "report", "--dir", dir, "--from", "2024-03-06", "--to", "2024-03-09")
	require.NoError(t, err)
	assert.Contains(t, out, "transporte")
	assert.NotContains(t, out, "supermercado")

	out, err = runPfinance(t, "report", "--dir", dir, "--category", "supermercado")
	require.NoError(t, err)
	assert.Contains(t, out, "COTO")
}

func TestReport_InvalidDate(t *testing.T) {
	dir := initProject(t)
	_, err := runPfinance(t, "report", "--dir", dir, "--from", "05/03/2024")
	require.Error(t, err)
}

func TestRules_AddAndList(t *testing.T) {
	dir := initProject(t)

	out, err := runPfinance(t, "rules", "add", "alias", "Super", "coto", "carrefour", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `aliases "Super": coto, carrefour`)

	out, err = runPfinance(t, "rules", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "categories:")
	assert.Contains(t, out, "aliases:")
	assert.Contains(t, out, "Super")

	_, err = runPfinance(t, "rules", "list", "colors", "--dir", dir)
	require.Error(t, err)
}

func TestAddSearchDelete(t *testing.T) {
	dir := initProject(t)
	args := []string{"add", "--dir", dir, "--date", "2024-03-01", "--name", "Alquiler marzo", "--amount", "-150.000,00", "--category", "vivienda"}

	out, err := runPfinance(t, args...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Added "), out)
	txnID := strings.TrimSpace(strings.TrimPrefix(out, "Added "))

	out, err = runPfinance(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Already recorded")

	out, err = runPfinance(t, "search", "alquiler", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "-150000.00")
	assert.Contains(t, out, "vivienda")

	out, err = runPfinance(t, "search", txnID, "--id", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Alquiler marzo")

	out, err = runPfinance(t, "delete", txnID, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")

	_, err = runPfinance(t, "delete", txnID, "--dir", dir)
	require.Error(t, err)

	out, err = runPfinance(t, "search", "alquiler", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No matches.")
}

func TestAdd_InvalidAmount(t *testing.T) {
	dir := initProject(t)
	_, err := runPfinance(t, "add", "--dir", dir, "--name", "x", "--amount", "abc")
	require.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	_, err := runPfinance(t, "report", "--dir", t.TempDir())
	require.Error(t, err)
}

func TestHistory_CommitsChanges(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	_, err := runPfinance(t, "init", dir, "--history")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "movimientos.xlsx")
	writeBankExport(t, path)
	_, err = runPfinance(t, "ingest", path, "--dir", dir)
	require.NoError(t, err)

	// A re-upload adds nothing and leaves no commit.
	_, err = runPfinance(t, "ingest", path, "--dir", dir)
	require.NoError(t, err)

	log := exec.Command("git", "log", "--format=%s")
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	subjects := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, subjects, 2)
	assert.True(t, strings.HasPrefix(subjects[0], "ingest: 3 rows from 1 files"), subjects[0])
	assert.Equal(t, "init: pfinance project", subjects[1])
}
