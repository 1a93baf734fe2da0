package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ledgerscan/internal/detector"
	"github.com/MeKo-Tech/ledgerscan/internal/export"
	"github.com/MeKo-Tech/ledgerscan/internal/ledger"
	"github.com/MeKo-Tech/ledgerscan/internal/testutil"
)

// run executes the CLI in-process and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeStatement(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	img, _ := testutil.RenderStatement(testutil.StatementHeader, testutil.SampleRows(), testutil.DefaultRenderOptions())
	return testutil.WritePNG(t, dir, name, img)
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "bank statements")
	assert.Contains(t, out, "Available Commands:")
	for _, name := range []string{"extract", "serve", "backends", "eval", "config", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, _, err := run(t, "--no-such-flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ledgerscan "))

	out, _, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
}

func TestExtractJSON(t *testing.T) {
	path := writeStatement(t, t.TempDir(), "statement.png")

	out, _, err := run(t, "extract", path, "--log-level", "error")
	require.NoError(t, err)

	var doc ledger.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Transactions, 3)
	assert.Equal(t, "2024-01-02", doc.Transactions[1].Date.String())
	assert.Equal(t, "NGN", doc.Transactions[1].Currency)
	assert.True(t, doc.Validation.Valid)
	assert.Equal(t, detector.BackendProjection, doc.Metadata.Detector)
}

func TestExtractCSVToFile(t *testing.T) {
	dir := t.TempDir()
	path := writeStatement(t, dir, "statement.png")
	outPath := filepath.Join(dir, "out.csv")

	out, _, err := run(t, "extract", path, "--format", "csv", "--output", outPath, "--currency", "USD")
	require.NoError(t, err)
	assert.Empty(t, out)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, export.CSVHeader, records[0])
	assert.Contains(t, records[2], "USD")
}

func TestExtractSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeStatement(t, dir, "a.png")
	b := writeStatement(t, dir, "b.png")

	out, _, err := run(t, "extract", a, b)
	require.NoError(t, err)
	var docs []ledger.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	assert.Len(t, docs, 2)

	out, _, err = run(t, "extract", a, b, "--format", "csv")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 7)
}

func TestExtractFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeStatement(t, dir, "good.png")
	missing := filepath.Join(dir, "missing.png")

	out, stderr, err := run(t, "extract", good, missing)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 file(s) failed", err.Error())
	assert.Contains(t, stderr, "missing.png")

	var doc ledger.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc), "the readable file is still written")
	assert.Len(t, doc.Transactions, 3)

	_, _, err = run(t, "extract", good, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")

	_, _, err = run(t, "extract", good, "--strictness", "paranoid")
	require.Error(t, err)

	_, _, err = run(t, "extract")
	require.Error(t, err)
}

func TestEvalCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeStatement(t, dir, "statement.png")
	truth := filepath.Join(dir, "truth.csv")
	require.NoError(t, os.WriteFile(truth, []byte(`Date,Description,Debit,Credit,Balance
01/01/2024,Opening Balance,,,50000.00
02/01/2024,Salary Credit,,10000.00,60000.00
03/01/2024,ATM Withdrawal,2000.00,,58000.00
`), 0o600))

	out, _, err := run(t, "eval", path, "--truth", truth, "--repeat", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Rows: expected 3, extracted 3, matched 3")
	assert.Contains(t, out, "2 iterations")

	out, _, err = run(t, "eval", path, "--truth", truth, "--json")
	require.NoError(t, err)
	var res evalResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Report.Matched)
	assert.Nil(t, res.Timing)

	_, _, err = run(t, "eval", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--truth")
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerscan.yaml")

	out, _, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = run(t, "config", "init", path)
	require.Error(t, err)

	out, _, err = run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# config file: "+path)
	assert.Contains(t, out, "preset: default")

	out, _, err = run(t, "--preset", "fast", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "preset: fast")
	assert.Contains(t, out, "db_thresh: 0.5")
	assert.Contains(t, out, "max_workers: 16")

	out, _, err = run(t, "config", "presets")
	require.NoError(t, err)
	assert.Equal(t, "accurate\ndefault\nfast\ntesseract\n", out)
}

func TestBackendsCommand(t *testing.T) {
	out, _, err := run(t, "backends", "--json", "--models-dir", t.TempDir())
	require.NoError(t, err)

	var report backendsReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	names := make([]string, 0, len(report.Backends))
	for _, b := range report.Backends {
		names = append(names, b.Name)
		assert.False(t, b.Loaded)
	}
	assert.Contains(t, names, detector.BackendProjection)
	for _, m := range report.Models {
		assert.False(t, m.Present)
	}

	out, _, err = run(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, detector.BackendProjection)
}

func TestExtractDirectory(t *testing.T) {
	dir := t.TempDir()
	writeStatement(t, dir, "may.png")
	writeStatement(t, filepath.Join(dir, "archive"), "april.png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o600))

	out, stderr, err := run(t, "extract", dir, "--jobs", "2", "--stats")
	require.NoError(t, err)
	var doc ledger.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc), "only the top-level statement is picked")
	assert.Contains(t, stderr, "Total files: 1")

	out, _, err = run(t, "extract", dir, "--recursive")
	require.NoError(t, err)
	var docs []ledger.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	assert.Len(t, docs, 2)

	_, _, err = run(t, "extract", dir, "--include", "*.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no statement files found")
}
