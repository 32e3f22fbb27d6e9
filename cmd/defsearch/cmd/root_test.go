package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/definium/defsearch/internal/errors"
	"github.com/definium/defsearch/internal/ingest"
	"github.com/definium/defsearch/internal/store"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	expected := []string{"ingest", "search", "tui", "watch", "stats", "clear", "config", "version"}
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, names[name], "missing subcommand %q", name)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeTestSet(t *testing.T, dir string) string {
	t.Helper()
	set := &ingest.Set{
		Categories: []*store.Category{
			{ID: "reports", Name: "Reports", DisplayName: "Reports"},
		},
		Definitions: []*store.Definition{
			{
				ID:         "d1",
				Version:    1,
				CategoryID: "reports",
				Type:       store.TypeSQL,
				Name:       "ListActiveUsers",
				Payload:    store.Payload{Query: "SELECT id, name FROM users WHERE active = 1"},
			},
		},
	}
	data, err := json.Marshal(set)
	require.NoError(t, err)
	path := filepath.Join(dir, "set.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCLI_IngestSearchStatsClear(t *testing.T) {
	t.Setenv("DEFSEARCH_DATA_DIR", t.TempDir())
	setPath := writeTestSet(t, t.TempDir())

	out, err := execute(t, "ingest", setPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 definitions")

	out, err = execute(t, "search", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "ListActiveUsers")

	out, err = execute(t, "search", "users", "--type", "javascript")
	require.NoError(t, err)
	assert.Contains(t, out, "no results")

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "definitions: 1")
	assert.Contains(t, out, "ready")

	out, err = execute(t, "clear", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "store cleared")

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "definitions: 0")
}

func TestCLI_SearchJSONOutput(t *testing.T) {
	t.Setenv("DEFSEARCH_DATA_DIR", t.TempDir())
	setPath := writeTestSet(t, t.TempDir())

	_, err := execute(t, "ingest", setPath)
	require.NoError(t, err)

	out, err := execute(t, "search", "users", "--format", "json")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
}

func TestCLI_SearchUnknownFieldFails(t *testing.T) {
	t.Setenv("DEFSEARCH_DATA_DIR", t.TempDir())
	setPath := writeTestSet(t, t.TempDir())
	_, err := execute(t, "ingest", setPath)
	require.NoError(t, err)

	_, err = execute(t, "search", "users", "--fields", "body")
	require.Error(t, err)
}

func TestCLI_SearchTooShortQueryFails(t *testing.T) {
	t.Setenv("DEFSEARCH_DATA_DIR", t.TempDir())

	_, err := execute(t, "search", "a")

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeQueryTooShort, apperr.GetCode(err))
}

func TestCLI_IngestOversizedSetFails(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DEFSEARCH_DATA_DIR", dataDir)
	cfgPath := filepath.Join(dataDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ingest:\n  max_set_size_mb: 1\n"), 0o644))
	t.Setenv("DEFSEARCH_CONFIG", cfgPath)

	big := filepath.Join(t.TempDir(), "big.json")
	payload := `{"definitions":[{"definitionId":"d1","definitionName":"Big","definitionType":"sql","categoryId":"c","payload":{"query":"` +
		strings.Repeat("x", 2<<20) + `"}}]}`
	require.NoError(t, os.WriteFile(big, []byte(payload), 0o644))

	_, err := execute(t, "ingest", big)

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeMalformedInput, apperr.GetCode(err))
}

func TestCLI_IngestReportsMalformedSet(t *testing.T) {
	t.Setenv("DEFSEARCH_DATA_DIR", t.TempDir())
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"definitions":[{"definitionName":"no id"}]}`), 0o644))

	out, err := execute(t, "ingest", bad)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestCLI_ConfigInitAndShow(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DEFSEARCH_DATA_DIR", dataDir)

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "config.yaml")
	assert.FileExists(t, filepath.Join(dataDir, "config.yaml"))

	_, err = execute(t, "config", "init")
	require.Error(t, err, "second init without --force must refuse")

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: memory")
}

func TestCLI_Version(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "defsearch")
}
