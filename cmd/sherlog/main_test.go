package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/sherlog/pkg/config"
	"github.com/codeready-toolchain/sherlog/pkg/incident"
	"github.com/codeready-toolchain/sherlog/pkg/store"
	"github.com/codeready-toolchain/sherlog/pkg/version"
)

const testConfig = `
investigator: alice
store:
  backend: file
  dir: incidents
logging:
  level: error
  file: "-"
`

func setupConfigDir(t *testing.T) string {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(testConfig), 0o600))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Full()+"\n", out)
}

func TestIncidentsListEmpty(t *testing.T) {
	dir := setupConfigDir(t)
	out, err := execute(t, "--config-dir", dir, "incidents", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No incidents recorded.")
}

func TestIncidentsShow(t *testing.T) {
	dir := setupConfigDir(t)
	fs, err := store.NewFileStore(filepath.Join(dir, "incidents"))
	require.NoError(t, err)
	require.NoError(t, fs.Save(context.Background(), &incident.Incident{
		ID:   "inc_20240501_abc123",
		Name: "Checkout 500 Errors",
		Metadata: incident.Metadata{
			CreatedAt:        "2024-05-01T10:00:00.000Z",
			Status:           incident.StatusInvestigating,
			Severity:         incident.SeverityHigh,
			AffectedServices: []string{"checkout-api"},
			Investigator:     "alice",
		},
		Timeline:   []incident.TimelineEvent{},
		Hypotheses: []incident.Hypothesis{},
		Findings:   []incident.Finding{},
		RuledOut:   []incident.RuledOutEntry{},
	}))

	out, err := execute(t, "--config-dir", dir, "incidents", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "inc_20240501_abc123")
	assert.Contains(t, out, "Checkout 500 Errors")

	out, err = execute(t, "--config-dir", dir, "incidents", "show", "inc_20240501_abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "Checkout 500 Errors  inc_20240501_abc123")
	assert.Contains(t, out, "Investigator: alice")
}

func TestIncidentsShowUnknown(t *testing.T) {
	dir := setupConfigDir(t)
	_, err := execute(t, "--config-dir", dir, "incidents", "show", "inc_missing")
	assert.ErrorIs(t, err, incident.ErrNotFound)
}

func TestDoctorWithoutMCPServers(t *testing.T) {
	dir := setupConfigDir(t)
	out, err := execute(t, "--config-dir", dir, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "store")
	assert.Contains(t, out, "file, 0 incidents")
	assert.Contains(t, out, "llm provider")
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := setupLogging(&config.LoggingConfig{Level: "chatty", File: "-"})
		assert.Error(t, err)
	})

	t.Run("writes json to the rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "sherlog.log")
		closer, err := setupLogging(&config.LoggingConfig{
			Level:     "debug",
			Format:    config.LogFormatJSON,
			File:      path,
			MaxSizeMB: 1,
		})
		require.NoError(t, err)

		slog.Debug("hello", "key", "value")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
		assert.Contains(t, string(data), `"key":"value"`)
	})
}
