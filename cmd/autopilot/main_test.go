package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with a throwaway config and database in dir.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dir, "autopilot.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := "logger:\n  level: error\n  format: json\nmemory:\n  path: " + filepath.Join(dir, "autopilot.db") + "\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlanCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "plan", "search", "google", "for", "golang")
	require.NoError(t, err)
	assert.Contains(t, out, `"template_id": "web_search"`)
	assert.Contains(t, out, `google for golang`)
}

func TestPlanCommand_NoMatch(t *testing.T) {
	_, err := execute(t, t.TempDir(), "plan", "weather", "tomorrow")
	assert.ErrorContains(t, err, "no template matches")
}

func TestMatchCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "match", "send", "an", "email")
	require.NoError(t, err)
	assert.Contains(t, out, "email_compose")
	assert.Contains(t, out, "best: email_compose")
}

func TestCatalogInitAndShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")

	out, err := execute(t, dir, "catalog", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	_, err = execute(t, dir, "catalog", "init", path)
	assert.Error(t, err, "init must not overwrite without --force")

	_, err = execute(t, dir, "catalog", "init", "--force", path)
	require.NoError(t, err)

	// point the config at the written catalog and read it back
	cfg := "logger:\n  level: error\nmemory:\n  path: " + filepath.Join(dir, "autopilot.db") + "\ncatalog:\n  path: " + path + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "autopilot.yaml"), []byte(cfg), 0o644))

	out, err = execute(t, dir, "catalog", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "email_compose")
	assert.Contains(t, out, "compose_button")
}

func TestScheduleCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "schedule", "add", "--chat", "tg:42", "--every", "1h", "search", "google", "for", "golang")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduled #1")

	_, err = execute(t, dir, "schedule", "add", "--every", "10s", "open", "example.com")
	assert.Error(t, err)

	out, err = execute(t, dir, "schedule", "list", "--chat", "tg:42")
	require.NoError(t, err)
	assert.Contains(t, out, "1h0m0s")
	assert.Contains(t, out, "search google for golang")

	_, err = execute(t, dir, "schedule", "rm", "--chat", "cli", "1")
	assert.ErrorContains(t, err, "no schedule #1")

	out, err = execute(t, dir, "schedule", "rm", "--chat", "tg:42", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed #1")
}

func TestHistoryCommand_Empty(t *testing.T) {
	out, err := execute(t, t.TempDir(), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "TEMPLATE")
}

func TestRunCommand_NoMatchDoesNotStartBrowser(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "run", "weather", "tomorrow", "in", "paris")
	assert.ErrorContains(t, err, "I don't know how to do that yet.")

	out, err := execute(t, dir, "history", "--commands")
	require.NoError(t, err)
	assert.Contains(t, out, "no_match")
}
