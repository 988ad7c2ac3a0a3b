package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLintFileValidYAML(t *testing.T) {
	path := writeDoc(t, "good.yaml", `
triggers:
  pageview:
    on: visible
  heartbeat:
    on: timer
    timerSpec:
      interval: 30
  cta:
    on: click
    selector: "#cta"
`)
	require.NoError(t, lintFile(context.Background(), path, true))
}

func TestLintFileValidJSON(t *testing.T) {
	path := writeDoc(t, "good.json", `{
  "triggers": {
    "loaded": {"on": "ini-load"}
  }
}`)
	require.NoError(t, lintFile(context.Background(), path, true))
}

func TestLintFileInvalidTrigger(t *testing.T) {
	path := writeDoc(t, "bad.yaml", `
triggers:
  broken:
    on: click
`)
	err := lintFile(context.Background(), path, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 invalid trigger(s)")
}

func TestLintFileParseError(t *testing.T) {
	path := writeDoc(t, "garbage.yaml", "triggers: [not: closed")
	require.Error(t, lintFile(context.Background(), path, false))
}

func TestLintFileStrictEmpty(t *testing.T) {
	path := writeDoc(t, "empty.yaml", "triggers: {}\n")
	require.NoError(t, lintFile(context.Background(), path, false))
	require.Error(t, lintFile(context.Background(), path, true))
}

func TestRunAggregatesFailures(t *testing.T) {
	good := writeDoc(t, "good.yaml", "triggers:\n  pv:\n    on: visible\n")
	bad := writeDoc(t, "bad.yaml", "triggers:\n  c:\n    on: click\n")
	require.NoError(t, run(context.Background(), []string{good}, false))
	require.Error(t, run(context.Background(), []string{good, bad}, false))
}
