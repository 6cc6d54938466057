package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/prompt"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRender_Fallback(t *testing.T) {
	out, err := run(t, "render", "--agent", "SupportAgent", "--category", "greeting")
	require.NoError(t, err)
	assert.Contains(t, out, "SupportAgent")
	assert.Contains(t, out, "Web Scuti")
}

func TestRender_JSON(t *testing.T) {
	out, err := run(t, "render", "--agent", "BlogAgent", "--category", "task",
		"--type", "content_analysis", "--complexity", "high", "--title", "Go", "--json")
	require.NoError(t, err)

	var res prompt.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "content-analysis-default", res.TemplateID)
	assert.Equal(t, "deep", res.Metadata.Variation)
}

func TestSeed_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompt:\n  seed_default_templates: false\n"), 0600))

	out, err := run(t, "--config", path, "seed")
	require.NoError(t, err)
	assert.Equal(t, "0 templates in store", strings.TrimSpace(out))

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "3 templates in store")
}

func TestStats(t *testing.T) {
	out, err := run(t, "stats")
	require.NoError(t, err)

	var stats session.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.ActiveInCache)
}

func TestBadConfig(t *testing.T) {
	_, err := run(t, "--config", "/nonexistent/config.yaml", "stats")
	assert.Error(t, err)
}
