package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesWemyss/psyclone/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("PSYCLONE_DB_PATH", filepath.Join(t.TempDir(), "test.db"))

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "http_addr: localhost:8080")
	assert.Contains(t, out, "timezone: Europe/London")
}

func TestRedactedHidesKeys(t *testing.T) {
	cfg := config.Defaults()
	cfg.OpenAI.APIKey = "sk-secret"
	out := redacted(cfg)
	assert.Equal(t, "***", out.OpenAI.APIKey)
	assert.Empty(t, out.Anthropic.APIKey)
	assert.Equal(t, "sk-secret", cfg.OpenAI.APIKey)
}

func TestLogFlagsAreExclusive(t *testing.T) {
	_, err := execute(t, "--logfile", filepath.Join(t.TempDir(), "x.log"), "--pretty", "config", "show")
	assert.ErrorContains(t, err, "mutually exclusive")
}
