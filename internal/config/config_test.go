package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supsol/poreview/internal/policy"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1500, cfg.TextLimit)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 48*time.Hour, cfg.EmailTimeframe)
	assert.Equal(t, 24*time.Hour, cfg.MessageTimeframe)
	assert.Equal(t, GuardPostgres, cfg.GuardBackend)
	assert.True(t, cfg.TestMode)
	assert.False(t, cfg.GraphConfigured())
}

func TestLoadEnvFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "TEXT_LIMIT=900\nGUARD_BACKEND=Memory\nEMAIL_TIMEFRAME=2h\nTEST_MODE=false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("REVIEW_CONCURRENCY", "8")

	cfg, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.TextLimit)
	assert.Equal(t, GuardMemory, cfg.GuardBackend)
	assert.Equal(t, 2*time.Hour, cfg.EmailTimeframe)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.False(t, cfg.TestMode)
}

func TestValidate(t *testing.T) {
	base := Config{GuardBackend: GuardMemory, TextLimit: 100, Concurrency: 1}
	require.NoError(t, base.Validate())

	c := base
	c.GuardBackend = GuardRedis
	assert.Error(t, c.Validate())
	c.RedisAddr = "localhost:6379"
	assert.NoError(t, c.Validate())

	c = base
	c.GuardBackend = "etcd"
	assert.Error(t, c.Validate())

	c = base
	c.TextLimit = 0
	assert.Error(t, c.Validate())
}

func TestEngineFromPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yml := `timeframes:
  email: 72h
  call: 12h
max_email_attempts: 3
knowledge_allowed: true
languages:
  base: fr
  directions:
    ku: rtl
  names:
    kurdish: ku
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	cfg := Config{
		EmailTimeframe:      48 * time.Hour,
		MessageTimeframe:    24 * time.Hour,
		CallTimeframe:       24 * time.Hour,
		EscalationTimeframe: 48 * time.Hour,
		BaseLanguage:        "en",
		MaxEmailAttempts:    2,
		PolicyFile:          path,
	}

	e, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, e.Timeframes.Email)
	assert.Equal(t, 24*time.Hour, e.Timeframes.Message)
	assert.Equal(t, 12*time.Hour, e.Timeframes.Call)
	assert.Equal(t, 3, e.MaxEmailAttempts)
	assert.True(t, e.KnowledgeAllowed)
	assert.Equal(t, "fr", e.Languages.Base())

	code, dir := e.Languages.Resolve("Kurdish")
	assert.Equal(t, "ku", code)
	assert.Equal(t, policy.RTL, dir)
}

func TestLoadPolicyFileRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("timeframe:\n  email: 1h\n"), 0o600))
	_, err := LoadPolicyFile(unknown)
	assert.Error(t, err)

	badDir := filepath.Join(dir, "dir.yaml")
	require.NoError(t, os.WriteFile(badDir, []byte("languages:\n  directions:\n    he: up\n"), 0o600))
	_, err = LoadPolicyFile(badDir)
	assert.ErrorContains(t, err, "ltr or rtl")

	_, err = LoadPolicyFile(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
