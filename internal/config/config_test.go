package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/config"
	"github.com/boddenberg/pipeline-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "USE_MOCK_BACKEND", "FETCH_DELAY", "CONFIRM_DELAY", "CONFIRM_TIMEOUT", "TRANSITION_POLICY", "DEV_TOOLS"} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.UseMockBackend)
	assert.Equal(t, time.Second, cfg.FetchDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmDelay)
	assert.Equal(t, 30*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, domain.TransitionOpen, cfg.TransitionPolicy)
	assert.False(t, cfg.DevTools)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CONFIRM_DELAY", "20ms")
	t.Setenv("TRANSITION_POLICY", "lock-terminal")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 20*time.Millisecond, cfg.ConfirmDelay)
	assert.Equal(t, domain.TransitionLockTerminal, cfg.TransitionPolicy)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadDotEnv_DoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\nPIPELINE_TEST_ONLY=\"from-file\"\n"), 0o600))

	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("PIPELINE_TEST_ONLY") })

	require.NoError(t, config.LoadDotEnv(path))

	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "from-file", os.Getenv("PIPELINE_TEST_ONLY"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
