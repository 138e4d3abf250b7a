package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPassesValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("VECTOR_TIMEOUT_MS", "250")
	t.Setenv("ENABLE_KNOWLEDGE_GRAPH", "false")
	t.Setenv("RETRIEVAL_TOP_K", "7")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Retrieval.VectorTimeout)
	assert.False(t, cfg.Retrieval.EnableKG)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAIAPIKey)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/path.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("server:\n  addr: \":9090\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := NewLoader().WithConfigPath(f.Name()).Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestValidateRejectsAuthEnabledWithoutSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecretKey = ""
	assert.Error(t, cfg.Validate())
}
