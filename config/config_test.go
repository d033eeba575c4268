package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LLM_PROVIDER", "LLM_MODEL", "LLM_BASE_URL", "LLM_API_KEY",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"STORAGE_DRIVER", "DATABASE_URL", "STORAGE_NAMESPACE", "DBOS_ENABLED",
		"LOG_LEVEL", "LOG_DEVELOPMENT", "STATIC_DIR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "diet-chat", cfg.Storage.Namespace)
	assert.False(t, cfg.DBOS.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "GEMINI_API_KEY", cfg.APIKeyEnv())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadProviderSpecificKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("GEMINI_API_KEY", "wrong")
	t.Setenv("OPENAI_API_KEY", "right")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "right", cfg.LLM.APIKey)
	assert.Equal(t, "meta-llama/Meta-Llama-3.1-8B-Instruct", cfg.LLM.Model)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yaml := []byte("server:\n  port: \"7000\"\nllm:\n  model: gemini-1.5-pro\nstorage:\n  driver: memory\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "gemini-1.5-pro", cfg.LLM.Model)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"LLM_PROVIDER": "parrot"}},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "floppy"}},
		{"dbos without postgres", map[string]string{"DBOS_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			assert.Error(t, err)
		})
	}
}
