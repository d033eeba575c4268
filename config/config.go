// Package config loads application settings from defaults, an optional
// config.yaml, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported model providers
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Supported storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the application's configuration
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	LLM struct {
		Provider string `mapstructure:"provider"`
		Model    string `mapstructure:"model"`
		APIKey   string `mapstructure:"api_key"`
		BaseURL  string `mapstructure:"base_url"`
	} `mapstructure:"llm"`
	Storage struct {
		Driver    string `mapstructure:"driver"`
		DSN       string `mapstructure:"dsn"`
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"storage"`
	DBOS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"dbos"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
	Static struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"static"`
}

var defaultModels = map[string]string{
	ProviderGemini:    "gemini-2.0-flash",
	ProviderOpenAI:    "meta-llama/Meta-Llama-3.1-8B-Instruct",
	ProviderAnthropic: "claude-sonnet-4-20250514",
}

// apiKeyEnv names the environment variable holding each provider's key
var apiKeyEnv = map[string]string{
	ProviderGemini:    "GEMINI_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Load reads configuration. dir is searched for config.yaml and .env in
// addition to ./config; pass "" to use the working directory only.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}

	// A missing .env file is fine; variables may come from the environment.
	_ = godotenv.Load(dir + "/.env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(dir + "/config")

	v.SetDefault("server.port", "8080")
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "diet-chat.db")
	v.SetDefault("storage.namespace", "diet-chat")
	v.SetDefault("dbos.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("static.dir", "./static")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindings := map[string]string{
		"server.port":       "PORT",
		"llm.provider":      "LLM_PROVIDER",
		"llm.model":         "LLM_MODEL",
		"llm.base_url":      "LLM_BASE_URL",
		"storage.driver":    "STORAGE_DRIVER",
		"storage.dsn":       "DATABASE_URL",
		"storage.namespace": "STORAGE_NAMESPACE",
		"dbos.enabled":      "DBOS_ENABLED",
		"log.level":         "LOG_LEVEL",
		"log.development":   "LOG_DEVELOPMENT",
		"static.dir":        "STATIC_DIR",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	// The key variable depends on the provider, so resolve that first.
	provider := strings.ToLower(v.GetString("llm.provider"))
	if env, ok := apiKeyEnv[provider]; ok {
		if err := v.BindEnv("llm.api_key", "LLM_API_KEY", env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.LLM.Provider = provider
	if _, ok := defaultModels[cfg.LLM.Provider]; !ok {
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}

	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	switch cfg.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.DBOS.Enabled && cfg.Storage.Driver != DriverPostgres {
		return nil, errors.New("dbos requires the postgres storage driver")
	}

	return &cfg, nil
}

// APIKeyEnv returns the environment variable expected to hold the key for
// the configured provider.
func (c *Config) APIKeyEnv() string {
	return apiKeyEnv[c.LLM.Provider]
}
