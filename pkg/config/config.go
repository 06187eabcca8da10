// Package config loads process configuration from config.yaml and the
// environment. Environment variables override YAML values; secrets (the LLM
// API key) come from the environment only.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for fedql. Constructed once at process
// start and passed by reference into the planner and federation resolver —
// there is no ambient global state.
type Config struct {
	Env  string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Role string `yaml:"role" env:"FEDQL_ROLE" env-default:"admin"`

	// LLM endpoint configuration.
	LLM LLMConfig `yaml:"llm"`

	// File inputs.
	CatalogPath string `yaml:"catalog_path" env:"FEDQL_CATALOG" env-default:"data/catalog_live.json"`
	DSNPath     string `yaml:"dsn_path" env:"FEDQL_DSNS" env-default:"dsns.json"`
	MaskingPath string `yaml:"masking_path" env:"FEDQL_MASKING" env-default:"masking.yaml"`

	// Execution limits.
	RowLimit int `yaml:"row_limit" env:"FEDQL_ROW_LIMIT" env-default:"10000"`
}

// LLMConfig holds the completion endpoint settings.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o"`
	APIKey         string  `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"OPENAI_TIMEOUT_SECONDS" env-default:"60"`
	Temperature    float64 `yaml:"temperature" env:"OPENAI_TEMPERATURE" env-default:"0.1"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml does not exist, configuration comes from the
// environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.RowLimit <= 0 {
		return fmt.Errorf("row_limit must be positive, got %d", c.RowLimit)
	}
	return nil
}
