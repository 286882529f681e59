package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fabula/internal/embedding"
)

// Config holds all fabula configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration for the reasoning phases
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding embedding.Config `yaml:"embedding"`

	// Narrative repository configuration
	Repository RepositoryConfig `yaml:"repository"`

	// Determination loop configuration
	Determine DetermineConfig `yaml:"determine"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the reasoning model client.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// RepositoryConfig configures the narrative element store.
type RepositoryConfig struct {
	DatabasePath string `yaml:"database_path"`
	ContentDir   string `yaml:"content_dir"`
}

// DetermineConfig bounds the determination loop.
type DetermineConfig struct {
	MaxIterations       int `yaml:"max_iterations"`
	MinIterations       int `yaml:"min_iterations"`
	MaxRefinementRounds int `yaml:"max_refinement_rounds"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "fabula",
		Version: "0.3.0",

		LLM: LLMConfig{
			Model:   "gemini-2.5-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: "120s",
		},

		Embedding: embedding.DefaultConfig(),

		Repository: RepositoryConfig{
			DatabasePath: "data/fabula.db",
			ContentDir:   "content",
		},

		Determine: DetermineConfig{
			MaxIterations:       8,
			MinIterations:       2,
			MaxRefinementRounds: 3,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate rejects configurations the determination loop cannot honor.
func (c *Config) Validate() error {
	if c.Determine.MaxIterations < 1 {
		return fmt.Errorf("determine.max_iterations must be >= 1, got %d", c.Determine.MaxIterations)
	}
	if c.Determine.MinIterations < 1 {
		return fmt.Errorf("determine.min_iterations must be >= 1, got %d", c.Determine.MinIterations)
	}
	if c.Determine.MinIterations > c.Determine.MaxIterations {
		return fmt.Errorf("determine.min_iterations (%d) exceeds max_iterations (%d)",
			c.Determine.MinIterations, c.Determine.MaxIterations)
	}
	if c.Determine.MaxRefinementRounds < 0 {
		return fmt.Errorf("determine.max_refinement_rounds must be >= 0, got %d", c.Determine.MaxRefinementRounds)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if model := os.Getenv("FABULA_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("FABULA_DB"); path != "" {
		c.Repository.DatabasePath = path
	}
	if dir := os.Getenv("FABULA_CONTENT"); dir != "" {
		c.Repository.ContentDir = dir
	}
}
