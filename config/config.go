package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/m4xw311/homework-helper/errors"
	"gopkg.in/yaml.v3"
)

const dirName = ".homework-helper"

// Providers lists the accepted values of the llm key.
var Providers = []string{"cerebras", "openai", "anthropic", "gemini", "bedrock", "mock"}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is the number of question submissions accepted per second.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

type Config struct {
	LLMClient      string       `yaml:"llm"`
	Model          string       `yaml:"model"`
	Temperature    float64      `yaml:"temperature"`
	MaxTokens      int          `yaml:"max_tokens"`
	ParallelReview bool         `yaml:"parallel_review"`
	Server         ServerConfig `yaml:"server"`
	Log            LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		LLMClient:   "cerebras",
		Model:       "llama-3.3-70b",
		Temperature: 0.2,
		MaxTokens:   2048,
		Server: ServerConfig{
			Addr:      ":8501",
			RateLimit: 1,
			Burst:     3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence. A non-empty path
// replaces both lookups. A .env file in the working directory is loaded into
// the environment first so credentials can live next to the project.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	// Missing .env is the common case.
	_ = godotenv.Load()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", path)
		}
		return finish(cfg)
	}

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, dirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, dirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal only overwrites fields present in the YAML, so a later file
	// replaces individual keys of an earlier one.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HOMEWORK_HELPER_LLM"); v != "" {
		c.LLMClient = v
	}
	if v := os.Getenv("HOMEWORK_HELPER_MODEL"); v != "" {
		c.Model = v
	}
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	known := false
	for _, p := range Providers {
		if c.LLMClient == p {
			known = true
			break
		}
	}
	if !known {
		return errors.Configuration("unknown llm %q, expected one of %v", c.LLMClient, Providers)
	}
	if c.Model == "" && c.LLMClient != "mock" {
		return errors.Configuration("model must be set for llm %q", c.LLMClient)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.Configuration("temperature %.2f is outside [0, 2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return errors.Configuration("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Server.RateLimit <= 0 || c.Server.Burst <= 0 {
		return errors.Configuration("server.rate_limit and server.burst must be positive")
	}
	return nil
}
