package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ScenarioConfig describes a builtin scenario seeded at start-up
type ScenarioConfig struct {
	Name        string   `yaml:"name" toml:"name"`
	Description string   `yaml:"description" toml:"description"`
	EntityTypes []string `yaml:"entity_types" toml:"entity_types"`
}

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port" toml:"port"`
	} `yaml:"server" toml:"server"`

	Database struct {
		Path string `yaml:"path" toml:"path"` // SQLite path or PostgreSQL URL
		Type string `yaml:"type" toml:"type"` // "sqlite" or "postgres"
	} `yaml:"database" toml:"database"`

	Model struct {
		Name       string `yaml:"name" toml:"name"`
		Dir        string `yaml:"dir" toml:"dir"` // registry root
		ActivePath string `yaml:"active_path" toml:"active_path"`
		TempDir    string `yaml:"temp_dir" toml:"temp_dir"`
	} `yaml:"model" toml:"model"`

	Learning struct {
		MinSamplesForTraining int      `yaml:"min_samples_for_training" toml:"min_samples_for_training"`
		QualityGateMinDelta   float64  `yaml:"quality_gate_min_delta" toml:"quality_gate_min_delta"`
		QualityGateTargetF1   float64  `yaml:"quality_gate_target_f1" toml:"quality_gate_target_f1"`
		TestFraction          *float64 `yaml:"test_fraction" toml:"test_fraction"`
		DefaultSeed           int64    `yaml:"default_seed" toml:"default_seed"`
		AutoPublish           *bool    `yaml:"auto_publish" toml:"auto_publish"`
		BlockOnRegression     *bool    `yaml:"block_on_regression" toml:"block_on_regression"`
		RegressionThreshold   *float64 `yaml:"regression_threshold" toml:"regression_threshold"`
		EvalFolds             int      `yaml:"eval_folds" toml:"eval_folds"`
	} `yaml:"learning" toml:"learning"`

	Sampler struct {
		MinParagraphLength int `yaml:"min_paragraph_length" toml:"min_paragraph_length"`
		MaxParagraphs      int `yaml:"max_paragraphs" toml:"max_paragraphs"`
		DefaultTopN        int `yaml:"default_top_n" toml:"default_top_n"`
	} `yaml:"sampler" toml:"sampler"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"` // empty disables auth
	} `yaml:"auth" toml:"auth"`

	Notify struct {
		TelegramToken  string `yaml:"telegram_token" toml:"telegram_token"`
		TelegramChatID int64  `yaml:"telegram_chat_id" toml:"telegram_chat_id"`
	} `yaml:"notify" toml:"notify"`

	Scenarios []ScenarioConfig `yaml:"scenarios" toml:"scenarios"`

	Log struct {
		Level       string `yaml:"level" toml:"level"`
		Development bool   `yaml:"development" toml:"development"`
	} `yaml:"log" toml:"log"`
}

// LoadConfig loads configuration from a YAML or TOML file. Variables from a .env file next to
// the working directory are loaded first so ${VAR} references in secrets resolve.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := &Config{}
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	config.applyDefaults()

	// Expand environment variables in secrets
	config.Database.Path = os.ExpandEnv(config.Database.Path)
	config.Auth.JWTSecret = os.ExpandEnv(config.Auth.JWTSecret)
	config.Notify.TelegramToken = os.ExpandEnv(config.Notify.TelegramToken)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8003"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/learning.db"
	}

	if c.Model.Name == "" {
		c.Model.Name = "entity_model"
	}
	if c.Model.Dir == "" {
		c.Model.Dir = "./models"
	}
	if c.Model.ActivePath == "" {
		c.Model.ActivePath = filepath.Join(c.Model.Dir, c.Model.Name+".zip")
	}
	if c.Model.TempDir == "" {
		c.Model.TempDir = filepath.Join(c.Model.Dir, "tmp")
	}

	if c.Learning.MinSamplesForTraining == 0 {
		c.Learning.MinSamplesForTraining = 3
	}
	if c.Learning.QualityGateTargetF1 == 0 {
		c.Learning.QualityGateTargetF1 = 0.95
	}
	if c.Learning.TestFraction == nil {
		c.Learning.TestFraction = floatPtr(0.2)
	}
	if c.Learning.DefaultSeed == 0 {
		c.Learning.DefaultSeed = 42
	}
	if c.Learning.AutoPublish == nil {
		c.Learning.AutoPublish = boolPtr(true)
	}
	if c.Learning.BlockOnRegression == nil {
		c.Learning.BlockOnRegression = boolPtr(true)
	}
	if c.Learning.RegressionThreshold == nil {
		c.Learning.RegressionThreshold = floatPtr(0.03)
	}
	if c.Learning.EvalFolds == 0 {
		c.Learning.EvalFolds = 5
	}

	if c.Sampler.MinParagraphLength == 0 {
		c.Sampler.MinParagraphLength = 10
	}
	if c.Sampler.MaxParagraphs == 0 {
		c.Sampler.MaxParagraphs = 200
	}
	if c.Sampler.DefaultTopN == 0 {
		c.Sampler.DefaultTopN = 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Learning.QualityGateMinDelta < 0 {
		return fmt.Errorf("learning.quality_gate_min_delta must not be negative")
	}
	if rt := c.Learning.RegressionThreshold; rt != nil && *rt < 0 {
		return fmt.Errorf("learning.regression_threshold must not be negative")
	}
	if tf := c.Learning.TestFraction; tf != nil && (*tf <= 0 || *tf >= 1) {
		return fmt.Errorf("learning.test_fraction must be in (0, 1)")
	}
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
