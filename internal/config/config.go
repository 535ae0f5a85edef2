// Package config loads the run configuration. Values come from an optional
// YAML file merged under explicit CLI flag overrides; the core packages only
// ever see the typed record.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	// Core run options.
	PromptID       string `yaml:"prompt_id"`
	MaxIterations  int    `yaml:"max_iterations"`
	GenerateTests  bool   `yaml:"generate_tests"`
	SaveIterations bool   `yaml:"save_iterations"`
	OutputDir      string `yaml:"output_dir"`

	// Generation backend.
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	GenerateTimeoutS  int    `yaml:"generate_timeout_seconds"`

	// Compiler.
	CompilerAdapter string `yaml:"compiler_adapter"`
	ToolchainBin    string `yaml:"toolchain_bin"`
	CompileTimeoutS int    `yaml:"compile_timeout_seconds"`

	// Classifier.
	RuleTable string `yaml:"rule_table"`

	// Paths and surfaces.
	PromptsDir string `yaml:"prompts_dir"`
	LedgerPath string `yaml:"ledger_path"`
	ListenAddr string `yaml:"listen_addr"`
	LogFile    string `yaml:"log_file"`
	Debug      bool   `yaml:"debug"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		PromptID:         "sui_move.base_contract",
		MaxIterations:    5,
		SaveIterations:   true,
		OutputDir:        "sessions",
		Model:            "gpt-4",
		BaseURL:          "https://api.openai.com/v1",
		APIKeyEnv:        "OPENAI_API_KEY",
		GenerateTimeoutS: 120,
		CompilerAdapter:  "simulator",
		ToolchainBin:     "sui",
		CompileTimeoutS:  180,
		PromptsDir:       "prompts",
		LedgerPath:       "moveforge.ledger.db",
		ListenAddr:       ":8420",
		LogFile:          "moveforge.log",
	}
}

// Load reads a YAML config file over the defaults. A missing path is not an
// error: flags and defaults are a complete configuration on their own.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine would refuse anyway, before any
// work starts.
func (c Config) Validate() error {
	if c.PromptID == "" {
		return fmt.Errorf("prompt_id is required")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.SaveIterations && c.OutputDir == "" {
		return fmt.Errorf("output_dir is required when save_iterations is set")
	}
	return nil
}

// APIKey resolves the generation API key from the configured environment
// variable.
func (c Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// GenerateTimeout returns the generation call deadline.
func (c Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutS) * time.Second
}

// CompileTimeout returns the compile call deadline.
func (c Config) CompileTimeout() time.Duration {
	return time.Duration(c.CompileTimeoutS) * time.Second
}
