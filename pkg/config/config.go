package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvGeminiAPIKey overrides providers.google.api_key when set.
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	// EnvOpenAIAPIKey overrides providers.openai.api_key when set.
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	AutoSaveCSV    = "csv"
	AutoSaveSQLite = "sqlite"
)

// Config represents the application configuration
type Config struct {
	LLMProvider    string          `json:"llm_provider"`
	Providers      ProvidersConfig `json:"providers"`
	Retry          RetryConfig     `json:"retry"`
	AutoSave       bool            `json:"auto_save"`
	AutoSaveTarget string          `json:"auto_save_target"`
	ExportDir      string          `json:"export_dir"`
	ArchivePath    string          `json:"archive_path"`
	MetricsAddr    string          `json:"metrics_addr"`
	LogLevel       string          `json:"log_level"`
	LogFile        string          `json:"log_file"`
	LogFormat      string          `json:"log_format"`
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	Google GoogleConfig `json:"google"`
	OpenAI OpenAIConfig `json:"openai"`
}

// GoogleConfig holds the Gemini API configuration
type GoogleConfig struct {
	APIKey            string  `json:"api_key"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds"`
}

// OpenAIConfig holds settings for any OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey            string  `json:"api_key"`
	APIURL            string  `json:"api_url"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds"`
}

// RetryConfig tunes the quota-exceeded retry loop.
type RetryConfig struct {
	MaxAttempts        int     `json:"max_attempts"`
	KeepTurns          int     `json:"keep_turns"`
	BackoffBaseSeconds float64 `json:"backoff_base_seconds"`
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		LLMProvider: "google",
		Providers: ProvidersConfig{
			Google: GoogleConfig{
				Model:             "gemini-2.0-flash",
				Temperature:       0.7,
				MaxTokens:         0,
				APITimeoutSeconds: 60,
			},
			OpenAI: OpenAIConfig{
				APIURL:            "https://generativelanguage.googleapis.com/v1beta/openai/",
				Model:             "gemini-2.0-flash",
				Temperature:       0.7,
				APITimeoutSeconds: 60,
			},
		},
		Retry: RetryConfig{
			MaxAttempts:        3,
			KeepTurns:          6,
			BackoffBaseSeconds: 2,
		},
		AutoSave:       false,
		AutoSaveTarget: AutoSaveCSV,
		ExportDir:      defaultDataPath("exports"),
		ArchivePath:    defaultDataPath("archive.db"),
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load loads configuration from the specified path.
// If the file doesn't exist, creates one with default values. Fields missing
// from an existing file keep their defaults. Credential environment variables
// are applied last.
func Load(configPath string) (Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(configPath, cfg); err != nil {
				return Config{}, fmt.Errorf("failed to create default config: %w", err)
			}
			return cfg.ApplyEnv(), nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg.ApplyEnv(), nil
}

// Save saves the configuration to the specified path
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ApplyEnv returns a copy of c with credentials taken from the environment
// where the corresponding variable is set.
func (c Config) ApplyEnv() Config {
	if v := strings.TrimSpace(os.Getenv(EnvGeminiAPIKey)); v != "" {
		c.Providers.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	return c
}

// ActiveModel returns the model configured for the selected provider.
func (c Config) ActiveModel() string {
	if c.LLMProvider == "openai" {
		return strings.TrimSpace(c.Providers.OpenAI.Model)
	}
	return strings.TrimSpace(c.Providers.Google.Model)
}

// SetModel overrides the model of the selected provider.
func (c *Config) SetModel(model string) {
	if c.LLMProvider == "openai" {
		c.Providers.OpenAI.Model = model
		return
	}
	c.Providers.Google.Model = model
}

// Validate checks if the configuration is valid.
// A missing API key is not a validation error: it is reported when a message is sent.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "google":
		if err := validateModelSettings(c.Providers.Google.Model, c.Providers.Google.Temperature, c.Providers.Google.MaxTokens, c.Providers.Google.APITimeoutSeconds); err != nil {
			return fmt.Errorf("providers.google: %w", err)
		}
	case "openai":
		if strings.TrimSpace(c.Providers.OpenAI.APIURL) == "" {
			return fmt.Errorf("providers.openai: api_url is required")
		}
		if err := validateModelSettings(c.Providers.OpenAI.Model, c.Providers.OpenAI.Temperature, c.Providers.OpenAI.MaxTokens, c.Providers.OpenAI.APITimeoutSeconds); err != nil {
			return fmt.Errorf("providers.openai: %w", err)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got: %d", c.Retry.MaxAttempts)
	}
	if c.Retry.KeepTurns < 0 {
		return fmt.Errorf("retry.keep_turns must not be negative, got: %d", c.Retry.KeepTurns)
	}
	if c.Retry.BackoffBaseSeconds < 1 {
		return fmt.Errorf("retry.backoff_base_seconds must be at least 1, got: %f", c.Retry.BackoffBaseSeconds)
	}

	switch c.AutoSaveTarget {
	case AutoSaveCSV:
		if c.AutoSave && strings.TrimSpace(c.ExportDir) == "" {
			return fmt.Errorf("export_dir is required when auto_save targets csv")
		}
	case AutoSaveSQLite:
		if c.AutoSave && strings.TrimSpace(c.ArchivePath) == "" {
			return fmt.Errorf("archive_path is required when auto_save targets sqlite")
		}
	default:
		return fmt.Errorf("unsupported auto_save_target: %s", c.AutoSaveTarget)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log_level: %s", c.LogLevel)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}

	return nil
}

func validateModelSettings(model string, temperature float64, maxTokens, timeoutSeconds int) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model is required")
	}
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got: %f", temperature)
	}
	if maxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got: %d", maxTokens)
	}
	if timeoutSeconds <= 0 {
		return fmt.Errorf("api_timeout_seconds must be positive, got: %d", timeoutSeconds)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return defaultDataPath("config.json")
}

func defaultDataPath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(homeDir) == "" {
		return filepath.Join(".cs_chatbot", name)
	}
	return filepath.Join(homeDir, ".cs_chatbot", name)
}
