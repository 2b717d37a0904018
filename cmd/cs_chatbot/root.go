package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cs_chatbot/pkg/ai"
	"cs_chatbot/pkg/config"
	"cs_chatbot/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "cs_chatbot",
	Short: "Customer-complaint chatbot for the terminal",
	Long: `cs_chatbot relays customer complaints to a Gemini model and keeps the
conversation as a transcript. When the provider reports quota exhaustion (429)
the history is trimmed and the request retried with exponential backoff.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to config.json (default ~/.cs_chatbot/config.json)")
	rootCmd.PersistentFlags().String("provider", "", "LLM provider: google or openai")
	rootCmd.PersistentFlags().String("model", "", "Model to use (see 'cs_chatbot models')")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (trace, debug, info, warn, error)")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(path) == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		providerType, ok := ai.ValidateProviderType(provider)
		if !ok {
			return config.Config{}, fmt.Errorf("unsupported provider %q", provider)
		}
		if !ai.DefaultRegistry.IsRegistered(providerType) {
			return config.Config{}, fmt.Errorf("provider %q is not available in this build", provider)
		}
		cfg.LLMProvider = provider
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		if cfg.LLMProvider == string(ai.ProviderGoogle) {
			if model, err = ai.ValidateModel(model); err != nil {
				return config.Config{}, err
			}
		}
		cfg.SetModel(model)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if _, err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
	}
	slog.Debug("config_loaded", "path", path, "provider", cfg.LLMProvider, "model", cfg.ActiveModel())
	return cfg, nil
}
