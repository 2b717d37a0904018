package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cs_chatbot/pkg/ai"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List selectable models and providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		current := cfg.ActiveModel()

		fmt.Fprintln(out, "Models:")
		for _, m := range ai.ModelOptions {
			marker := " "
			if m == current {
				marker = "*"
			}
			suffix := ""
			if m == ai.DefaultModel {
				suffix = " (default)"
			}
			fmt.Fprintf(out, "  %s %s%s\n", marker, m, suffix)
		}

		fmt.Fprintln(out, "\nProviders:")
		for _, p := range ai.ListProviders() {
			marker := " "
			if string(p.Type) == cfg.LLMProvider {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %-8s %s\n", marker, p.Type, p.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
