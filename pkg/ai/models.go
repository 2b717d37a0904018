package ai

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultModel is the model selected when none is configured.
const DefaultModel = "gemini-2.0-flash"

// ModelOptions is the allow-list of selectable Gemini models.
// Experimental ("-exp") variants are deliberately absent.
var ModelOptions = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-2.0-flash-001",
	"gemini-2.0",
	"gemini-1.5",
}

// ValidateModel returns the trimmed model name when it is on the allow-list.
// An empty name resolves to DefaultModel.
func ValidateModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return DefaultModel, nil
	}
	if !slices.Contains(ModelOptions, model) {
		return "", fmt.Errorf("unsupported model %q (choose one of: %s)", model, strings.Join(ModelOptions, ", "))
	}
	return model, nil
}
