// Package llm adapts language generation providers to domain.Generator.
package llm

import (
	"fmt"
	"os"
	"time"

	"shopassist/internal/config"
	"shopassist/internal/domain"
)

// NewGenerator builds the provider selected in cfg.
func NewGenerator(cfg config.LLMConfig) (domain.Generator, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	key := os.Getenv(cfg.APIKeyEnv)
	switch cfg.Provider {
	case "gemini":
		return NewGemini(GeminiConfig{BaseURL: cfg.BaseURL, APIKey: key, Model: cfg.Model, Timeout: timeout}), nil
	case "openai", "deepseek", "ollama":
		base := cfg.BaseURL
		if base == "" && cfg.Provider == "deepseek" {
			base = "https://api.deepseek.com"
		}
		return NewOpenAI(OpenAIConfig{BaseURL: base, APIKey: key, Model: cfg.Model, Timeout: timeout}), nil
	case "mock":
		return NewMock("shopassist"), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
