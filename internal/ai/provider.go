package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/v0xg/stepdroid/internal/device"
)

// Turn is everything the model sees for one step
type Turn struct {
	Instruction string
	// Screenshot is PNG data; nil when capture is unavailable.
	Screenshot []byte
	Elements   []device.Element
}

// Provider defines the interface for one model turn. It returns the raw
// reply text; recovering an action from it is the parser's job.
type Provider interface {
	Name() string
	Complete(ctx context.Context, turn Turn) (string, error)
}

// Config selects and configures a provider
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "claude", "anthropic":
		return NewClaudeProvider(cfg)
	case "openai", "gpt":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", cfg.Provider)
	}
}

// apiKey returns the configured key or the first set environment variable.
func apiKey(configured string, envs ...string) string {
	if configured != "" {
		return configured
	}
	for _, e := range envs {
		if v := os.Getenv(e); v != "" {
			return v
		}
	}
	return ""
}

func maxTokens(cfg Config) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 1024
}
