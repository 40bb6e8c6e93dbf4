package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider implements the Provider interface using Anthropic's Claude
type ClaudeProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewClaudeProvider creates a new Claude provider. Without a configured key
// it falls back to STEPDROID_ANTHROPIC_KEY, then ANTHROPIC_API_KEY.
func NewClaudeProvider(cfg Config) (*ClaudeProvider, error) {
	key := apiKey(cfg.APIKey, "STEPDROID_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("STEPDROID_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeProvider{
		client:    &client,
		model:     model,
		maxTokens: maxTokens(cfg),
	}, nil
}

func (p *ClaudeProvider) Name() string { return "claude" }

// Complete sends the screenshot (if any) and the step prompt as one user message.
func (p *ClaudeProvider) Complete(ctx context.Context, turn Turn) (string, error) {
	userPrompt, err := buildUserPrompt(turn)
	if err != nil {
		return "", err
	}

	var blocks []anthropic.ContentBlockParamUnion
	if len(turn.Screenshot) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(turn.Screenshot)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(userPrompt))

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from Claude")
}
