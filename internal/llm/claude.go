// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// claudeBaseURL overrides the Anthropic API endpoint when set. Package-level
// var for test substitution.
var claudeBaseURL = ""

const defaultMaxTokens = 1024

// Completer sends one prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Claude is a Completer backed by the Anthropic Messages API.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaude builds a Claude completer from the AI settings. The SDK retries
// transient failures up to cfg.MaxRetries times.
func NewClaude(cfg types.AIConfig) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key not set: add anthropic-api-key to the secrets directory or set RECONCILE_ENGINE_ANTHROPIC_API_KEY")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if claudeBaseURL != "" {
		opts = append(opts, option.WithBaseURL(claudeBaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = types.DefaultEngineConfig().Enrichment.Model
	}
	return &Claude{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Complete sends prompt as a single user message.
func (c *Claude) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text content in Claude API response")
	}
	return text.String(), nil
}
