// Package llm wires the Tier-3 extraction fallback to an LLM completion
// API. Production use goes through AnthropicClient; tests use FakeClient.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Sonnet pricing, USD per token.
const (
	inputCostPerToken  = 3.0 / 1_000_000
	outputCostPerToken = 15.0 / 1_000_000
)

// Client completes a single-turn prompt and reports token usage so the
// caller can compute cost.
type Client interface {
	Complete(ctx context.Context, model string, maxTokens int, prompt string) (text string, inputTokens, outputTokens int, err error)
}

// Cost returns the USD cost of a completion at Sonnet pricing.
func Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*inputCostPerToken + float64(outputTokens)*outputCostPerToken
}

// AnthropicClient calls the real Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient returns a client authenticated with apiKey.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Complete sends prompt as a single user message and returns the first
// text block of the response along with token usage.
func (c *AnthropicClient) Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, int, int, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm: anthropic request failed: %w", err)
	}
	if len(message.Content) == 0 {
		return "", int(message.Usage.InputTokens), int(message.Usage.OutputTokens), fmt.Errorf("llm: empty response content")
	}
	return message.Content[0].Text, int(message.Usage.InputTokens), int(message.Usage.OutputTokens), nil
}

// FakeClient returns a fixed response regardless of prompt, for use in
// tests that exercise Tier 3 without a network call.
type FakeClient struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Err          error
}

// Complete implements Client.
func (f *FakeClient) Complete(_ context.Context, _ string, _ int, _ string) (string, int, int, error) {
	if f.Err != nil {
		return "", 0, 0, f.Err
	}
	return f.Text, f.InputTokens, f.OutputTokens, nil
}
