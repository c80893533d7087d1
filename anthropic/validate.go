// Package anthropic adapts the Anthropic Messages API to the review query contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

var errEmptyKey = errors.New("API key is empty")

// Validate sends a one-token request to the fast model so a rejected key or
// unknown model fails at startup instead of on the first webhook.
func (q *Querier) Validate(ctx context.Context) error {
	if q.apiKey == "" {
		return errEmptyKey
	}
	_, err := q.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(q.fastModel),
		MaxTokens: anthropic.F(int64(1)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("hi")),
		}),
	})
	if err != nil {
		return fmt.Errorf("key %s rejected: %w", KeyHint(q.apiKey), err)
	}
	return nil
}

// KeyHint returns the last 4 characters of a key for log lines.
func KeyHint(apiKey string) string {
	if len(apiKey) < 4 {
		return "****"
	}
	return apiKey[len(apiKey)-4:]
}
