// Package llm implements the client for the external reasoning provider.
// Its single job here is turning a sanitized user utterance into a
// structured match query; every call out goes through the resilience
// executor.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/quibble-sh/quibble/internal/model"
)

// Client defines the interface for reasoning providers.
type Client interface {
	ExtractQuery(ctx context.Context, utterance string) (model.MatchQuery, error)
}

// Config holds configuration for the provider client.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewClient creates a provider client. Groq and OpenAI share the same
// chat-completions wire format, so both route to the same implementation.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "groq", "openai":
		return newChatClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// cleanMarkdownWrapper strips a markdown code fence the model sometimes
// wraps around its JSON output.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx != -1 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
