package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quibble-sh/quibble/internal/model"
	"github.com/quibble-sh/quibble/internal/resilience"
)

const extractionSystemPrompt = `You extract structured search fields from a user's description of a card transaction they do not recognize.
Respond with ONLY a JSON object, no prose, with these optional keys:
  "amount": number, the approximate amount mentioned
  "date": string, ISO date YYYY-MM-DD the user referred to
  "merchant": string, the merchant name as the user said it
  "transaction_id": string, only if the user quoted an explicit transaction ID
Omit any key the user did not mention. Never invent values.`

// chatClient talks to an OpenAI-compatible chat-completions endpoint.
type chatClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// newChatClient creates a chat-completions client.
func newChatClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = "llama-3.3-70b-versatile"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}

	return &chatClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       chatModel,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// ExtractQuery asks the model for the structured fields in the utterance.
// HTTP 429 and 5xx responses are transient; other non-200s are permanent.
func (c *chatClient) ExtractQuery(ctx context.Context, utterance string) (model.MatchQuery, error) {
	requestBody := map[string]any{
		"model":       c.model,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": extractionSystemPrompt},
			{"role": "user", "content": utterance},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return model.MatchQuery{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return model.MatchQuery{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.MatchQuery{}, resilience.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.MatchQuery{}, resilience.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("provider API error (status %d): %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return model.MatchQuery{}, resilience.Transient(apiErr)
		}
		return model.MatchQuery{}, resilience.Permanent(apiErr)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return model.MatchQuery{}, resilience.Transient(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(response.Choices) == 0 {
		return model.MatchQuery{}, resilience.Transient(fmt.Errorf("no choices in response"))
	}

	return parseExtraction(response.Choices[0].Message.Content)
}

// parseExtraction converts the model's JSON output into a MatchQuery.
func parseExtraction(content string) (model.MatchQuery, error) {
	var fields struct {
		Amount        *float64 `json:"amount"`
		Date          string   `json:"date"`
		Merchant      string   `json:"merchant"`
		TransactionID string   `json:"transaction_id"`
	}

	content = cleanMarkdownWrapper(content)
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return model.MatchQuery{}, resilience.Transient(fmt.Errorf("failed to parse extraction JSON: %w", err))
	}

	var query model.MatchQuery
	if fields.Amount != nil {
		amount := decimal.NewFromFloat(*fields.Amount)
		query.Amount = &amount
	}
	if fields.Date != "" {
		parsed, err := time.Parse("2006-01-02", fields.Date)
		if err != nil {
			return model.MatchQuery{}, resilience.Transient(fmt.Errorf("malformed date %q in extraction: %w", fields.Date, err))
		}
		query.Date = &parsed
	}
	query.MerchantText = fields.Merchant
	query.TransactionID = fields.TransactionID

	return query, nil
}

// chatResponse is the OpenAI-compatible completion payload.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
