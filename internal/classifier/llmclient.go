// Package classifier drives an LLM-driven needs_response decision and an
// answer→question matcher, both against an OpenAI-compatible
// chat/completions endpoint. The transport is a thin net/http client
// guarded by a circuit breaker and a rate limiter (see DESIGN.md for why no
// SDK is used).
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Humphreey/pinokio/internal/breaker"
	"github.com/Humphreey/pinokio/internal/config"
	"github.com/Humphreey/pinokio/internal/ratelimit"
)

// Classification is the result of Classify.
type Classification struct {
	Class      int     `json:"class"`
	Confidence float64 `json:"confidence"`
}

// MatchResult is the result of MatchAnswer. MatchedMessageID carries the
// model's answer as a stream-id string (the candidates are keyed by stream
// id, not a numeric message id): a string answer is taken verbatim and a
// numeric answer n is formatted as "<n>-0". The candidates are not consulted
// to check or map the value — see DESIGN.md.
type MatchResult struct {
	MatchedMessageID *string
}

// Candidate is a merchant final message offered to MatchAnswer.
type Candidate struct {
	StreamID string
	Text     string
}

// Client talks to the configured LLM endpoint.
type Client struct {
	httpClient *http.Client
	breaker    *breaker.Breaker
	limiter    *ratelimit.Limiter

	baseURL string
	apiKey  string
	model   string

	systemPrompt         string
	classificationSchema map[string]any
	qaLinkSystemPrompt   string
	qaLinkSchema         map[string]any
}

// New builds a classifier Client from settings and prompts config.
func New(s *config.Settings, prompts *config.PromptsConfig, br *breaker.Breaker, limiter *ratelimit.Limiter) *Client {
	return &Client{
		httpClient:           &http.Client{Timeout: 30 * time.Second},
		breaker:              br,
		limiter:              limiter,
		baseURL:              s.LLMURL,
		apiKey:               s.LLMAPIKey,
		model:                s.LLMModel,
		systemPrompt:         prompts.SystemPrompt,
		classificationSchema: prompts.ClassificationSchema,
		qaLinkSystemPrompt:   prompts.QALinkSystemPrompt,
		qaLinkSchema:         prompts.QALinkSchema,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Type       string `json:"type"`
	JSONSchema struct {
		Name   string         `json:"name"`
		Schema map[string]any `json:"schema"`
	} `json:"json_schema"`
}

type chatCompletionRequest struct {
	Model          string           `json:"model"`
	Messages       []chatMessage    `json:"messages"`
	ResponseFormat jsonSchemaFormat `json:"response_format"`
	Temperature    float64          `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, schemaName string, schema map[string]any, messages []chatMessage) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("classifier: rate limit: %w", err)
		}
	}

	req := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.0,
	}
	req.ResponseFormat.Type = "json_schema"
	req.ResponseFormat.JSONSchema.Name = schemaName
	req.ResponseFormat.JSONSchema.Schema = schema

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("classifier: marshal request: %w", err)
	}

	call := func() (any, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("classifier: request error: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("classifier: read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("classifier: http status %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed chatCompletionResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("classifier: decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return nil, fmt.Errorf("classifier: empty choices")
		}
		return parsed.Choices[0].Message.Content, nil
	}

	var result any
	if c.breaker != nil {
		result, err = c.breaker.Execute(call)
	} else {
		result, err = call()
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Classify decides whether a merchant message needs an operator response.
// Failure propagates to the caller (ingress responds 5xx).
func (c *Client) Classify(ctx context.Context, text string) (Classification, error) {
	raw, err := c.complete(ctx, "classification", c.classificationSchema, []chatMessage{
		{Role: "system", Content: c.systemPrompt},
		{Role: "user", Content: "Классифицируй следующий текст:\n\n" + text},
	})
	if err != nil {
		return Classification{}, err
	}

	parsed, err := parseLLMJSON(raw)
	if err != nil || parsed == nil {
		return Classification{}, fmt.Errorf("classifier: could not parse classification response: %v", err)
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return Classification{}, fmt.Errorf("classifier: classification response is not an object")
	}
	var out Classification
	if v, ok := m["class"].(float64); ok {
		out.Class = int(v)
	}
	if v, ok := m["confidence"].(float64); ok {
		out.Confidence = v
	}
	return out, nil
}

// MatchAnswer pairs an operator answer with the merchant final message it
// resolves. Up to 3 attempts; degrades to a null match after exhausting
// retries rather than propagating an error, so a flaky LLM response never
// blocks the operator's reply from going through.
func (c *Client) MatchAnswer(ctx context.Context, candidates []Candidate, answer string) MatchResult {
	candidatesStr := ""
	for _, cand := range candidates {
		candidatesStr += fmt.Sprintf("%s: merchant: %s\n", cand.StreamID, cand.Text)
	}
	userMsg := fmt.Sprintf("Candidates:\n%s\nAnswer:\nPP: %s\n\nReturn strict JSON only.", candidatesStr, answer)

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		prompt := userMsg
		if attempt > 0 {
			prompt = "Last attempt failed. Try again:\n\n" + userMsg
		}
		raw, err := c.complete(ctx, "qa_link", c.qaLinkSchema, []chatMessage{
			{Role: "system", Content: c.qaLinkSystemPrompt},
			{Role: "user", Content: prompt},
		})
		if err != nil {
			continue
		}
		parsed, err := parseLLMJSON(raw)
		if err != nil || parsed == nil {
			continue
		}
		m, ok := parsed.(map[string]any)
		if !ok {
			continue
		}
		matched, present := m["matched_message_id"]
		if !present || matched == nil {
			return MatchResult{MatchedMessageID: nil}
		}
		switch v := matched.(type) {
		case string:
			return MatchResult{MatchedMessageID: &v}
		case float64:
			id := fmt.Sprintf("%d-0", int64(v))
			return MatchResult{MatchedMessageID: &id}
		}
		// Wrong type for matched_message_id: treat as a bad response and retry.
	}
	return MatchResult{MatchedMessageID: nil}
}
