package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

type AnthropicConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// AnthropicGenerator calls an Anthropic-compatible messages endpoint.
// Temperature and max tokens are fixed low at construction; reproducible SQL
// beats creative phrasing here.
type AnthropicGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	budget      time.Duration
	client      *http.Client
}

func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	budget := cfg.Timeout
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &AnthropicGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		budget:      budget,
		client:      &http.Client{},
	}, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	content, err := g.invoke(ctx, req.System, req.Messages, g.maxTokens)
	if err != nil {
		return Reply{}, err
	}
	sqlText, explanation := ExtractSQL(content)
	return Reply{
		SQL:         sqlText,
		Explanation: explanation,
		Model:       g.model,
	}, nil
}

// Ping sends a minimal message to verify the generation service answers.
func (g *AnthropicGenerator) Ping(ctx context.Context) error {
	_, err := g.invoke(ctx, "", []Message{{Role: "user", Content: "Respond with OK."}}, 8)
	return err
}

func (g *AnthropicGenerator) invoke(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":       g.model,
		"max_tokens":  maxTokens,
		"temperature": g.temperature,
		"messages":    messages,
	}
	if system != "" {
		payload["system"] = system
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal messages payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", g.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response body: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrUpstream, resp.StatusCode, truncateBody(rawRespBody))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	var builder strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(builder.String())
	if content == "" {
		return "", fmt.Errorf("%w: empty model response", ErrUpstream)
	}
	return content, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
