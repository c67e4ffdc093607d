package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/pkg/config"
)

const defaultAPIURL = "https://api.deepseek.com/v1/chat/completions"

// Config holds DeepSeek chat-completion settings.
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ConfigFromEnv reads DeepSeek settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		APIURL:      config.GetEnv("DEEPSEEK_API_URL", defaultAPIURL),
		APIKey:      config.GetEnv("DEEPSEEK_API_KEY", ""),
		Model:       config.GetEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		Temperature: config.GetEnvFloat("DEEPSEEK_TEMPERATURE", 0.7),
		MaxTokens:   config.GetEnvInt("DEEPSEEK_MAX_TOKENS", 1024),
	}
}

// Client generates responses through the DeepSeek chat-completions API.
// Every request goes through the gateway so it shares the hourly quota.
type Client struct {
	gw     *gateway.Gateway
	apiURL string
	apiKey string
	model  string
	temp   float64
	maxTok int
}

func NewClient(gw *gateway.Gateway, cfg Config) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		gw:     gw,
		apiURL: apiURL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		temp:   cfg.Temperature,
		maxTok: cfg.MaxTokens,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a system prompt and a user prompt and returns the model's
// reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	})
	if err != nil {
		return "", fmt.Errorf("deepseek: marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("deepseek: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	body, err := c.gw.Do(ctx, req)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &gateway.UpstreamError{
			Status: http.StatusOK,
			Body:   gateway.Truncate(string(body), 500),
		}
	}
	if len(parsed.Choices) == 0 {
		return "", &gateway.UpstreamError{
			Status: http.StatusOK,
			Body:   gateway.Truncate(string(body), 500),
		}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
