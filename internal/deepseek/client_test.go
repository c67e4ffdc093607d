package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/pkg/clients"
)

func testGateway(limit int) *gateway.Gateway {
	return gateway.New(gateway.Config{
		Upstream: "deepseek",
		Quota:    gateway.NewHourlyQuota(limit),
		Retry: &clients.RetryConfig{
			MaxRetries: 0,
			RetryFunc:  clients.TransportOnlyShouldRetry,
		},
	})
}

func TestCompleteSendsPromptsAndExtractsReply(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  你好！很高兴认识你。  "}}]}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(5), Config{
		APIURL:      server.URL,
		APIKey:      "test-key",
		Model:       "deepseek-chat",
		Temperature: 0.7,
		MaxTokens:   512,
	})

	reply, err := c.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "你好！很高兴认识你。" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	if captured.Model != "deepseek-chat" {
		t.Fatalf("unexpected model: %q", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "system prompt" {
		t.Fatalf("unexpected system message: %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" || captured.Messages[1].Content != "user prompt" {
		t.Fatalf("unexpected user message: %+v", captured.Messages[1])
	}
}

func TestCompleteRejectsMissingChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(5), Config{APIURL: server.URL, Model: "deepseek-chat"})

	_, err := c.Complete(context.Background(), "s", "u")
	var upErr *gateway.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestCompletePropagatesQuotaExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	c := NewClient(testGateway(1), Config{APIURL: server.URL, Model: "deepseek-chat"})

	if _, err := c.Complete(context.Background(), "s", "u"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, gateway.ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
}

func TestCompletePropagatesUpstreamRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(testGateway(5), Config{APIURL: server.URL, Model: "deepseek-chat"})

	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, gateway.ErrUpstreamRateLimited) {
		t.Fatalf("expected ErrUpstreamRateLimited, got %v", err)
	}
}
