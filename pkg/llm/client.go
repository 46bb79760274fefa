// Package llm implements the LLM collaborator: a thin HTTP client for
// chat-completion calls (used by the /ai/evaluate batch judging), plus a
// gRPC health probe against the backend.
// Grounded in original_source/backend/app/services/llm_client.py's
// AsyncOpenAI wrapper and tarsy's pkg/llm/client.go gRPC connection
// lifecycle (NewClient/Close, env-driven model selection).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
	"github.com/hyxiaoge/prompthub/pkg/version"
)

// Config carries the collaborator's connection settings, loaded from
// environment by pkg/config.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HealthAddr string // optional gRPC health-check endpoint, host:port
}

// Response is a single completion's content and token usage.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is the process-wide LLM collaborator handle: created once at
// startup by cmd/prompthub (not lazily on first use; there is no reset
// hook) and reused, safe for concurrent callers because its http.Client's
// transport is multi-caller safe.
type Client struct {
	httpClient *http.Client
	healthConn *grpc.ClientConn
	cfg        Config
}

// NewClient builds a Client. If cfg.HealthAddr is set, it also dials a
// gRPC connection used only for health checks via the standard
// grpc_health_v1 service — the collaborator's actual completion traffic
// goes over HTTP, matching the original's AsyncOpenAI transport.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
	if cfg.HealthAddr != "" {
		conn, err := grpc.NewClient(cfg.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to dial LLM health endpoint: %w", err)
		}
		c.healthConn = conn
	}
	return c, nil
}

// Close releases the health-check connection, if any.
func (c *Client) Close() error {
	if c.healthConn != nil {
		return c.healthConn.Close()
	}
	return nil
}

// Healthy reports whether the configured gRPC health endpoint reports
// SERVING. Returns true (skip) when no HealthAddr was configured.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	if c.healthConn == nil {
		return true, nil
	}
	hc := grpc_health_v1.NewHealthClient(c.healthConn)
	resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return false, err
	}
	return resp.Status == grpc_health_v1.HealthCheckResponse_SERVING, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete issues a single chat-completion call, mirroring
// llm_client.py's complete(). Any transport or non-2xx failure surfaces as
// LLM_UNAVAILABLE, never a raw error, so callers don't need to know the
// collaborator's wire shape.
func (c *Client) Complete(ctx context.Context, system, prompt string) (*Response, error) {
	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return nil, apperr.LLMUnavailable(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.LLMUnavailable(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.LLMUnavailable(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.LLMUnavailable(err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.LLMUnavailable(fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.LLMUnavailable("malformed response: " + err.Error())
	}
	if len(parsed.Choices) == 0 {
		return nil, apperr.LLMUnavailable("empty choices in response")
	}

	return &Response{
		Content:          parsed.Choices[0].Message.Content,
		Model:            parsed.Model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}
