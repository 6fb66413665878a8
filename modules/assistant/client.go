// Package assistant calls an OpenAI-compatible chat-completions API to
// generate inline AI replies. It is invoked by the gateway's request
// layer; the relay core never calls it.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/metrics"
)

const (
	// historyWindow bounds how much trailing conversation rides along as
	// context.
	historyWindow = 10

	systemPrompt = "You are a helpful AI assistant in a chat room. Be concise, friendly, and helpful. Keep responses brief and conversational."

	temperature = 0.7
	maxTokens   = 500
)

// Config holds the upstream API settings.
type Config struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// CompletionError is an upstream failure with an HTTP-style status and
// the upstream's error body.
type CompletionError struct {
	StatusCode int
	Details    string
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed with status %d: %s", e.StatusCode, e.Details)
}

// Client is an HTTP client for the completions API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete generates a reply to message given the trailing room
// history. Messages written by askingUserID are presented to the model
// as the user's side of the conversation, everything else as the
// assistant's.
func (c *Client) Complete(ctx context.Context, message string, history []domain.Message, askingUserID string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &CompletionError{StatusCode: http.StatusInternalServerError, Details: "assistant API key not configured"}
	}

	messages := make([]chatMessage, 0, historyWindow+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, msg := range history {
		role := "assistant"
		if msg.UserID == askingUserID {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: message})

	body, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.AssistantRequests.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.AssistantRequests.WithLabelValues("upstream_error").Inc()
		return "", &CompletionError{StatusCode: resp.StatusCode, Details: string(raw)}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		metrics.AssistantRequests.WithLabelValues("bad_response").Inc()
		return "", &CompletionError{
			StatusCode: http.StatusInternalServerError,
			Details:    fmt.Sprintf("expected JSON response but got %s", ct),
		}
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.AssistantRequests.WithLabelValues("bad_response").Inc()
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		metrics.AssistantRequests.WithLabelValues("ok").Inc()
		return "Sorry, I couldn't generate a response.", nil
	}

	metrics.AssistantRequests.WithLabelValues("ok").Inc()
	return result.Choices[0].Message.Content, nil
}
