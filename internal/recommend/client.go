// SPDX-License-Identifier: MIT

// Package recommend picks the best offer for a set of preferences and
// has a chat model phrase the recommendation for the user.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/log"
	"github.com/farewatch/farewatch/internal/metrics"
)

// ErrNoAPIKey is returned when the client is used without credentials.
var ErrNoAPIKey = errors.New("recommend: api key not configured")

const defaultMaxRetries = 3

// Client talks to an OpenAI-compatible chat completions endpoint
// (Together, OpenAI, or any server speaking the same wire format).
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	retries     int
	http        *http.Client
	logger      zerolog.Logger
}

// NewClient builds a chat client from config. The API key may be empty;
// Complete fails with ErrNoAPIKey then.
func NewClient(cfg config.LLMConfig) *Client {
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retries:     retries,
		http:        &http.Client{Timeout: cfg.Timeout},
		logger:      log.WithComponent("recommend"),
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends the messages and returns the assistant reply. Rate
// limits and server errors are retried with exponential backoff.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	reply, err := c.completeWithRetry(ctx, body)
	if err != nil {
		metrics.RecordLLMRequest("error", time.Since(start).Seconds())
		return "", err
	}
	metrics.RecordLLMRequest("success", time.Since(start).Seconds())
	return reply, nil
}

func (c *Client) completeWithRetry(ctx context.Context, body []byte) (string, error) {
	url := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.logger.Debug().
				Str("event", "llm.retry").
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying chat completion")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("chat request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
				lastErr = fmt.Errorf("chat api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
			} else {
				lastErr = fmt.Errorf("chat api error (%d)", resp.StatusCode)
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return "", lastErr
		}

		var chat chatResponse
		if err := json.Unmarshal(respBody, &chat); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(chat.Choices) == 0 {
			return "", fmt.Errorf("empty choices in response")
		}

		c.logger.Debug().
			Str("event", "llm.complete").
			Str("model", c.model).
			Int("total_tokens", chat.Usage.TotalTokens).
			Msg("chat completion finished")
		return strings.TrimSpace(chat.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.retries, lastErr)
}
