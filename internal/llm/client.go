package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generator turns a prompt into candidate contract source. Implemented by
// Client; faked in tests and by the refinement engine's test doubles.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (*Result, error)
}

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	limiter     *RateLimiter
	onUsage     func(*Result)
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model name.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL points the client at a different OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithRateLimiter guards requests with a token bucket.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithUsageHook registers a callback invoked with every successful
// generation's token and latency accounting.
func WithUsageHook(fn func(*Result)) Option {
	return func(c *Client) { c.onUsage = fn }
}

// NewClient creates a generation client for an OpenAI-compatible API.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     "https://api.openai.com/v1",
		model:       "gpt-4",
		temperature: 0.2,
		maxTokens:   8000,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int     `json:"index"`
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Result contains one generation's output and usage accounting.
type Result struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int
}

// Generate sends one chat-completion request. Failures map onto the closed
// error taxonomy: deadline/timeout -> ErrTimeout, HTTP 429 -> ErrRateLimited,
// undecodable or empty responses -> ErrInvalidResponse.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, rateLimitedErr(err.Error())
		}
	}

	start := time.Now()

	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordError()
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, timeoutErr(err.Error())
		}
		return nil, invalidResponseErr(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordError()
		return nil, invalidResponseErr(fmt.Sprintf("failed to read response: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.recordError()
		return nil, rateLimitedErr(fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	case resp.StatusCode != http.StatusOK:
		c.recordError()
		return nil, invalidResponseErr(fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		c.recordError()
		return nil, invalidResponseErr(fmt.Sprintf("failed to decode response: %v", err))
	}
	if len(chatResp.Choices) == 0 {
		c.recordError()
		return nil, invalidResponseErr("no choices in response")
	}

	c.recordSuccess()

	result := &Result{
		Content:          chatResp.Choices[0].Message.Content,
		Model:            chatResp.Model,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
		LatencyMs:        int(time.Since(start).Milliseconds()),
	}
	if c.onUsage != nil {
		c.onUsage(result)
	}
	return result, nil
}

func (c *Client) recordSuccess() {
	if c.limiter != nil {
		c.limiter.RecordSuccess()
	}
}

func (c *Client) recordError() {
	if c.limiter != nil {
		c.limiter.RecordError()
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
