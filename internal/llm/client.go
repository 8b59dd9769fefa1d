// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL         = "http://localhost:1234/v1/chat/completions"
	DefaultModel       = "liquid/lfm2.5-vl-1.6b"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 300
	DefaultTimeout     = 30 * time.Second
)

// DefaultSystemPrompt tells the model to answer with the decision shape only.
const DefaultSystemPrompt = `You are Kellan, an AI foreman. You receive a command and scene context. ` +
	`Return STRICT JSON only: {"summary":string,"target_found":bool,"target_tag":string,` +
	`"action":{"action":string,"target":string,"direction":string,"speed":string}}. ` +
	`Valid actions: move_to, pick_up, place, look_at, wait. Never invent objects. Only reference tags from context.`

const instruction = "Execute your current command based on what you see."

// ErrEmptyResponse is returned when the server answers without any choice.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Client talks to an OpenAI-compatible chat completions endpoint serving a
// vision model.
type Client struct {
	url          string
	model        string
	temperature  float64
	maxTokens    int
	systemPrompt string
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithModel(model string) Option { return func(c *Client) { c.model = model } }

func WithTemperature(t float64) Option { return func(c *Client) { c.temperature = t } }

func WithMaxTokens(n int) Option { return func(c *Client) { c.maxTokens = n } }

func WithSystemPrompt(p string) Option { return func(c *Client) { c.systemPrompt = p } }

// WithTimeout sets the HTTP timeout for one request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for url. An empty url uses DefaultURL.
func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:          strings.TrimRight(url, "/"),
		model:        DefaultModel,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		systemPrompt: DefaultSystemPrompt,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) buildRequest(image []byte, contextJSON string) chatRequest {
	return chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "context: " + contextJSON},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)}},
				{Type: "text", Text: instruction},
			}},
		},
		Temperature: c.temperature,
		Stream:      false,
		MaxTokens:   c.maxTokens,
	}
}

// Decide sends a PNG snapshot and its perception context and returns the
// model's raw reply text. The reply is not parsed here.
func (c *Client) Decide(ctx context.Context, image []byte, contextJSON string) (string, error) {
	body, err := json.Marshal(c.buildRequest(image, contextJSON))
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("decision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("decision request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// Healthcheck checks that the server lists models.
func (c *Client) Healthcheck(ctx context.Context) error {
	base := strings.TrimSuffix(c.url, "/chat/completions")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}
