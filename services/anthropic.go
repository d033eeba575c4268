package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicService handles communication with the Anthropic API
type AnthropicService struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewAnthropicService creates a new Anthropic service. baseURL overrides the
// public endpoint when set.
func NewAnthropicService(apiKey, baseURL, model string) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	url := anthropicAPIURL
	if baseURL != "" {
		url = strings.TrimRight(baseURL, "/") + "/v1/messages"
	}
	return &AnthropicService{
		apiKey: apiKey,
		url:    url,
		model:  model,
		client: &http.Client{},
	}, nil
}

// AnthropicMessage represents a message in the Anthropic API format
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicRequest represents a request to the Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

// AnthropicResponse represents a response from the Anthropic API
type AnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// anthropicEvent is the data payload of one streamed event
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewChat starts a conversation that keeps its history client side
func (s *AnthropicService) NewChat(_ context.Context, systemInstruction string) (Chat, error) {
	return &anthropicChat{service: s, system: systemInstruction}, nil
}

func (s *AnthropicService) post(ctx context.Context, reqBody AnthropicRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var apiResp AnthropicResponse
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			return nil, fmt.Errorf("anthropic API error: %s", apiResp.Error.Message)
		}
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

type anthropicChat struct {
	service *AnthropicService
	system  string

	mu      sync.Mutex
	history []AnthropicMessage
}

func (c *anthropicChat) request(prompt string, stream bool) AnthropicRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]AnthropicMessage, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, AnthropicMessage{Role: "user", Content: prompt})
	return AnthropicRequest{
		Model:     c.service.model,
		MaxTokens: 4096,
		System:    c.system,
		Messages:  msgs,
		Stream:    stream,
	}
}

func (c *anthropicChat) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.service.post(ctx, c.request(prompt, true))
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		var reply strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var event anthropicEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				yield("", fmt.Errorf("failed to unmarshal stream event: %w", err))
				return
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				reply.WriteString(event.Delta.Text)
				if !yield(event.Delta.Text, nil) {
					return
				}
			case "error":
				msg := "unknown error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				yield("", fmt.Errorf("anthropic API error: %s", msg))
				return
			case "message_stop":
				c.mu.Lock()
				c.history = append(c.history,
					AnthropicMessage{Role: "user", Content: prompt},
					AnthropicMessage{Role: "assistant", Content: reply.String()},
				)
				c.mu.Unlock()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("failed to read response: %w", err))
			return
		}
		yield("", fmt.Errorf("anthropic stream ended before message_stop"))
	}
}

func (c *anthropicChat) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := AnthropicRequest{
		Model:     c.service.model,
		MaxTokens: 4096,
		System:    c.system,
		Messages:  []AnthropicMessage{{Role: "user", Content: prompt}},
	}
	resp, err := c.service.post(ctx, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if anthropicResp.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", anthropicResp.Error.Message)
	}
	if len(anthropicResp.Content) == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}
	return anthropicResp.Content[0].Text, nil
}
