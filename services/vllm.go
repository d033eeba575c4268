package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// VLLMService talks to an OpenAI-compatible chat completions server such as
// vLLM, or to OpenAI itself when no base URL is set.
type VLLMService struct {
	client *openai.Client
	model  string
}

// NewVLLMService creates a new OpenAI-compatible service. A self-hosted
// server needs only baseURL; OpenAI proper needs apiKey.
func NewVLLMService(apiKey, baseURL, model string) (*VLLMService, error) {
	if apiKey == "" && baseURL == "" {
		return nil, ErrMissingCredential
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}
	return &VLLMService{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// NewChat starts a conversation that keeps its history client side
func (s *VLLMService) NewChat(_ context.Context, systemInstruction string) (Chat, error) {
	return &vllmChat{
		service: s,
		system: openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		},
	}, nil
}

type vllmChat struct {
	service *VLLMService
	system  openai.ChatCompletionMessage

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func (c *vllmChat) messages(prompt string) []openai.ChatCompletionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]openai.ChatCompletionMessage, 0, len(c.history)+2)
	msgs = append(msgs, c.system)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return msgs
}

// record appends a completed exchange; failed turns are never recorded
func (c *vllmChat) record(prompt, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
}

func (c *vllmChat) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := c.service.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    c.service.model,
			Messages: c.messages(prompt),
			Stream:   true,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to send request to vLLM: %w", err))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				c.record(prompt, reply.String())
				return
			}
			if err != nil {
				yield("", fmt.Errorf("failed to read vLLM stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			chunk := resp.Choices[0].Delta.Content
			reply.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (c *vllmChat) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.service.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.service.model,
		Messages: []openai.ChatCompletionMessage{
			c.system,
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send request to vLLM: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from vLLM")
	}
	return resp.Choices[0].Message.Content, nil
}
