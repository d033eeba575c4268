package services

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// GeminiService talks to Google's Gemini API
type GeminiService struct {
	client *genai.Client
	model  string
}

// NewGeminiService creates a new Gemini service. An empty baseURL uses
// Google's endpoint.
func NewGeminiService(ctx context.Context, apiKey, baseURL, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiService{client: client, model: model}, nil
}

// NewChat starts a Gemini chat bound to systemInstruction
func (s *GeminiService) NewChat(ctx context.Context, systemInstruction string) (Chat, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}
	chat, err := s.client.Chats.Create(ctx, s.model, config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini chat: %w", err)
	}
	return &geminiChat{service: s, chat: chat, config: config}, nil
}

type geminiChat struct {
	service *GeminiService
	chat    *genai.Chat
	config  *genai.GenerateContentConfig
}

func (c *geminiChat) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: prompt}) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func (c *geminiChat) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.service.client.Models.GenerateContent(ctx, c.service.model, genai.Text(prompt), c.config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}
