package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"diet-chat/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, chat Chat, prompt string) (string, error) {
	t.Helper()
	var b strings.Builder
	for chunk, err := range chat.Stream(context.Background(), prompt) {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func TestNewModelMissingCredential(t *testing.T) {
	for _, provider := range []string{config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic} {
		t.Run(provider, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.LLM.Provider = provider
			_, err := NewModel(context.Background(), cfg)
			assert.ErrorIs(t, err, ErrMissingCredential)
		})
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "parrot"
	_, err := NewModel(context.Background(), cfg)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingCredential)
}

func TestAnthropicStream(t *testing.T) {
	var requests []AnthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))

		var req AnthropicRequest
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))
		requests = append(requests, req)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Eat \"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"greens\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	svc, err := NewAnthropicService("key", server.URL, "claude")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "be helpful")
	require.NoError(t, err)

	got, err := collect(t, chat, "first")
	require.NoError(t, err)
	assert.Equal(t, "Eat greens", got)

	_, err = collect(t, chat, "second")
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, "be helpful", requests[0].System)
	assert.True(t, requests[0].Stream)
	assert.Equal(t, []AnthropicMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "Eat greens"},
		{Role: "user", Content: "second"},
	}, requests[1].Messages)
}

func TestAnthropicErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	svc, err := NewAnthropicService("key", server.URL, "claude")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "")
	require.NoError(t, err)

	_, err = collect(t, chat, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")

	_, err = chat.Generate(context.Background(), "hi")
	require.Error(t, err)
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AnthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Len(t, req.Messages, 1)
		fmt.Fprint(w, `{"content":[{"type":"text","text":"- apple\n- pear\n- plum"}]}`)
	}))
	defer server.Close()

	svc, err := NewAnthropicService("key", server.URL, "claude")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "")
	require.NoError(t, err)

	got, err := chat.Generate(context.Background(), "snacks")
	require.NoError(t, err)
	assert.Equal(t, "- apple\n- pear\n- plum", got)
}

func TestVLLMStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Lentil ", "soup"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc, err := NewVLLMService("", server.URL, "llama")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "be helpful")
	require.NoError(t, err)

	got, err := collect(t, chat, "dinner?")
	require.NoError(t, err)
	assert.Equal(t, "Lentil soup", got)

	vc := chat.(*vllmChat)
	assert.Len(t, vc.history, 2)
}

func TestVLLMGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"- rice"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	svc, err := NewVLLMService("", server.URL, "llama")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "")
	require.NoError(t, err)

	got, err := chat.Generate(context.Background(), "sides")
	require.NoError(t, err)
	assert.Equal(t, "- rice", got)
	assert.Empty(t, chat.(*vllmChat).history)
}

func TestGeminiStreamAndGenerate(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "models/gemini-test:streamGenerateContent"):
			w.Header().Set("Content-Type", "text/event-stream")
			for _, chunk := range []string{"Eat ", "greens"} {
				fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", chunk)
			}
		case strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"- kale\n- leek\n- pea"}]}}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc, err := NewGeminiService(context.Background(), "key", server.URL, "gemini-test")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "be helpful")
	require.NoError(t, err)

	got, err := collect(t, chat, "first")
	require.NoError(t, err)
	assert.Equal(t, "Eat greens", got)

	reply, err := chat.Generate(context.Background(), "sides")
	require.NoError(t, err)
	assert.Equal(t, "- kale\n- leek\n- pea", reply)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	for _, b := range bodies {
		assert.Contains(t, b, "be helpful", "every request carries the system instruction")
	}
	assert.Contains(t, bodies[0], "first")
	assert.NotContains(t, bodies[1], "first", "generate does not send chat history")
}

func TestGeminiEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	svc, err := NewGeminiService(context.Background(), "key", server.URL, "gemini-test")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "")
	require.NoError(t, err)

	_, err = chat.Generate(context.Background(), "sides")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestGeminiStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	svc, err := NewGeminiService(context.Background(), "key", server.URL, "gemini-test")
	require.NoError(t, err)
	chat, err := svc.NewChat(context.Background(), "")
	require.NoError(t, err)

	_, err = collect(t, chat, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini stream failed")
}
