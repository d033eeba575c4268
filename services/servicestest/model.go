// Package servicestest provides a scripted chat model for tests.
package servicestest

import (
	"context"
	"errors"
	"iter"
	"sync"

	"diet-chat/services"
)

// Call records one request made to the model
type Call struct {
	Chat   int // index of the chat, in creation order
	Kind   string
	Prompt string
}

// Model is a services.Model whose replies are supplied by the test
type Model struct {
	// StreamFunc produces the chunks for a Stream call
	StreamFunc func(ctx context.Context, prompt string, yield func(string, error) bool)
	// GenerateFunc answers a Generate call
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
	// NewChatErr makes NewChat fail
	NewChatErr error
	// OnNewChat runs at the start of NewChat with the number of chats
	// created so far
	OnNewChat func(created int)

	mu           sync.Mutex
	instructions []string
	calls        []Call
}

// Chunks returns a StreamFunc yielding chunks in order
func Chunks(chunks ...string) func(context.Context, string, func(string, error) bool) {
	return func(_ context.Context, _ string, yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Failing returns a StreamFunc yielding chunks and then err
func Failing(err error, chunks ...string) func(context.Context, string, func(string, error) bool) {
	return func(ctx context.Context, prompt string, yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		yield("", err)
	}
}

// Reply returns a GenerateFunc that always answers text
func Reply(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func (m *Model) NewChat(_ context.Context, systemInstruction string) (services.Chat, error) {
	if m.OnNewChat != nil {
		m.OnNewChat(len(m.Instructions()))
	}
	if m.NewChatErr != nil {
		return nil, m.NewChatErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = append(m.instructions, systemInstruction)
	return &chat{model: m, index: len(m.instructions) - 1}, nil
}

// Instructions returns the system instruction of every chat created so far
func (m *Model) Instructions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.instructions...)
}

// Calls returns every request made so far
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Model) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

type chat struct {
	model *Model
	index int
}

func (c *chat) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	c.model.record(Call{Chat: c.index, Kind: "stream", Prompt: prompt})
	return func(yield func(string, error) bool) {
		if c.model.StreamFunc == nil {
			yield("", errors.New("servicestest: no StreamFunc"))
			return
		}
		c.model.StreamFunc(ctx, prompt, yield)
	}
}

func (c *chat) Generate(ctx context.Context, prompt string) (string, error) {
	c.model.record(Call{Chat: c.index, Kind: "generate", Prompt: prompt})
	if c.model.GenerateFunc == nil {
		return "", errors.New("servicestest: no GenerateFunc")
	}
	return c.model.GenerateFunc(ctx, prompt)
}
