package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrMissingCredential is returned when a model backend has no API key
var ErrMissingCredential = errors.New("missing API credential for the chat model")

// Model opens chat sessions against a hosted model
type Model interface {
	NewChat(ctx context.Context, systemInstruction string) (Chat, error)
}

// Chat is a multi-turn conversation handle owned by a model backend
type Chat interface {
	// Stream sends prompt as the next turn and yields the reply in chunks
	Stream(ctx context.Context, prompt string) iter.Seq2[string, error]
	// Generate answers prompt in one piece without recording it as a turn
	Generate(ctx context.Context, prompt string) (string, error)
}

// Session is the live conversation with the model
type Session struct {
	ID          uuid.UUID
	Instruction string
	CreatedAt   time.Time
	chat        Chat
}

// Stream sends prompt on this session and yields reply chunks
func (s *Session) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return s.chat.Stream(ctx, prompt)
}

// Generate asks a one-off question with the session's instruction
func (s *Session) Generate(ctx context.Context, prompt string) (string, error) {
	return s.chat.Generate(ctx, prompt)
}

// SessionManager owns the single active session
type SessionManager struct {
	mu          sync.Mutex
	model       Model
	instruction string
	current     *Session
	logger      *zap.Logger
}

// NewSessionManager creates a manager whose sessions all use instruction
func NewSessionManager(model Model, instruction string, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		model:       model,
		instruction: instruction,
		logger:      logger,
	}
}

// Instruction returns the fixed system instruction
func (m *SessionManager) Instruction() string {
	return m.instruction
}

// Create opens the first session. It is the same as Reset.
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	return m.Reset(ctx)
}

// Reset discards the current session and opens a new one. The old session
// is not closed; streams still running on it finish on their own.
func (m *SessionManager) Reset(ctx context.Context) (*Session, error) {
	chat, err := m.model.NewChat(ctx, m.instruction)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	s := &Session{
		ID:          uuid.New(),
		Instruction: m.instruction,
		CreatedAt:   time.Now(),
		chat:        chat,
	}

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	if prev != nil {
		m.logger.Info("Chat session replaced", zap.String("previous", prev.ID.String()), zap.String("session", s.ID.String()))
	} else {
		m.logger.Info("Chat session created", zap.String("session", s.ID.String()))
	}
	return s, nil
}

// Current returns the active session, or nil before Create
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
