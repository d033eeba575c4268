// Package pipeline runs the chat: it composes prompts from the profile,
// streams replies into the history and answers suggestion requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"diet-chat/models"
	"diet-chat/profile"
	"diet-chat/render"
	"diet-chat/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusy is returned while another message is still being answered
	ErrBusy = errors.New("a message is already being answered")
	// ErrUnavailable is returned when the chat model is not configured
	ErrUnavailable = errors.New("chat is unavailable")
	// ErrEmptyMeal is returned for a suggestion request without a meal
	ErrEmptyMeal = errors.New("meal label is required")
)

// ProfileSaver persists a submitted profile
type ProfileSaver interface {
	Save(ctx context.Context, fields models.UserProfile) (models.UserProfile, error)
}

// Conversation is the chat state shared by all handlers: the session
// manager, the history and the in-flight guard.
type Conversation struct {
	sessions *services.SessionManager
	profiles *profile.Store
	saver    ProfileSaver
	renderer *render.Renderer
	logger   *zap.Logger
	unusable error

	// resetMu serializes session replacement
	resetMu sync.Mutex

	mu       sync.Mutex
	session  *services.Session
	messages []*entry
	inFlight *entry
	epoch    uint64
}

// entry is one history message. epoch ties it to the history it was
// appended to so updates after a reset can be dropped.
type entry struct {
	msg   models.Message
	epoch uint64
}

// Option configures a Conversation
type Option func(*Conversation)

// WithProfileSaver routes profile saves through saver instead of the
// profile store.
func WithProfileSaver(saver ProfileSaver) Option {
	return func(c *Conversation) { c.saver = saver }
}

// New creates a conversation and opens its first session. If that fails
// the conversation stays readable but refuses every request.
func New(ctx context.Context, sessions *services.SessionManager, profiles *profile.Store, renderer *render.Renderer, logger *zap.Logger, opts ...Option) *Conversation {
	c := &Conversation{
		sessions: sessions,
		profiles: profiles,
		saver:    profiles,
		renderer: renderer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	session, err := sessions.Create(ctx)
	if err != nil {
		logger.Error("Failed to open chat session", zap.Error(err))
		c.unusable = err
	}
	c.session = session
	c.appendWelcome()
	return c
}

// Disabled creates a conversation that refuses every request because of
// cause, typically services.ErrMissingCredential.
func Disabled(cause error, profiles *profile.Store, renderer *render.Renderer, logger *zap.Logger) *Conversation {
	c := &Conversation{
		profiles: profiles,
		saver:    profiles,
		renderer: renderer,
		logger:   logger,
		unusable: cause,
	}
	c.appendWelcome()
	return c
}

// Status reports whether requests can be sent
func (c *Conversation) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unusable != nil {
		return models.Status{Ready: false, Error: configErrorText(c.unusable)}
	}
	return models.Status{Ready: true, Busy: c.inFlight != nil}
}

func (c *Conversation) usable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unusable == nil
}

func configErrorText(err error) string {
	if errors.Is(err, services.ErrMissingCredential) {
		return "The chat model is not configured: an API key is missing. Set it and restart the server."
	}
	return "The chat model is unavailable: " + err.Error()
}

// Messages returns a snapshot of the history
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	for i, e := range c.messages {
		out[i] = e.msg
	}
	return out
}

// Profile returns the stored profile
func (c *Conversation) Profile(ctx context.Context) models.UserProfile {
	return c.profiles.Load(ctx)
}

// SendMessage posts req.Content to the model and streams the reply into a
// new assistant message. emit receives the user message, then every
// update of the assistant message, ending with one that is not pending.
//
// Blank content is ignored. ErrBusy and ErrUnavailable are the only
// errors; a failed request is shown in the assistant message instead.
func (c *Conversation) SendMessage(ctx context.Context, req models.SendMessageRequest, emit func(models.Message)) error {
	text := strings.TrimSpace(req.Content)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.unusable != nil {
		c.mu.Unlock()
		return ErrUnavailable
	}
	if c.inFlight != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	session := c.session
	user := c.appendLocked(models.RoleUser, text, render.Document{HTML: c.renderer.RenderPlain(text).HTML})
	reply := c.appendLocked(models.RoleAssistant, "", render.Document{})
	reply.msg.Pending = true
	c.inFlight = reply
	userMsg, replyMsg := user.msg, reply.msg
	c.mu.Unlock()

	emit(userMsg)
	emit(replyMsg)

	defer func() {
		c.mu.Lock()
		if c.inFlight == reply {
			c.inFlight = nil
		}
		c.mu.Unlock()
	}()

	prompt := ComposePrompt(profile.ContextText(c.profiles.Load(ctx)), req.Language, text)
	logger := c.logger.With(zap.String("session", session.ID.String()), zap.String("message", replyMsg.ID.String()))
	logger.Info("Sending message", zap.Int("prompt_len", len(prompt)), zap.String("language", req.Language))

	var buf strings.Builder
	for chunk, err := range session.Stream(ctx, prompt) {
		if err != nil {
			logger.Error("Message stream failed", zap.Error(err))
			c.fail(reply, emit)
			return nil
		}
		buf.WriteString(chunk)
		c.update(reply, buf.String(), true, emit)
	}

	c.update(reply, buf.String(), false, emit)
	logger.Info("Message answered", zap.Int("reply_len", buf.Len()))
	return nil
}

// update re-renders the whole reply so far into e
func (c *Conversation) update(e *entry, markdown string, pending bool, emit func(models.Message)) {
	doc := c.renderer.Render(markdown)

	c.mu.Lock()
	e.msg.Content = markdown
	e.msg.HTML = doc.HTML
	e.msg.Actions = doc.Actions
	e.msg.Pending = pending
	snapshot, live := e.msg, e.epoch == c.epoch
	c.mu.Unlock()

	if live {
		emit(snapshot)
	}
}

func (c *Conversation) fail(e *entry, emit func(models.Message)) {
	c.mu.Lock()
	e.msg.HTML = render.ErrorNotice("Sorry, something went wrong while generating the reply. Please try again.")
	e.msg.Actions = nil
	e.msg.Pending = false
	e.msg.Error = true
	snapshot, live := e.msg, e.epoch == c.epoch
	c.mu.Unlock()

	if live {
		emit(snapshot)
	}
}

// RequestSuggestion asks for three alternatives to req.Meal. It is not
// blocked by a message in flight.
func (c *Conversation) RequestSuggestion(ctx context.Context, req models.SuggestionRequest) (models.Suggestion, error) {
	meal := strings.TrimSpace(req.Meal)
	if meal == "" {
		return models.Suggestion{}, ErrEmptyMeal
	}

	c.mu.Lock()
	if c.unusable != nil {
		c.mu.Unlock()
		return models.Suggestion{}, ErrUnavailable
	}
	session := c.session
	c.mu.Unlock()

	prompt := SuggestionPrompt(profile.ContextText(c.profiles.Load(ctx)), req.Language, meal)
	reply, err := session.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("Suggestion request failed", zap.String("meal", meal), zap.Error(err))
		return models.Suggestion{}, fmt.Errorf("failed to get suggestions for %s: %w", meal, err)
	}

	c.logger.Info("Suggestions generated", zap.String("meal", meal))
	return models.Suggestion{Meal: meal, HTML: c.renderer.RenderPlain(reply).HTML}, nil
}

// ResetSession clears the history, opens a fresh session and greets the
// user again. A reply still streaming from the old session is abandoned.
func (c *Conversation) ResetSession(ctx context.Context) ([]models.Message, error) {
	if !c.usable() {
		return nil, ErrUnavailable
	}
	if err := c.replaceSession(ctx, true); err != nil {
		return nil, err
	}
	c.logger.Info("Chat cleared")
	return c.Messages(), nil
}

// replaceSession opens a new session. The switch to it happens under the
// same lock as the history change, so a send sees either the old session
// with the old history or the new session with the new one. With wipe
// set the history is replaced by a fresh welcome message.
func (c *Conversation) replaceSession(ctx context.Context, wipe bool) error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	session, err := c.sessions.Reset(ctx)
	if err != nil {
		return err
	}

	var welcome render.Document
	if wipe {
		welcome = c.renderer.RenderPlain(WelcomeText)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	if wipe {
		c.epoch++
		c.messages = nil
		c.inFlight = nil
		c.appendLocked(models.RoleAssistant, WelcomeText, welcome)
	}
	return nil
}

// SaveProfile stores fields and opens a fresh session so later replies
// rely only on the profile sent with each request. History is kept.
func (c *Conversation) SaveProfile(ctx context.Context, fields models.UserProfile) (models.UserProfile, error) {
	saved, err := c.saver.Save(ctx, fields)
	if err != nil {
		return nil, err
	}
	if c.usable() {
		if err := c.replaceSession(ctx, false); err != nil {
			return saved, fmt.Errorf("profile saved but the chat session could not be restarted: %w", err)
		}
	}
	return saved, nil
}

func (c *Conversation) appendWelcome() {
	doc := c.renderer.RenderPlain(WelcomeText)
	c.mu.Lock()
	c.appendLocked(models.RoleAssistant, WelcomeText, doc)
	c.mu.Unlock()
}

func (c *Conversation) appendLocked(role models.Role, content string, doc render.Document) *entry {
	e := &entry{
		msg: models.Message{
			ID:        uuid.New(),
			Role:      role,
			Content:   content,
			HTML:      doc.HTML,
			Actions:   doc.Actions,
			CreatedAt: time.Now(),
		},
		epoch: c.epoch,
	}
	c.messages = append(c.messages, e)
	return e
}
