package handlers

import (
	"context"
	"errors"
	"net/http"

	"diet-chat/models"
	"diet-chat/pipeline"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	conv   *pipeline.Conversation
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(conv *pipeline.Conversation, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{conv: conv, logger: logger}
}

// Register mounts the API routes on api
func (h *ChatHandler) Register(api gin.IRoutes) {
	api.GET("/status", h.Status)
	api.GET("/languages", h.Languages)
	api.GET("/messages", h.GetMessages)
	api.POST("/messages", h.SendMessage)
	api.POST("/suggestions", h.Suggest)
	api.POST("/session/reset", h.Reset)
	api.GET("/profile", h.GetProfile)
	api.PUT("/profile", h.SaveProfile)
}

// Status reports whether the chat accepts requests
func (h *ChatHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.conv.Status())
}

// Languages lists the selectable locales
func (h *ChatHandler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, pipeline.Languages)
}

// GetMessages returns the chat history
func (h *ChatHandler) GetMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.conv.Messages()})
}

// SendMessage sends a message and streams the reply as server-sent
// events. Each "message" event carries a full message; "done" ends the
// stream. The reply keeps streaming into the history if the client goes
// away.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	streamed := false
	emit := func(msg models.Message) {
		if !streamed {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Status(http.StatusOK)
			streamed = true
		}
		c.SSEvent("message", msg)
		c.Writer.Flush()
	}

	err := h.conv.SendMessage(context.WithoutCancel(c.Request.Context()), req, emit)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Please wait for the current reply to finish"})
		return
	case errors.Is(err, pipeline.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": h.conv.Status().Error})
		return
	case err != nil:
		h.logger.Error("Send message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	if !streamed {
		c.Status(http.StatusNoContent)
		return
	}
	c.SSEvent("done", "")
	c.Writer.Flush()
}

// Suggest returns three alternatives for one meal
func (h *ChatHandler) Suggest(c *gin.Context) {
	var req models.SuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	s, err := h.conv.RequestSuggestion(c.Request.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrEmptyMeal):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Meal is required"})
	case errors.Is(err, pipeline.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": h.conv.Status().Error})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not fetch alternatives. Please try again."})
	default:
		c.JSON(http.StatusOK, s)
	}
}

// Reset clears the chat and starts a new session
func (h *ChatHandler) Reset(c *gin.Context) {
	msgs, err := h.conv.ResetSession(c.Request.Context())
	switch {
	case errors.Is(err, pipeline.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": h.conv.Status().Error})
	case err != nil:
		h.logger.Error("Session reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start a new chat"})
	default:
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}

// GetProfile returns the stored profile
func (h *ChatHandler) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profile": h.conv.Profile(c.Request.Context())})
}

// SaveProfile replaces the stored profile with the submitted form
func (h *ChatHandler) SaveProfile(c *gin.Context) {
	var form map[string]string
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	fields := make(models.UserProfile, len(form))
	for k, v := range form {
		fields[models.ProfileField(k)] = v
	}

	saved, err := h.conv.SaveProfile(c.Request.Context(), fields)
	if err != nil && saved == nil {
		h.logger.Error("Profile save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile"})
		return
	}
	resp := gin.H{"profile": saved}
	if err != nil {
		h.logger.Warn("Profile saved without session restart", zap.Error(err))
		resp["warning"] = "Profile saved, but the chat session could not be restarted."
	}
	c.JSON(http.StatusOK, resp)
}
