package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileField names one entry of the user profile form
type ProfileField string

const (
	FieldAge                 ProfileField = "age"
	FieldHeight              ProfileField = "height"
	FieldWeight              ProfileField = "weight"
	FieldGender              ProfileField = "gender"
	FieldActivityLevel       ProfileField = "activity-level"
	FieldDietaryRestrictions ProfileField = "dietary-restrictions"
	FieldAllergies           ProfileField = "allergies"
	FieldHealthGoals         ProfileField = "health-goals"
)

// ProfileFields lists every known field in display order
var ProfileFields = []ProfileField{
	FieldAge,
	FieldHeight,
	FieldWeight,
	FieldGender,
	FieldActivityLevel,
	FieldDietaryRestrictions,
	FieldAllergies,
	FieldHealthGoals,
}

// IsProfileField reports whether name is one of the known profile fields
func IsProfileField(name string) bool {
	for _, f := range ProfileFields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// UserProfile maps profile fields to their values. Every field is optional.
type UserProfile map[ProfileField]string

// IsEmpty reports whether no field carries a value
func (p UserProfile) IsEmpty() bool {
	for _, v := range p {
		if v != "" {
			return false
		}
	}
	return true
}

// Role identifies who authored a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Action is a suggestion control injected into a meal table row
type Action struct {
	Meal  string `json:"meal"`
	Table int    `json:"table"`
	Row   int    `json:"row"`
}

// Message represents one entry of the chat history
type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"` // markdown source
	HTML      string    `json:"html"`
	Actions   []Action  `json:"actions,omitempty"`
	Pending   bool      `json:"pending"`
	Error     bool      `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the request body for sending a chat message
type SendMessageRequest struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

// SuggestionRequest asks for alternatives to one meal of a rendered plan
type SuggestionRequest struct {
	Meal     string `json:"meal"`
	Language string `json:"language"`
}

// Suggestion is the rendered reply to a SuggestionRequest
type Suggestion struct {
	Meal string `json:"meal"`
	HTML string `json:"html"`
}

// Status describes whether the chat can accept requests
type Status struct {
	Ready bool   `json:"ready"`
	Busy  bool   `json:"busy"`
	Error string `json:"error,omitempty"`
}

// Language is a selectable locale for speech capture and replies
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
}
