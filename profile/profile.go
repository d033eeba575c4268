// Package profile persists the user's diet profile and turns it into the
// context block sent with every model request.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"diet-chat/models"
	"diet-chat/storage"

	"go.uber.org/zap"
)

// StorageKey is the key the profile record is kept under
const StorageKey = "userProfile"

// NotSetText is the context block for a profile with no fields
const NotSetText = "User profile is not set."

var labels = map[models.ProfileField]string{
	models.FieldAge:                 "Age",
	models.FieldHeight:              "Height (cm)",
	models.FieldWeight:              "Weight (kg)",
	models.FieldGender:              "Gender",
	models.FieldActivityLevel:       "Activity level",
	models.FieldDietaryRestrictions: "Dietary restrictions",
	models.FieldAllergies:           "Allergies",
	models.FieldHealthGoals:         "Health goals",
}

// Store reads and writes the profile record
type Store struct {
	kv     storage.Store
	logger *zap.Logger
}

// NewStore creates a profile store on top of kv
func NewStore(kv storage.Store, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored profile. Any failure yields an empty profile.
func (s *Store) Load(ctx context.Context) models.UserProfile {
	raw, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to read profile, using empty profile", zap.Error(err))
		}
		return models.UserProfile{}
	}

	var stored map[string]string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.logger.Warn("Stored profile is malformed, using empty profile", zap.Error(err))
		return models.UserProfile{}
	}
	return normalize(stored)
}

// Save replaces the stored profile with fields. Unknown fields and blank
// values are dropped and the rest trimmed.
func (s *Store) Save(ctx context.Context, fields models.UserProfile) (models.UserProfile, error) {
	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[string(k)] = v
	}
	p := normalize(raw)

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	s.logger.Info("Profile saved", zap.Int("fields", len(p)))
	return p, nil
}

func normalize(raw map[string]string) models.UserProfile {
	p := make(models.UserProfile, len(raw))
	for k, v := range raw {
		if !models.IsProfileField(k) {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			p[models.ProfileField(k)] = v
		}
	}
	return p
}

// ContextText renders the profile as a prose block for the model
func ContextText(p models.UserProfile) string {
	if p.IsEmpty() {
		return NotSetText
	}

	var b strings.Builder
	b.WriteString("User profile:")
	for _, f := range models.ProfileFields {
		v := strings.TrimSpace(p[f])
		switch {
		case v == "" && (f == models.FieldDietaryRestrictions || f == models.FieldAllergies):
			v = "None"
		case v == "":
			v = "N/A"
		case f == models.FieldActivityLevel:
			v = strings.ReplaceAll(v, "_", " ")
		}
		fmt.Fprintf(&b, "\n- %s: %s", labels[f], v)
	}
	return b.String()
}
