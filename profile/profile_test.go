package profile

import (
	"context"
	"errors"
	"testing"

	"diet-chat/models"
	"diet-chat/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenStore struct{ storage.Store }

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}

func TestLoadEmpty(t *testing.T) {
	s := NewStore(storage.NewMemoryStore("test"), zap.NewNop())
	assert.Empty(t, s.Load(context.Background()))
}

func TestLoadMalformed(t *testing.T) {
	kv := storage.NewMemoryStore("test")
	require.NoError(t, kv.Set(context.Background(), StorageKey, "{not json"))

	s := NewStore(kv, zap.NewNop())
	assert.Empty(t, s.Load(context.Background()))
}

func TestLoadStorageError(t *testing.T) {
	s := NewStore(brokenStore{}, zap.NewNop())
	assert.Empty(t, s.Load(context.Background()))
}

func TestSaveTrimsAndReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore("test"), zap.NewNop())

	saved, err := s.Save(ctx, models.UserProfile{
		models.FieldAge:       "  30 ",
		models.FieldAllergies: "peanuts\n",
		models.FieldGender:    "   ",
		"favourite-colour":    "green",
	})
	require.NoError(t, err)
	want := models.UserProfile{models.FieldAge: "30", models.FieldAllergies: "peanuts"}
	assert.Equal(t, want, saved)
	assert.Equal(t, want, s.Load(ctx))

	// A second save replaces the whole record.
	_, err = s.Save(ctx, models.UserProfile{models.FieldWeight: "70"})
	require.NoError(t, err)
	assert.Equal(t, models.UserProfile{models.FieldWeight: "70"}, s.Load(ctx))
}

func TestSaveIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore("test"), zap.NewNop())
	fields := models.UserProfile{models.FieldHealthGoals: "lose weight"}

	first, err := s.Save(ctx, fields)
	require.NoError(t, err)
	second, err := s.Save(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, s.Load(ctx))
}

func TestContextTextNotSet(t *testing.T) {
	assert.Equal(t, NotSetText, ContextText(nil))
	assert.Equal(t, NotSetText, ContextText(models.UserProfile{}))
	assert.Equal(t, NotSetText, ContextText(models.UserProfile{models.FieldAge: ""}))
	assert.Contains(t, ContextText(nil), "profile is not set")
}

func TestContextTextPartial(t *testing.T) {
	got := ContextText(models.UserProfile{
		models.FieldAge:           "30",
		models.FieldActivityLevel: "lightly_active",
	})

	want := "User profile:\n" +
		"- Age: 30\n" +
		"- Height (cm): N/A\n" +
		"- Weight (kg): N/A\n" +
		"- Gender: N/A\n" +
		"- Activity level: lightly active\n" +
		"- Dietary restrictions: None\n" +
		"- Allergies: None\n" +
		"- Health goals: N/A"
	assert.Equal(t, want, got)
}

func TestContextTextDeterministic(t *testing.T) {
	p := models.UserProfile{
		models.FieldAge:                 "42",
		models.FieldHeight:              "180",
		models.FieldWeight:              "80",
		models.FieldGender:              "female",
		models.FieldActivityLevel:       "very_active",
		models.FieldDietaryRestrictions: "vegetarian",
		models.FieldAllergies:           "shellfish",
		models.FieldHealthGoals:         "build muscle",
	}
	first := ContextText(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ContextText(p))
	}
	assert.NotContains(t, first, "N/A")
	assert.NotContains(t, first, "None")
	assert.Contains(t, first, "Activity level: very active")
}
