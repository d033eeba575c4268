package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageDirective(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"en-US", "Please respond in English."},
		{"es-ES", "Please respond in Spanish."},
		{"ja-JP", "Please respond in Japanese."},
		{" de ", "Please respond in German."},
		{"", ""},
		{"not a locale!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, LanguageDirective(tt.code))
		})
	}
}

func TestComposePrompt(t *testing.T) {
	got := ComposePrompt("User profile:\n- Age: 30", "", "plan my week")
	assert.Equal(t, "User profile:\n- Age: 30\n\nUser request: \"plan my week\"", got)

	got = ComposePrompt("ctx", "fr-FR", "bonjour")
	assert.Equal(t, "Please respond in French.\n\nctx\n\nUser request: \"bonjour\"", got)
}

func TestSuggestionPrompt(t *testing.T) {
	got := SuggestionPrompt("ctx", "", "Dinner")
	assert.True(t, strings.HasPrefix(got, "ctx\n\n"))
	assert.Contains(t, got, "exactly three new alternative food items for Dinner")
	assert.Contains(t, got, "without a table")
}

func TestLanguages(t *testing.T) {
	require.NotEmpty(t, Languages)
	seen := map[string]bool{}
	for _, l := range Languages {
		assert.False(t, seen[l.Code], "duplicate %s", l.Code)
		seen[l.Code] = true
		assert.NotEmpty(t, l.Name, l.Code)
		assert.NotEmpty(t, l.NativeName, l.Code)
		assert.NotEmpty(t, LanguageDirective(l.Code), l.Code)
	}
	assert.Equal(t, "en-US", Languages[0].Code)
}

func TestSystemInstructionNamesTableHeaders(t *testing.T) {
	assert.Contains(t, SystemInstruction, `"Meal"`)
	assert.Contains(t, SystemInstruction, `"Food Suggestions"`)
}
