package pipeline

import (
	"fmt"
	"strings"

	"diet-chat/models"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// SystemInstruction is bound to every chat session. Profile data is not
// part of it; the context block travels with each request instead.
const SystemInstruction = `You are a friendly, knowledgeable nutritionist and diet planner.
Create personalised diet plans based on the user profile included with each request.
Respect every dietary restriction and allergy in the profile. Never suggest food the user is allergic to.
When you present a meal plan, use a markdown table with exactly these column headers: "Meal" and "Food Suggestions". You may add further columns such as "Calories" after them.
Put one meal (Breakfast, Lunch, Dinner, Snack) per row.
Keep explanations short and use headings and bullet lists for anything that is not a meal plan.
If a request is unrelated to food, nutrition or health, politely steer the conversation back to diet planning.`

// WelcomeText opens every new chat
const WelcomeText = `**Welcome to your personal diet planner!**

Set your age, weight, dietary restrictions, allergies and goals in **Preferences**, then ask me for a plan, for example *"Create a 3-day vegetarian meal plan"*.
Use **Suggest alternatives** on any meal row to swap it for something new.`

// Languages lists the locales offered for voice input and replies
var Languages = buildLanguages([]string{
	"en-US", "en-GB", "es-ES", "fr-FR", "de-DE", "it-IT", "pt-BR",
	"hi-IN", "ja-JP", "zh-CN", "ar-SA", "ru-RU",
})

func buildLanguages(codes []string) []models.Language {
	namer := display.English.Tags()
	langs := make([]models.Language, 0, len(codes))
	for _, code := range codes {
		tag := language.MustParse(code)
		langs = append(langs, models.Language{
			Code:       code,
			Name:       namer.Name(tag),
			NativeName: display.Self.Name(tag),
		})
	}
	return langs
}

// LanguageDirective returns the instruction to answer in the language of
// code, or "" when no language was chosen or the code does not parse.
func LanguageDirective(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	name := display.English.Languages().Name(base)
	if name == "" {
		return ""
	}
	return fmt.Sprintf("Please respond in %s.", name)
}

// ComposePrompt builds the text sent for one chat turn
func ComposePrompt(contextBlock, lang, userText string) string {
	var b strings.Builder
	if directive := LanguageDirective(lang); directive != "" {
		b.WriteString(directive)
		b.WriteString("\n\n")
	}
	b.WriteString(contextBlock)
	b.WriteString("\n\n")
	b.WriteString(`User request: "`)
	b.WriteString(userText)
	b.WriteString(`"`)
	return b.String()
}

// SuggestionPrompt builds the request for alternatives to one meal
func SuggestionPrompt(contextBlock, lang, meal string) string {
	var b strings.Builder
	if directive := LanguageDirective(lang); directive != "" {
		b.WriteString(directive)
		b.WriteString("\n\n")
	}
	b.WriteString(contextBlock)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Suggest exactly three new alternative food items for %s that fit the profile above. "+
		"Answer with a short markdown bullet list of the three items only, without a table or any other text.", meal)
	return b.String()
}
