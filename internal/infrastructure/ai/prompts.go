package ai

import (
	"fmt"
	"strings"

	"github.com/canner-app/canner/go/internal/core/ports"
)

var platformGuides = map[string]string{
	"linkedin": "Professional networking platform. Replies should be business-appropriate and career-oriented.",
	"twitter":  "Social platform with tight character limits. Replies should be concise and conversational.",
	"github":   "Developer platform. Replies should be technical, helpful and collaborative.",
	"discord":  "Community chat platform. Replies should be casual and conversational.",
	"email":    "Email. Replies should be complete, courteous and clearly structured.",
}

var toneGuides = map[string]string{
	"professional": "Keep a professional, respectful tone with proper grammar.",
	"casual":       "Use a relaxed tone. Contractions and informal language are fine.",
	"friendly":     "Be warm and approachable.",
	"formal":       "Use formal language without contractions.",
}

func platformOf(sc ports.SuggestionContext) string {
	if sc.Platform == "" {
		return "general"
	}
	return sc.Platform
}

func toneOf(sc ports.SuggestionContext) string {
	if sc.Tone == "" {
		return "professional"
	}
	return sc.Tone
}

func systemPrompt(sc ports.SuggestionContext, maxLength int) string {
	platform, tone := platformOf(sc), toneOf(sc)
	platformGuide, ok := platformGuides[platform]
	if !ok {
		platformGuide = "General social platform."
	}
	toneGuide, ok := toneGuides[tone]
	if !ok {
		toneGuide = "Keep an appropriate tone."
	}
	return fmt.Sprintf(`You help users write replies on %s.

Platform context: %s
Tone requirement: %s
Character limit: %d

Write a single reply that matches the tone, is relevant to the conversation and stays within %d characters.
Respond with only the reply text, no explanations or quotes.`, platform, platformGuide, toneGuide, maxLength, maxLength)
}

func userPrompt(sc ports.SuggestionContext, maxLength int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platform: %s\nTone: %s\n", platformOf(sc), toneOf(sc))
	if sc.Message != "" {
		fmt.Fprintf(&b, "Conversation context: %s\n", sc.Message)
	}
	if len(sc.Tags) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(sc.Tags, ", "))
	}
	fmt.Fprintf(&b, "Generate a %s reply (max %d characters):", toneOf(sc), maxLength)
	return b.String()
}
