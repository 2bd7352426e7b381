package ports

import "context"

// SuggestionContext describes the conversation a reply is being suggested for.
type SuggestionContext struct {
	Message  string   `json:"message"`
	Platform string   `json:"platform,omitempty"`
	Tone     string   `json:"tone,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// SuggestionGenerator produces canned-reply suggestions, typically by calling
// a language model.
type SuggestionGenerator interface {
	GenerateSuggestions(ctx context.Context, sc SuggestionContext) ([]string, error)
	Model() string
}

// AnalyticsSource reads a user's response analytics for the last days.
type AnalyticsSource interface {
	ResponseAnalytics(ctx context.Context, userID string, days int) (map[string]any, error)
}
