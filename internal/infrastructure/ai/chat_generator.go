// Package ai adapts an OpenAI-compatible chat completions endpoint (Groq by
// default) to ports.SuggestionGenerator.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/canner-app/canner/go/internal/core/ports"
)

const (
	defaultSuggestions = 3
	defaultMaxLength   = 280
	maxTokens          = 300
)

type Config struct {
	URL    string
	APIKey string
	Model  string
	// Suggestions is how many completions are requested per generation.
	Suggestions int
	// MaxLength drops completions longer than this many characters.
	MaxLength int
}

type ChatGenerator struct {
	client *http.Client
	cfg    Config
	logger *logrus.Logger
}

var _ ports.SuggestionGenerator = (*ChatGenerator)(nil)

func NewChatGenerator(client *http.Client, cfg Config, logger *logrus.Logger) *ChatGenerator {
	if cfg.Suggestions <= 0 {
		cfg.Suggestions = defaultSuggestions
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultMaxLength
	}
	return &ChatGenerator{client: client, cfg: cfg, logger: logger}
}

func (g *ChatGenerator) Model() string { return g.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateSuggestions asks for cfg.Suggestions completions, each at a slightly
// higher temperature, and keeps the distinct ones that fit MaxLength. A
// failed completion is skipped; the call fails only when every completion
// failed.
func (g *ChatGenerator) GenerateSuggestions(ctx context.Context, sc ports.SuggestionContext) ([]string, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(sc, g.cfg.MaxLength)},
		{Role: "user", Content: userPrompt(sc, g.cfg.MaxLength)},
	}

	suggestions := make([]string, 0, g.cfg.Suggestions)
	seen := make(map[string]bool)
	var lastErr error
	failures := 0
	for i := 0; i < g.cfg.Suggestions; i++ {
		content, err := g.complete(ctx, chatRequest{
			Model:       g.cfg.Model,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: 0.7 + float64(i)*0.1,
			TopP:        0.9,
		})
		if err != nil {
			failures++
			lastErr = err
			if g.logger != nil {
				g.logger.WithField("attempt", i+1).WithError(err).Warn("suggestion completion failed")
			}
			continue
		}
		if content == "" || len([]rune(content)) > g.cfg.MaxLength || seen[content] {
			continue
		}
		seen[content] = true
		suggestions = append(suggestions, content)
	}
	if failures == g.cfg.Suggestions {
		return nil, fmt.Errorf("all %d completions failed: %w", failures, lastErr)
	}
	return suggestions, nil
}

func (g *ChatGenerator) complete(ctx context.Context, body chatRequest) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
