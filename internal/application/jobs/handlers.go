package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type AIGenerationPayload struct {
	Context ports.SuggestionContext `json:"context"`
	UserID  string                  `json:"user_id,omitempty"`
}

type AnalyticsPayload struct {
	Days   int    `json:"days,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

type ExportPayload struct {
	Format  string         `json:"format"`
	Filters map[string]any `json:"filters,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
}

// Deps are the collaborators the handlers delegate to. A kind whose
// collaborator is nil gets no handler.
type Deps struct {
	Generator ports.SuggestionGenerator
	Analytics ports.AnalyticsSource
	// Responses, when set, memoizes generation and analytics reads.
	Responses *services.ResponseCache
	Clock     ports.Clock
}

const defaultDays = 30

// Handlers returns a handler for every kind whose collaborator is configured:
// ai_generation needs a Generator, analytics and export need Analytics.
func Handlers(deps Deps) map[task.Kind]ports.TaskHandler {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	h := &handlers{deps: deps}
	out := make(map[task.Kind]ports.TaskHandler, len(task.Kinds))
	if deps.Generator != nil {
		h.suggest = deps.Generator.GenerateSuggestions
		if deps.Responses != nil {
			h.suggest = deps.Responses.CachedSuggestions(deps.Generator)
		}
		out[task.KindAIGeneration] = h.aiGeneration
	}
	if deps.Analytics != nil {
		h.readAnalytics = deps.Analytics.ResponseAnalytics
		if deps.Responses != nil {
			h.readAnalytics = deps.Responses.CachedAnalytics(deps.Analytics)
		}
		out[task.KindAnalytics] = h.analytics
		out[task.KindExport] = h.export
	}
	return out
}

// Kinds lists the kinds handled by hs in a stable order.
func Kinds(hs map[task.Kind]ports.TaskHandler) []task.Kind {
	kinds := make([]task.Kind, 0, len(hs))
	for k := range hs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type handlers struct {
	deps          Deps
	suggest       func(context.Context, ports.SuggestionContext) ([]string, error)
	readAnalytics func(ctx context.Context, userID string, days int) (map[string]any, error)
}

func decode(t task.Task, dest any) error {
	if len(t.Payload) == 0 || string(t.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(t.Payload, dest); err != nil {
		return fmt.Errorf("invalid %s payload: %w", t.Kind, err)
	}
	return nil
}

func userOf(id, scope string) string {
	if id != "" {
		return id
	}
	if scope != "" {
		return scope
	}
	return "default"
}

func (h *handlers) aiGeneration(ctx context.Context, t task.Task) (any, error) {
	var p AIGenerationPayload
	if err := decode(t, &p); err != nil {
		return nil, err
	}
	suggestions, err := h.suggest(ctx, p.Context)
	if err != nil {
		return nil, fmt.Errorf("ai generation failed: %w", err)
	}
	return map[string]any{
		"suggestions":  suggestions,
		"user_id":      userOf(p.UserID, t.Scope),
		"model":        h.deps.Generator.Model(),
		"generated_at": h.deps.Clock.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *handlers) analytics(ctx context.Context, t task.Task) (any, error) {
	var p AnalyticsPayload
	if err := decode(t, &p); err != nil {
		return nil, err
	}
	if p.Days <= 0 {
		p.Days = defaultDays
	}
	user := userOf(p.UserID, t.Scope)
	data, err := h.readAnalytics(ctx, user, p.Days)
	if err != nil {
		return nil, fmt.Errorf("analytics generation failed: %w", err)
	}
	return map[string]any{
		"analytics":    data,
		"user_id":      user,
		"generated_at": h.deps.Clock.Now().UTC().Format(time.RFC3339),
	}, nil
}

// export renders analytics in the requested format and reports where the
// file would be served from. Only metadata is returned; the body is not
// persisted.
func (h *handlers) export(ctx context.Context, t task.Task) (any, error) {
	var p ExportPayload
	if err := decode(t, &p); err != nil {
		return nil, err
	}
	days := defaultDays
	if v, ok := p.Filters["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	format := strings.ToLower(p.Format)
	if format != "json" && format != "csv" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, p.Format)
	}

	user := userOf(p.UserID, t.Scope)
	data, err := h.readAnalytics(ctx, user, days)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	var body []byte
	if format == "json" {
		body, err = json.MarshalIndent(data, "", "  ")
	} else {
		body, err = renderCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}

	now := h.deps.Clock.Now().UTC()
	filename := fmt.Sprintf("canner_export_%s_%s.%s", user, now.Format("20060102_150405"), format)
	return map[string]any{
		"export_filename": filename,
		"export_size":     len(body),
		"export_format":   format,
		"user_id":         user,
		"generated_at":    now.Format(time.RFC3339),
		"download_url":    "/api/downloads/" + filename,
	}, nil
}
