package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canner-app/canner/go/internal/application/jobs"
	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/core/ports"
	"github.com/canner-app/canner/go/internal/infrastructure/memory"
	tmocks "github.com/canner-app/canner/go/test/mocks"
)

type generatorStub struct {
	calls atomic.Int32
	err   error
}

func (g *generatorStub) GenerateSuggestions(ctx context.Context, sc ports.SuggestionContext) ([]string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return []string{"Thanks for reaching out about " + sc.Message}, nil
}

func (g *generatorStub) Model() string { return "stub-model" }

type analyticsStub struct {
	calls atomic.Int32
	user  string
	days  int
}

func (a *analyticsStub) ResponseAnalytics(ctx context.Context, userID string, days int) (map[string]any, error) {
	a.calls.Add(1)
	a.user, a.days = userID, days
	return map[string]any{
		"overview":      map[string]any{"total_responses": 12},
		"top_responses": []any{map[string]any{"title": "Refunds", "usage_count": 3, "platforms_used": 1}},
		"days":          days,
	}, nil
}

var fixedNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func responseCache(t *testing.T) *services.ResponseCache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store, err := memory.NewStore(10, nil)
	require.NoError(t, err)
	return services.NewResponseCache(services.NewCacheService(store, logger), services.ResponseCacheConfig{DefaultTTL: time.Minute})
}

func run(t *testing.T, deps jobs.Deps, kind task.Kind, payload, scope string) (map[string]any, error) {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = tmocks.NewFakeClock(fixedNow)
	}
	h := jobs.Handlers(deps)[kind]
	require.NotNil(t, h)
	v, err := h(context.Background(), task.Task{ID: "t1", Kind: kind, Payload: json.RawMessage(payload), Scope: scope})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, nil
}

func TestHandlers_OnlyConfiguredKinds(t *testing.T) {
	assert.Empty(t, jobs.Handlers(jobs.Deps{}))

	h := jobs.Handlers(jobs.Deps{Generator: &generatorStub{}})
	assert.Equal(t, []task.Kind{task.KindAIGeneration}, jobs.Kinds(h))

	h = jobs.Handlers(jobs.Deps{Analytics: &analyticsStub{}})
	assert.Equal(t, []task.Kind{task.KindAnalytics, task.KindExport}, jobs.Kinds(h))

	h = jobs.Handlers(jobs.Deps{Generator: &generatorStub{}, Analytics: &analyticsStub{}})
	assert.ElementsMatch(t, task.Kinds, jobs.Kinds(h))
}

func TestAIGeneration_MemoizesSuggestions(t *testing.T) {
	gen := &generatorStub{}
	deps := jobs.Deps{Generator: gen, Responses: responseCache(t)}

	out, err := run(t, deps, task.KindAIGeneration, `{"context":{"message":"refunds"},"user_id":"alice"}`, "")
	require.NoError(t, err)
	assert.Equal(t, []any{"Thanks for reaching out about refunds"}, out["suggestions"])
	assert.Equal(t, "alice", out["user_id"])
	assert.Equal(t, "stub-model", out["model"])
	assert.Equal(t, "2024-03-05T14:30:00Z", out["generated_at"])

	_, err = run(t, deps, task.KindAIGeneration, `{"context":{"message":"refunds"}}`, "bob")
	require.NoError(t, err)
	assert.Equal(t, int32(1), gen.calls.Load(), "identical contexts share one generation")
}

func TestAIGeneration_Failure(t *testing.T) {
	gen := &generatorStub{err: errors.New("rate limited upstream")}
	_, err := run(t, jobs.Deps{Generator: gen}, task.KindAIGeneration, `{"context":{"message":"x"}}`, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited upstream")
}

func TestAIGeneration_BadPayload(t *testing.T) {
	_, err := run(t, jobs.Deps{Generator: &generatorStub{}}, task.KindAIGeneration, `[1,2]`, "")
	assert.Error(t, err)
}

func TestAnalytics_DefaultsAndScope(t *testing.T) {
	src := &analyticsStub{}
	out, err := run(t, jobs.Deps{Analytics: src}, task.KindAnalytics, `null`, "client-9")
	require.NoError(t, err)
	assert.Equal(t, 30, src.days)
	assert.Equal(t, "client-9", src.user)
	assert.Equal(t, "client-9", out["user_id"])
	assert.NotNil(t, out["analytics"])
}

func TestAnalytics_CachedPerUser(t *testing.T) {
	src := &analyticsStub{}
	deps := jobs.Deps{Analytics: src, Responses: responseCache(t)}

	for i := 0; i < 2; i++ {
		_, err := run(t, deps, task.KindAnalytics, `{"days":7,"user_id":"alice"}`, "")
		require.NoError(t, err)
	}
	_, err := run(t, deps, task.KindExport, `{"format":"json","filters":{"days":7},"user_id":"alice"}`, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "export reuses the cached analytics window")

	_, err = run(t, deps, task.KindAnalytics, `{"days":7,"user_id":"bob"}`, "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestExport_Formats(t *testing.T) {
	src := &analyticsStub{}
	wantCSV := "Metric,Value\ntotal_responses,12\n\nTop Responses\nTitle,Usage Count,Platforms Used\nRefunds,3,1\n"

	out, err := run(t, jobs.Deps{Analytics: src}, task.KindExport, `{"format":"CSV","filters":{"days":7},"user_id":"alice"}`, "")
	require.NoError(t, err)
	assert.Equal(t, 7, src.days)
	assert.Equal(t, "alice", src.user)
	assert.Equal(t, "csv", out["export_format"])
	assert.Equal(t, "canner_export_alice_20240305_143000.csv", out["export_filename"])
	assert.Equal(t, float64(len(wantCSV)), out["export_size"])
	assert.Equal(t, "/api/downloads/canner_export_alice_20240305_143000.csv", out["download_url"])

	out, err = run(t, jobs.Deps{Analytics: src}, task.KindExport, `{"format":"json"}`, "")
	require.NoError(t, err)
	assert.Equal(t, "json", out["export_format"])
	assert.Equal(t, "default", out["user_id"])
	assert.Greater(t, out["export_size"], float64(0))

	calls := src.calls.Load()
	_, err = run(t, jobs.Deps{Analytics: src}, task.KindExport, `{"format":"xml"}`, "")
	assert.ErrorIs(t, err, jobs.ErrUnsupportedFormat)
	assert.Equal(t, calls, src.calls.Load(), "unsupported formats are rejected before reading analytics")
}
