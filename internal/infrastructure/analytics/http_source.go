// Package analytics reads response analytics from the service that owns the
// canned-response data.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/canner-app/canner/go/internal/core/ports"
)

// HTTPSource fetches analytics with GET <baseURL>?user_id=<id>&days=<n>. The
// endpoint answers with a JSON object.
type HTTPSource struct {
	client  *http.Client
	baseURL string
}

var _ ports.AnalyticsSource = (*HTTPSource)(nil)

func NewHTTPSource(client *http.Client, baseURL string) *HTTPSource {
	return &HTTPSource{client: client, baseURL: baseURL}
}

func (s *HTTPSource) ResponseAnalytics(ctx context.Context, userID string, days int) (map[string]any, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid analytics url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	q.Set("days", strconv.Itoa(days))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analytics endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode analytics: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
