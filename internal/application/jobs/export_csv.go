package jobs

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
)

// renderCSV writes the overview metrics as Metric/Value rows, a blank row,
// then the top responses table.
func renderCSV(analytics map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{{"Metric", "Value"}}
	if overview, ok := analytics["overview"].(map[string]any); ok {
		keys := make([]string, 0, len(overview))
		for k := range overview {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []string{k, cell(overview[k], "")})
		}
	}
	rows = append(rows, []string{}, []string{"Top Responses"}, []string{"Title", "Usage Count", "Platforms Used"})
	if top, ok := analytics["top_responses"].([]any); ok {
		for _, item := range top {
			r, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rows = append(rows, []string{cell(r["title"], ""), cell(r["usage_count"], "0"), cell(r["platforms_used"], "0")})
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(v any, empty string) string {
	if v == nil {
		return empty
	}
	return fmt.Sprint(v)
}
