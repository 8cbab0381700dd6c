package rest

import (
	"encoding/json"

	"github.com/segmentio/ksuid"

	"github.com/clinicalregistry/barnreg/search"
)

// buildSearchBundle assembles a searchset Bundle from Execute's matched
// rows, following original_source/src/api/bundle.rs's SearchSet/SearchEntry
// Serialize impls: resourceType="Bundle", type="searchset", a freshly
// generated bundle id, count, and one entry per match with
// {fullUrl, resource, search:{mode:"match"}}.
func buildSearchBundle(resourceType string, results []search.Result) (map[string]any, error) {
	entries := make([]any, 0, len(results))
	for _, r := range results {
		var doc map[string]any
		if err := json.Unmarshal(r.Doc, &doc); err != nil {
			return nil, err
		}
		id, _ := doc["id"].(string)
		entries = append(entries, map[string]any{
			"fullUrl":  resourceType + "/" + id,
			"resource": doc,
			"search":   map[string]any{"mode": "match"},
		})
	}

	return map[string]any{
		"resourceType": "Bundle",
		"type":         "searchset",
		"id":           ksuid.New().String(),
		"count":        len(entries),
		"entry":        entries,
	}, nil
}
