package rest

import (
	"sort"

	"github.com/clinicalregistry/barnreg/schema"
)

// capabilityStatement lists every registered resource type and its indexed
// search parameters, following the shape damedic-fhir-toolbox-go/rest
// generates dynamically from the backend's own registrations: GET /metadata
// returns a capability statement listing every registered resource type and
// its indexed search parameters.
func capabilityStatement(sd *schema.SchemaDef) map[string]any {
	names := make([]string, 0, len(sd.Resources))
	for name := range sd.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	resources := make([]any, 0, len(names))
	for _, name := range names {
		codes := sd.ParamCodesFor(name)
		sort.Strings(codes)
		params := make([]any, 0, len(codes))
		for _, code := range codes {
			spd, _, _ := sd.GetSearchParamExprForRes(name, code)
			params = append(params, map[string]any{
				"name": code,
				"type": string(spd.Type),
			})
		}
		resources = append(resources, map[string]any{
			"type":        name,
			"interaction": []any{map[string]any{"code": "create"}, map[string]any{"code": "read"}, map[string]any{"code": "search-type"}},
			"searchParam": params,
		})
	}

	return map[string]any{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []any{"json"},
		"rest": []any{
			map[string]any{
				"mode":     "server",
				"resource": resources,
			},
		},
	}
}
