// Package rest implements the REST front door over the registry core: a
// small net/http-based dispatcher in the style of
// damedic-fhir-toolbox-go/rest/server.go (stdlib ServeMux pattern routing,
// log/slog, no external web framework), wired to filter/search/resource/
// indexing/schema/store instead of a generated FHIR model.
package rest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/clinicalregistry/barnreg/apperr"
	"github.com/clinicalregistry/barnreg/filter"
	"github.com/clinicalregistry/barnreg/schema"
)

// buildSearchFilter translates a REST query string into one filter.Filter
// (the And of every parameter) plus the requested result count, following
// original_source/src/search/filter_converter.rs's per-parameter dispatch
// generalized to a whole query. An unknown parameter name is a BadRequest
// under strict handling and a dropped no-op otherwise.
func buildSearchFilter(sd *schema.SchemaDef, resourceType string, values url.Values, strict bool, defaultCount, maxCount int) (filter.Filter, int, error) {
	count := defaultCount
	var f filter.Filter

	for key, vals := range values {
		if strings.HasPrefix(key, "_") {
			// _count and _filter are the only control parameters this
			// registry interprets; any other leading-underscore parameter
			// (_include, _sort, _format, ...) names a FHIR control
			// parameter this registry doesn't implement and is silently
			// ignored, never treated as an unknown search parameter.
			switch key {
			case "_count":
				if len(vals) > 0 {
					if n, err := strconv.Atoi(vals[0]); err == nil && n > 0 {
						count = n
					}
				}
			case "_filter":
				for _, raw := range vals {
					ff, err := filter.Parse(raw)
					if err != nil {
						if strict {
							return nil, 0, apperr.BadRequest("invalid _filter expression %q: %v", raw, err)
						}
						continue
					}
					if f == nil {
						f = ff
					} else {
						f = filter.And{Left: f, Right: ff}
					}
				}
			}
			continue
		}

		for _, raw := range vals {
			pf, err := paramFilter(sd, resourceType, key, raw)
			if err != nil {
				if strict {
					return nil, 0, err
				}
				continue
			}
			if f == nil {
				f = pf
			} else {
				f = filter.And{Left: f, Right: pf}
			}
		}
	}

	if count > maxCount {
		count = maxCount
	}
	return f, count, nil
}

// paramFilter builds the Filter for one "name[:modifier]=value" query
// parameter. The operator always comes from a two-letter value prefix
// ("ge2020-01-01", "gt Windsor") via filter.SplitValuePrefix — following
// original_source/src/search/filter_converter.rs's param_to_filter, which
// applies the same prefix extraction to every parameter regardless of its
// declared type, defaulting to "eq" when no recognized prefix is present.
// The ":modifier" suffix is kept on the Simple's Identifier so
// search.attributeName can recover it (search/modifier.go): it governs
// case-exactness/chaining/reference-type constraints independently of
// whichever operator the value prefix selected.
func paramFilter(sd *schema.SchemaDef, resourceType, rawKey, rawValue string) (filter.Filter, error) {
	name, mod, _ := strings.Cut(rawKey, ":")
	if _, _, ok := sd.GetSearchParamExprForRes(resourceType, name); !ok {
		return nil, apperr.BadRequest("there is no search parameter defined with code %q on %s", name, resourceType)
	}
	if mod == string(filter.ModMissing) {
		return nil, apperr.BadRequest(":missing is not yet implemented")
	}

	p := filter.ParseQueryParam(rawKey, rawValue)
	identifier := rawKey
	if p.Modifier == filter.ModNot {
		// NOT wraps the whole Or-chain, so the modifier never belongs on the
		// per-value Identifier — strip it back to the bare param name.
		identifier = name
	}

	build := func(value string) filter.Simple {
		op, lit := filter.SplitValuePrefix(value)
		return filter.Simple{Identifier: identifier, Operator: op, Value: lit}
	}

	var f filter.Filter = build(p.OrValues[0])
	for _, v := range p.OrValues[1:] {
		f = filter.Or{Left: f, Right: build(v)}
	}
	if p.Modifier == filter.ModNot {
		f = filter.Not{Child: f}
	}
	return f, nil
}
