package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/clinicalregistry/barnreg/apperr"
	"github.com/clinicalregistry/barnreg/filter"
	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

// Query bundles the parsed search request against one resource type,
// grounded on original_source/src/search/executor.rs's SearchQuery/
// execute_search_query.
type Query struct {
	Filter filter.Filter
	Count  int
}

// Result is one matched resource, fetched from its primary row.
type Result struct {
	Key ResourceKey
	Doc []byte
}

// Execute runs q.Filter against rd's index rows and returns up to q.Count
// matching resources, following execute_search_query's loop (collect every
// matching key, then stop fetching primary rows once count is reached).
func Execute(ctx context.Context, q Query, rd *schema.ResourceDef, sd *schema.SchemaDef, st *store.Store) ([]Result, error) {
	scanner, err := ToIndexScanner(q.Filter, rd, sd, st)
	if err != nil {
		return nil, err
	}
	keys, err := scanner.CollectAll(ctx)
	if err != nil {
		return nil, err
	}

	count := q.Count
	if count <= 0 {
		count = len(keys)
	}
	results := make([]Result, 0, count)
	for k := range keys {
		if ctx.Err() != nil {
			return nil, apperr.Timeout("search cancelled while fetching results")
		}
		doc, err := st.GetPrimary(ctx, k[:])
		if err != nil {
			continue // row was removed between the index scan and this fetch
		}
		results = append(results, Result{Key: k, Doc: doc})
		if len(results) >= count {
			break
		}
	}
	return results, nil
}

// ToIndexScanner translates a filter.Filter into an executable IndexScanner
// tree, the Go counterpart of original_source/src/search/executor.rs's
// to_index_scanner.
func ToIndexScanner(f filter.Filter, rd *schema.ResourceDef, sd *schema.SchemaDef, st *store.Store) (IndexScanner, error) {
	switch x := f.(type) {
	case filter.Simple:
		return simpleScanner(x, rd, sd, st)
	case filter.And:
		left, err := ToIndexScanner(x.Left, rd, sd, st)
		if err != nil {
			return nil, err
		}
		right, err := ToIndexScanner(x.Right, rd, sd, st)
		if err != nil {
			return nil, err
		}
		return NewAndScanner([]IndexScanner{left, right}), nil
	case filter.Or:
		left, err := ToIndexScanner(x.Left, rd, sd, st)
		if err != nil {
			return nil, err
		}
		right, err := ToIndexScanner(x.Right, rd, sd, st)
		if err != nil {
			return nil, err
		}
		return NewOrScanner([]IndexScanner{left, right}), nil
	case filter.Not:
		child, err := ToIndexScanner(x.Child, rd, sd, st)
		if err != nil {
			return nil, err
		}
		return NewNotScanner(child, rd.Hash, st), nil
	case filter.Conditional:
		return conditionalScanner(x, rd, sd, st)
	default:
		return nil, apperr.BadRequest("unsupported filter type %T for resource %s", f, rd.Name)
	}
}

// conditionalScanner evaluates a bracketed `_filter` conditional,
// "identifier[condition].idPath op value". Index rows don't retain which
// repeated element a value came from, so condition and the idPath
// comparison are ANDed as independent resource-level constraints rather
// than correlated to the same array element; see DESIGN.md.
func conditionalScanner(x filter.Conditional, rd *schema.ResourceDef, sd *schema.SchemaDef, st *store.Store) (IndexScanner, error) {
	cond, err := ToIndexScanner(x.Condition, rd, sd, st)
	if err != nil {
		return nil, err
	}
	idPath, err := ToIndexScanner(filter.Simple{Identifier: x.IDPath, Operator: x.Operator, Value: x.Value}, rd, sd, st)
	if err != nil {
		return nil, err
	}
	return NewAndScanner([]IndexScanner{cond, idPath}), nil
}

func simpleScanner(s filter.Simple, rd *schema.ResourceDef, sd *schema.SchemaDef, st *store.Store) (IndexScanner, error) {
	name, mod, chain := attributeName(s.Identifier)
	spd, expr, ok := sd.GetSearchParamExprForRes(rd.Name, name)
	if !ok {
		return nil, apperr.BadRequest("there is no search parameter defined with code %q on %s", name, rd.Name)
	}
	if expr == nil {
		return nil, apperr.BadRequest("cannot search on a non-indexed field; no FHIRPath expression for %q on %s", name, rd.Name)
	}

	switch spd.Type {
	case schema.TypeString:
		return NewStringIndexScanner(s.Value, st, expr.Hash, s.Operator, mod), nil
	case schema.TypeToken:
		return NewTokenIndexScanner(s.Value, st, expr.Hash, mod), nil
	case schema.TypeNumber, schema.TypeQuantity:
		return NewNumberIndexScanner(s.Value, st, expr.Hash, s.Operator)
	case schema.TypeDate:
		millis, err := parseDateValue(s.Value)
		if err != nil {
			return nil, apperr.BadRequest("invalid date value %q for %q: %v", s.Value, name, err)
		}
		return NewDateIndexScanner(millis, st, expr.Hash, s.Operator), nil
	case schema.TypeReference:
		return referenceScanner(s.Value, s.Operator, mod, chain, spd, expr, rd, sd, st)
	default:
		return nil, apperr.BadRequest("unsupported search parameter type %q", spd.Type)
	}
}

// referenceScanner builds the scanner for a Reference-typed search
// parameter. Three forms are handled:
//
//   - plain equality ("subject=Patient/123" or "subject:Patient=123"):
//     matches rows whose reference-index value equals the given type/id.
//   - ":identifier" ("service-provider:identifier=https://example|9e27"):
//     reference-by-identifier, resolved by scanning the target resource
//     type's own "identifier" token index and chaining through.
//   - chained ("attr.subattr=value", e.g. "service-provider.name=Hospital"):
//     resolved by scanning the target resource type's own index for
//     subattr=value, then chaining the resolved target ids through the
//     reference index.
//
// Both chained forms go through chainedReferenceScanner, grounded on
// original_source/src/search/executor.rs's reference-chasing handling in
// to_index_scanner.
func referenceScanner(value string, op filter.ComparisonOperator, mod Modifier, chain string, spd *schema.SearchParamDef, expr *schema.SearchParamExpr, rd *schema.ResourceDef, sd *schema.SchemaDef, st *store.Store) (IndexScanner, error) {
	isIdentifier := mod.Kind == ModifierCustom && mod.Custom == "identifier"
	if isIdentifier {
		chain = "identifier"
	}
	if chain != "" {
		return chainedReferenceScanner(value, op, mod, chain, spd, expr, sd, st)
	}

	typeName, id := splitReferenceValue(value)
	targetName := typeName
	if mod.Kind == ModifierCustom && mod.Custom != "identifier" {
		if typeName != "" && typeName != mod.Custom {
			return nil, apperr.BadRequest("mismatched resourceType names in modifier (%s) and reference (%s)", mod.Custom, typeName)
		}
		targetName = mod.Custom
	}

	var targetHash [4]byte
	hasHash := targetName != ""
	if hasHash {
		targetDef, err := sd.GetResourceDef(targetName)
		if err != nil {
			return nil, apperr.BadRequest("unknown resourceType %q", targetName)
		}
		targetHash = targetDef.Hash
	}

	return NewReferenceIndexScanner(id, targetHash, hasHash, st, expr.Hash), nil
}

// chainedReferenceScanner resolves a chained or :identifier reference
// search: pick the single candidate target resourceType, scan its own
// index for chain=value, and chain the resulting ids through the
// reference parameter's index.
func chainedReferenceScanner(value string, op filter.ComparisonOperator, mod Modifier, chain string, spd *schema.SearchParamDef, expr *schema.SearchParamExpr, sd *schema.SchemaDef, st *store.Store) (IndexScanner, error) {
	targetName, err := chainTargetName(mod, spd)
	if err != nil {
		return nil, err
	}
	targetDef, err := sd.GetResourceDef(targetName)
	if err != nil {
		return nil, apperr.BadRequest("unknown resourceType %q", targetName)
	}

	targetScanner, err := ToIndexScanner(filter.Simple{Identifier: chain, Operator: op, Value: value}, targetDef, sd, st)
	if err != nil {
		return nil, err
	}
	return NewChainedReferenceScanner(targetScanner, targetDef.Hash, st, expr.Hash), nil
}

// chainTargetName picks the resourceType a chained/:identifier search
// resolves against: an explicit ":ResourceType" modifier wins, otherwise
// the search parameter must name exactly one target resourceType.
func chainTargetName(mod Modifier, spd *schema.SearchParamDef) (string, error) {
	if mod.Kind == ModifierCustom && mod.Custom != "identifier" {
		return mod.Custom, nil
	}
	if len(spd.Targets) == 1 {
		for t := range spd.Targets {
			return t, nil
		}
	}
	return "", apperr.BadRequest("chained search on %q is ambiguous across multiple target resourceTypes; specify one with :ResourceType", spd.Code)
}

func splitReferenceValue(ref string) (typeName, id string) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// parseDateValue parses a date/date-time literal into epoch milliseconds,
// accepting whole-day, whole-minute, and full RFC3339 precision.
func parseDateValue(v string) (int64, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UnixMilli(), nil
		}
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	return 0, apperr.BadRequest("unrecognized date format %q", v)
}
