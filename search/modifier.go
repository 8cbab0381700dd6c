// Package search executes a parsed filter.Filter against the value-index
// rows an indexing.Index call produced, grounded on
// original_source/src/search/{executor.rs,index_scanners.rs,index_scanners/*.rs}.
package search

import "strings"

// Modifier is a REST search ":modifier" suffix, parsed off the parameter
// name the way original_source/src/search/executor.rs's parse_attribute_name
// does (identifier[:modifier][.chain]).
type Modifier struct {
	Kind   ModifierKind
	Custom string // set when Kind == ModifierCustom, e.g. the "Patient" in "subject:Patient"
}

type ModifierKind int

const (
	ModifierNone ModifierKind = iota
	ModifierExact
	ModifierContains
	ModifierMissing
	ModifierText
	ModifierAbove
	ModifierBelow
	ModifierCustom // a resourceType name used as a reference-target filter, e.g. "subject:Patient"
)

func parseModifier(raw string) Modifier {
	switch raw {
	case "":
		return Modifier{Kind: ModifierNone}
	case "exact":
		return Modifier{Kind: ModifierExact}
	case "contains":
		return Modifier{Kind: ModifierContains}
	case "missing":
		return Modifier{Kind: ModifierMissing}
	case "text":
		return Modifier{Kind: ModifierText}
	case "above":
		return Modifier{Kind: ModifierAbove}
	case "below":
		return Modifier{Kind: ModifierBelow}
	default:
		return Modifier{Kind: ModifierCustom, Custom: raw}
	}
}

// attributeName splits a filter identifier into its bare search-parameter
// code, an optional ":modifier", and an optional ".chain" path for a
// reference-chained search, e.g. "subject:Patient.name" -> ("subject",
// {Custom,"Patient"}, "name").
func attributeName(identifier string) (name string, mod Modifier, chain string) {
	name = identifier
	if i := strings.IndexByte(name, '.'); i >= 0 {
		chain = name[i+1:]
		name = name[:i]
	}
	if i := strings.IndexByte(name, ':'); i >= 0 {
		mod = parseModifier(name[i+1:])
		name = name[:i]
	}
	return name, mod, chain
}
