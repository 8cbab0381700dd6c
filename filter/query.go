package filter

import (
	"fmt"
	"strings"
)

// Modifier is a ":modifier" suffix on a REST search query parameter, e.g.
// "name:exact" or "birthdate:missing".
type Modifier string

const (
	ModNone      Modifier = ""
	ModExact     Modifier = "exact"
	ModContains  Modifier = "contains"
	ModMissing   Modifier = "missing"
	ModNot       Modifier = "not"
	ModAbove     Modifier = "above"
	ModBelow     Modifier = "below"
	ModText      Modifier = "text"
	ModIdentifer Modifier = "identifier"
)

// Param is one parsed "name[:modifier]=value" REST search query parameter,
// with value already split on unescaped commas into OR-joined terms.
type Param struct {
	Name     string
	Modifier Modifier
	OrValues []string
}

// ParseQueryParam splits a raw "name[:modifier]" key and its raw value into
// a Param, handling the comma-as-OR and backslash-escape rules from
// original_source's REST query translation: a bare "," separates OR'd
// values, while "\," "\$" "\|" escape a literal character within one value.
func ParseQueryParam(rawKey, rawValue string) Param {
	name, mod := rawKey, ModNone
	if i := strings.IndexByte(rawKey, ':'); i >= 0 {
		name, mod = rawKey[:i], Modifier(rawKey[i+1:])
	}
	return Param{Name: name, Modifier: mod, OrValues: splitUnescapedCommas(rawValue)}
}

func splitUnescapedCommas(v string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			cur.WriteByte(v[i+1])
			i++
			continue
		}
		if v[i] == ',' {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(v[i])
	}
	out = append(out, cur.String())
	return out
}

// modifierOperator maps a REST search modifier to the comparison operator
// it corresponds to in the filter grammar, for parameters where no
// modifier is the default "eq"-like match (string params default to a
// starts-with/contains-style match handled by the string scanner directly,
// not translated through the filter grammar here).
func modifierOperator(mod Modifier) (ComparisonOperator, error) {
	switch mod {
	case ModNone:
		return OpEQ, nil
	case ModExact:
		return OpEQ, nil
	case ModNot:
		return OpEQ, nil
	case ModContains:
		return OpCO, nil
	case ModAbove:
		return OpSA, nil
	case ModBelow:
		return OpEB, nil
	default:
		return "", fmt.Errorf("modifier %q has no direct filter operator", mod)
	}
}

// ToFilter builds the Filter representing a single REST query Param: one
// Simple comparison per OR'd value, combined with Or (or the bare Simple
// when there is exactly one value). :missing is handled by the caller
// (it toggles a present/absent index scan, not a value comparison).
func (p Param) ToFilter() (Filter, error) {
	if len(p.OrValues) == 0 {
		return nil, fmt.Errorf("search parameter %q has no value", p.Name)
	}
	op, err := modifierOperator(p.Modifier)
	if err != nil {
		return nil, err
	}
	var f Filter = Simple{Identifier: p.Name, Operator: op, Value: p.OrValues[0]}
	for _, v := range p.OrValues[1:] {
		f = Or{Left: f, Right: Simple{Identifier: p.Name, Operator: op, Value: v}}
	}
	if p.Modifier == ModNot {
		f = Not{Child: f}
	}
	return f, nil
}

// valuePrefixes is the set of two-letter comparator prefixes a Number/Date/
// Quantity search value may carry directly (e.g. "ge2020-01-01"), following
// original_source/src/search/filter_converter.rs's param_to_filter.
var valuePrefixes = map[string]ComparisonOperator{
	"eq": OpEQ, "ne": OpNE, "gt": OpGT, "lt": OpLT,
	"ge": OpGE, "le": OpLE, "sa": OpSA, "eb": OpEB, "ap": OpAP,
}

// SplitValuePrefix splits a Number/Date/Quantity search value into its
// leading two-letter comparator prefix (defaulting to "eq" when absent or
// unrecognized) and the remaining literal.
func SplitValuePrefix(value string) (ComparisonOperator, string) {
	if len(value) > 2 {
		if op, ok := valuePrefixes[strings.ToLower(value[:2])]; ok {
			return op, value[2:]
		}
	}
	return OpEQ, value
}

// ToFilterNumeric builds the Filter for a Number/Date/Quantity-typed query
// Param, where the comparator is a prefix on each value rather than a
// ":modifier" suffix.
func (p Param) ToFilterNumeric() (Filter, error) {
	if len(p.OrValues) == 0 {
		return nil, fmt.Errorf("search parameter %q has no value", p.Name)
	}
	build := func(raw string) Simple {
		op, v := SplitValuePrefix(raw)
		return Simple{Identifier: p.Name, Operator: op, Value: v}
	}
	var f Filter = build(p.OrValues[0])
	for _, v := range p.OrValues[1:] {
		f = Or{Left: f, Right: build(v)}
	}
	if p.Modifier == ModNot {
		f = Not{Child: f}
	}
	return f, nil
}
