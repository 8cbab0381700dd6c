package search

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/clinicalregistry/barnreg/filter"
	"github.com/clinicalregistry/barnreg/indexing"
	"github.com/clinicalregistry/barnreg/store"
)

// ResourceKey is a primary-key suffix, matching the 24-byte [u8; 24] key
// index rows resolve to in original_source's index_scanners module.
type ResourceKey [24]byte

// IndexScanner walks value-index rows and yields the matching primary keys,
// mirroring the `IndexScanner` trait in
// original_source/src/search/index_scanners.rs.
type IndexScanner interface {
	CollectAll(ctx context.Context) (map[ResourceKey]bool, error)
}

func keyOf(b []byte) ResourceKey {
	var k ResourceKey
	copy(k[:], b)
	return k
}

// splitDelimited splits value on unescaped occurrences of needle, dropping
// empty parts, following original_source's split_delimited_values (used to
// build IN-lists from a comma-separated search parameter value).
func splitDelimited(value string, needle byte) []string {
	var parts []string
	var part strings.Builder
	prev := byte(' ')
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == needle && prev != '\\':
			if part.Len() > 0 {
				parts = append(parts, part.String())
				part.Reset()
			}
		case c == '\\' && prev != '\\':
			// skip, the escape marker itself is never emitted
		default:
			part.WriteByte(c)
		}
		prev = c
	}
	if part.Len() > 0 {
		parts = append(parts, part.String())
	}
	return parts
}

// ---- String ----

// StringIndexScanner implements the String search-parameter type, grounded
// on original_source/src/search/index_scanners/string.rs's StringIndexScanner.
type StringIndexScanner struct {
	st     *store.Store
	prefix [4]byte
	op     filter.ComparisonOperator
	value  string   // normalized single value (lower-cased unless :exact)
	values []string // normalized IN-list values, set when the input contained commas
	exact  bool
}

func NewStringIndexScanner(input string, st *store.Store, prefix [4]byte, op filter.ComparisonOperator, mod Modifier) *StringIndexScanner {
	exact := mod.Kind == ModifierExact
	s := &StringIndexScanner{st: st, prefix: prefix, op: op, exact: exact}
	if strings.Contains(input, ",") {
		parts := splitDelimited(input, ',')
		for _, p := range parts {
			s.values = append(s.values, normalizeString(p, exact))
		}
	}
	switch {
	case len(s.values) == 1:
		s.value, s.values = s.values[0], nil
	case len(s.values) == 0:
		s.value = normalizeString(input, exact)
	default:
		s.op = filter.OpIN
	}
	return s
}

func normalizeString(s string, exact bool) string {
	if exact {
		return s
	}
	return indexing.FoldString(s)
}

func (s *StringIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	out := map[ResourceKey]bool{}
	err := s.st.PrefixIteratorIndex(ctx, s.prefix[:], func(e store.Entry) (bool, error) {
		pos := len(e.Key) - 24
		hasVal := pos > 0 && e.Key[4] == 0x01
		var folded, original string
		if hasVal {
			folded, original = indexing.DecodeStringKey(e.Key[5:pos])
		}
		if s.cmp(hasVal, folded, original) {
			out[keyOf(e.Key[pos:])] = true
		}
		return true, nil
	})
	return out, err
}

func (s *StringIndexScanner) cmp(hasVal bool, folded, original string) bool {
	if !hasVal {
		return s.op == filter.OpNE
	}
	switch s.op {
	case filter.OpCO:
		return strings.Contains(folded, s.value)
	case filter.OpEQ:
		if s.exact {
			return original == s.value
		}
		return folded == s.value
	case filter.OpEW:
		return strings.HasSuffix(folded, s.value)
	case filter.OpGE:
		return folded >= s.value
	case filter.OpGT:
		return folded > s.value
	case filter.OpLE:
		return folded <= s.value
	case filter.OpLT:
		return folded < s.value
	case filter.OpNE:
		if s.exact {
			return original != s.value
		}
		return folded != s.value
	case filter.OpSW:
		return strings.HasPrefix(folded, s.value)
	case filter.OpIN:
		for _, v := range s.values {
			target := folded
			if s.exact {
				target = original
			}
			if target == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ---- Token ----

// TokenIndexScanner implements the Token search-parameter type, grounded on
// original_source/src/search/index_scanners/token.rs's TokenIndexScanner.
type TokenIndexScanner struct {
	st       *store.Store
	prefix   [4]byte
	system   string
	hasSys   bool
	code     string
	hasCode  bool
	textMode bool
}

func NewTokenIndexScanner(input string, st *store.Store, prefix [4]byte, mod Modifier) *TokenIndexScanner {
	s := &TokenIndexScanner{st: st, prefix: prefix, textMode: mod.Kind == ModifierText}
	if i := strings.LastIndexByte(input, '|'); i >= 0 {
		if sys := input[:i]; sys != "" {
			s.system, s.hasSys = sys, true
		}
		if code := input[i+1:]; code != "" {
			s.code, s.hasCode = code, true
		}
	} else if input != "" {
		s.code, s.hasCode = input, true
	}
	return s
}

func (s *TokenIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	out := map[ResourceKey]bool{}
	if s.textMode {
		return out, nil // text search over token display values is not implemented
	}
	err := s.st.PrefixIteratorIndex(ctx, s.prefix[:], func(e store.Entry) (bool, error) {
		pos := len(e.Key) - 24
		hasVal := pos > 0 && e.Key[4] == 0x01
		var storedSys, storedCode string
		var hasStoredSys, hasStoredCode bool
		if hasVal {
			var ok bool
			storedSys, storedCode, ok = indexing.DecodeTokenKey(e.Key[5:pos])
			hasStoredSys, hasStoredCode = ok && storedSys != "", ok && storedCode != ""
		}
		sysMatch := !s.hasSys || (hasStoredSys && s.system == storedSys)
		codeMatch := !s.hasCode || (hasStoredCode && s.code == storedCode)
		if hasVal && sysMatch && codeMatch {
			out[keyOf(e.Key[pos:])] = true
		}
		return true, nil
	})
	return out, err
}

// ---- Number / Quantity ----

// NumberIndexScanner implements the Number and Quantity search-parameter
// types. The original leaves relational comparisons to raw key-byte
// ordering; this port decodes each stored value back to a float64 first, so
// GT/LT/GE/LE are correct for negative magnitudes too (see indexing/encode.go).
type NumberIndexScanner struct {
	st     *store.Store
	prefix [4]byte
	op     filter.ComparisonOperator
	value  float64
}

func NewNumberIndexScanner(input string, st *store.Store, prefix [4]byte, op filter.ComparisonOperator) (*NumberIndexScanner, error) {
	v, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return nil, err
	}
	return &NumberIndexScanner{st: st, prefix: prefix, op: op, value: v}, nil
}

func (s *NumberIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	out := map[ResourceKey]bool{}
	err := s.st.PrefixIteratorIndex(ctx, s.prefix[:], func(e store.Entry) (bool, error) {
		pos := len(e.Key) - 24
		hasVal := pos > 0 && e.Key[4] == 0x01
		if !hasVal {
			if s.op == filter.OpNE {
				out[keyOf(e.Key[pos:])] = true
			}
			return true, nil
		}
		got := indexing.DecodeNumberKey(e.Key[5:pos])
		if numberCmp(s.op, got, s.value) {
			out[keyOf(e.Key[pos:])] = true
		}
		return true, nil
	})
	return out, err
}

func numberCmp(op filter.ComparisonOperator, got, want float64) bool {
	const eps = 1e-9
	switch op {
	case filter.OpEQ:
		return math.Abs(got-want) < eps
	case filter.OpNE:
		return math.Abs(got-want) >= eps
	case filter.OpGT:
		return got > want
	case filter.OpGE:
		return got >= want
	case filter.OpLT:
		return got < want
	case filter.OpLE:
		return got <= want
	default:
		return false
	}
}

// ---- Date ----

// DateIndexScanner implements the Date search-parameter type, comparing
// decoded millisecond timestamps (see NumberIndexScanner's note on why this
// port decodes before comparing rather than relying on key-byte ordering).
type DateIndexScanner struct {
	st     *store.Store
	prefix [4]byte
	op     filter.ComparisonOperator
	millis int64
}

func NewDateIndexScanner(millis int64, st *store.Store, prefix [4]byte, op filter.ComparisonOperator) *DateIndexScanner {
	return &DateIndexScanner{st: st, prefix: prefix, op: op, millis: millis}
}

func (s *DateIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	out := map[ResourceKey]bool{}
	err := s.st.PrefixIteratorIndex(ctx, s.prefix[:], func(e store.Entry) (bool, error) {
		pos := len(e.Key) - 24
		hasVal := pos > 0 && e.Key[4] == 0x01
		if !hasVal {
			if s.op == filter.OpNE {
				out[keyOf(e.Key[pos:])] = true
			}
			return true, nil
		}
		got := indexing.DecodeDateKey(e.Key[5:pos])
		if dateCmp(s.op, got, s.millis) {
			out[keyOf(e.Key[pos:])] = true
		}
		return true, nil
	})
	return out, err
}

func dateCmp(op filter.ComparisonOperator, got, want int64) bool {
	switch op {
	case filter.OpEQ:
		return got == want
	case filter.OpNE:
		return got != want
	case filter.OpGT, filter.OpSA:
		return got > want
	case filter.OpGE:
		return got >= want
	case filter.OpLT, filter.OpEB:
		return got < want
	case filter.OpLE:
		return got <= want
	default:
		return false
	}
}

// ---- Reference ----

// ReferenceIndexScanner implements the Reference search-parameter type,
// grounded on original_source/src/search/index_scanners/reference.rs.
type ReferenceIndexScanner struct {
	st         *store.Store
	prefix     [4]byte
	targetID   string
	targetHash [4]byte
	hasHash    bool
}

func NewReferenceIndexScanner(targetID string, targetHash [4]byte, hasHash bool, st *store.Store, prefix [4]byte) *ReferenceIndexScanner {
	return &ReferenceIndexScanner{st: st, prefix: prefix, targetID: targetID, targetHash: targetHash, hasHash: hasHash}
}

func (s *ReferenceIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	out := map[ResourceKey]bool{}
	err := s.st.PrefixIteratorIndex(ctx, s.prefix[:], func(e store.Entry) (bool, error) {
		pos := len(e.Key) - 24
		hasVal := pos > 0 && e.Key[4] == 0x01
		if !hasVal {
			return true, nil
		}
		gotHash, gotID := indexing.DecodeReferenceKey(e.Key[5:pos])
		if s.hasHash && !bytes.Equal(gotHash[:], s.targetHash[:]) {
			return true, nil
		}
		if string(gotID) == s.targetID {
			out[keyOf(e.Key[pos:])] = true
		}
		return true, nil
	})
	return out, err
}

// ChainedReferenceScanner implements a chained reference search
// (`attr.subattr=value`, or `attr:identifier=value`): it first runs target
// against the target resource type's own index to resolve matching target
// ids, then walks the reference parameter's own index for rows pointing at
// one of those ids.
type ChainedReferenceScanner struct {
	st         *store.Store
	prefix     [4]byte // the reference search parameter's own expression hash
	targetHash [4]byte
	target     IndexScanner
}

func NewChainedReferenceScanner(target IndexScanner, targetHash [4]byte, st *store.Store, prefix [4]byte) *ChainedReferenceScanner {
	return &ChainedReferenceScanner{st: st, prefix: prefix, targetHash: targetHash, target: target}
}

func (s *ChainedReferenceScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	targetKeys, err := s.target.CollectAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(targetKeys) == 0 {
		return map[ResourceKey]bool{}, nil
	}
	targetIDs := make(map[string]bool, len(targetKeys))
	for k := range targetKeys {
		id, err := indexing.IDFromKey([24]byte(k))
		if err != nil {
			continue
		}
		targetIDs[id] = true
	}

	out := map[ResourceKey]bool{}
	err = s.st.PrefixIteratorIndex(ctx, s.prefix[:], func(e store.Entry) (bool, error) {
		pos := len(e.Key) - 24
		hasVal := pos > 0 && e.Key[4] == 0x01
		if !hasVal {
			return true, nil
		}
		gotHash, gotID := indexing.DecodeReferenceKey(e.Key[5:pos])
		if !bytes.Equal(gotHash[:], s.targetHash[:]) {
			return true, nil
		}
		if targetIDs[string(gotID)] {
			out[keyOf(e.Key[pos:])] = true
		}
		return true, nil
	})
	return out, err
}

// ---- And / Or / Not ----

// AndOrIndexScanner composes child scanners by set intersection or union,
// grounded on original_source/src/search/index_scanners/and_or.rs. Unlike
// the original (whose AND branch computes `keep` but never actually filters
// on it — a bug), this port performs a real intersection: seed from the
// smallest child's result set, then keep only keys present in every other
// child.
type AndOrIndexScanner struct {
	and      bool
	children []IndexScanner
}

func NewAndScanner(children []IndexScanner) *AndOrIndexScanner {
	return &AndOrIndexScanner{and: true, children: children}
}

func NewOrScanner(children []IndexScanner) *AndOrIndexScanner {
	return &AndOrIndexScanner{and: false, children: children}
}

func (s *AndOrIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	if len(s.children) == 0 {
		return map[ResourceKey]bool{}, nil
	}
	results := make([]map[ResourceKey]bool, len(s.children))
	for i, c := range s.children {
		r, err := c.CollectAll(ctx)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}

	if !s.and {
		out := map[ResourceKey]bool{}
		for _, r := range results {
			for k := range r {
				out[k] = true
			}
		}
		return out, nil
	}

	minIdx := 0
	for i, r := range results {
		if len(r) < len(results[minIdx]) {
			minIdx = i
		}
	}
	out := map[ResourceKey]bool{}
candidate:
	for k := range results[minIdx] {
		for i, r := range results {
			if i == minIdx {
				continue
			}
			if !r[k] {
				continue candidate
			}
		}
		out[k] = true
	}
	return out, nil
}

// NotIndexScanner complements child against every primary key under rd's
// resource-type hash prefix. original_source leaves this `todo!()`
// unimplemented; this port fills it in the natural way: scan every stored
// resource of the type, then drop whatever the child matched.
type NotIndexScanner struct {
	st           *store.Store
	resourceHash [4]byte
	child        IndexScanner
}

func NewNotScanner(child IndexScanner, resourceHash [4]byte, st *store.Store) *NotIndexScanner {
	return &NotIndexScanner{st: st, resourceHash: resourceHash, child: child}
}

func (s *NotIndexScanner) CollectAll(ctx context.Context) (map[ResourceKey]bool, error) {
	childKeys, err := s.child.CollectAll(ctx)
	if err != nil {
		return nil, err
	}
	out := map[ResourceKey]bool{}
	err = s.st.PrefixIteratorPrimary(ctx, s.resourceHash[:], func(e store.Entry) (bool, error) {
		if len(e.Key) < 24 {
			return true, nil
		}
		k := keyOf(e.Key[len(e.Key)-24:])
		if !childKeys[k] {
			out[k] = true
		}
		return true, nil
	})
	return out, err
}
