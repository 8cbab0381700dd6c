package resource

import (
	"strings"

	"github.com/clinicalregistry/barnreg/apperr"
)

// ResourceType reads the discriminator field of a generic document.
func ResourceType(doc map[string]any) (string, error) {
	rt, ok := doc["resourceType"].(string)
	if !ok || rt == "" {
		return "", apperr.BadRequest("resource is missing a resourceType")
	}
	return rt, nil
}

// walkStrings visits every string value reachable under node, passing the
// JSON object key it was found under (empty for array elements), used by
// whole-token reference rewriting: only "reference" and "div" fields are
// candidates for rewriting.
func walkStrings(node any, key string, fn func(key, s string) string) any {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			v[k] = walkStrings(child, k, fn)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = walkStrings(child, key, fn)
		}
		return v
	case string:
		return fn(key, v)
	default:
		return v
	}
}

// rewriteToken replaces s with replacement when s equals token exactly, or
// when s contains token as a whole "word" delimited by non-identifier
// characters — never a blind substring replace.
func rewriteToken(s, token, replacement string) string {
	if s == token {
		return replacement
	}
	idx := strings.Index(s, token)
	if idx < 0 {
		return s
	}
	before := idx == 0 || !isTokenChar(s[idx-1])
	afterIdx := idx + len(token)
	after := afterIdx >= len(s) || !isTokenChar(s[afterIdx])
	if before && after {
		return s[:idx] + replacement + s[afterIdx:]
	}
	return s
}

func isTokenChar(c byte) bool {
	return c == '/' || c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
