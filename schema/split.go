package schema

import (
	"strings"

	"github.com/clinicalregistry/barnreg/apperr"
)

// SplitUnionExpr splits expr on every top-level '|' (i.e. one not nested
// inside parentheses or a quoted string literal), trimming surrounding
// whitespace from each part. This is a direct port of
// original_source/src/res_schema.rs's split_union_expr, preserved
// character-for-character in its quote/paren bookkeeping because search
// parameter expressions frequently embed `'...'` literals containing `|`.
func SplitUnionExpr(expr string) ([]string, error) {
	var parts []string
	var stack []byte
	start := 0
	prev := byte(' ')

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch c {
		case '|':
			if len(stack) == 0 {
				parts = append(parts, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		case '(':
			stack = append(stack, c)
		case ')':
			if len(stack) == 0 {
				return nil, apperr.BadRequest("invalid expression %q: mismatched parentheses", expr)
			}
			stack = stack[:len(stack)-1]
		case '"', '\'':
			if prev != '\\' {
				if len(stack) == 0 {
					stack = append(stack, c)
				} else if stack[len(stack)-1] == c {
					stack = stack[:len(stack)-1]
				} else {
					stack = append(stack, c)
				}
			}
		default:
			prev = c
		}
	}

	if len(stack) != 0 {
		return nil, apperr.BadRequest("invalid expression %q: unbalanced parentheses or quotes", expr)
	}

	if len(parts) == 0 {
		parts = append(parts, strings.TrimSpace(expr))
	} else if start < len(expr) {
		parts = append(parts, strings.TrimSpace(expr[start:]))
	}
	return parts, nil
}

// resourceNamePrefix extracts the leading "<ResourceType>." component of a
// split sub-expression, e.g. "Patient.name.given" -> "Patient". Returns ""
// if se has no dotted resource-name prefix.
func resourceNamePrefix(se string) string {
	se = strings.TrimSpace(se)
	idx := strings.IndexByte(se, '.')
	if idx <= 0 {
		return ""
	}
	name := se[:idx]
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return name
}
