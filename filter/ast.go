package filter

import (
	"fmt"
	"strings"
)

// Filter is a parsed search-filter expression node, mirroring the Rust
// `Filter` enum in original_source/src/search/filter_parser.rs.
type Filter interface {
	String() string
	isFilter()
}

// Simple is a bare "identifier OP value" comparison, e.g. "name eq abcd".
type Simple struct {
	Identifier string
	Operator   ComparisonOperator
	Value      string
}

func (Simple) isFilter() {}
func (s Simple) String() string {
	return fmt.Sprintf("(%s %s %s)", s.Identifier, strings.ToUpper(string(s.Operator)), s.Value)
}

// Conditional is the bracketed sub-filter form
// "identifier[condition].idPath OP value", e.g. "name[given eq A].last co abcd".
type Conditional struct {
	Identifier string
	IDPath     string
	Operator   ComparisonOperator
	Value      string
	Condition  Filter
}

func (Conditional) isFilter() {}
func (c Conditional) String() string {
	return fmt.Sprintf("(%s[%s].%s %s %s)", c.Identifier, c.Condition.String(), c.IDPath, strings.ToUpper(string(c.Operator)), c.Value)
}

// And is the conjunction of exactly two filters (the rhs may itself be
// another And, giving right-associative chains for "a and b and c").
type And struct{ Left, Right Filter }

func (And) isFilter() {}
func (a And) String() string { return fmt.Sprintf("(%s AND %s)", a.Left.String(), a.Right.String()) }

// Or is the disjunction of exactly two filters, right-associative as And.
type Or struct{ Left, Right Filter }

func (Or) isFilter() {}
func (o Or) String() string { return fmt.Sprintf("(%s OR %s)", o.Left.String(), o.Right.String()) }

// Not negates a single filter.
type Not struct{ Child Filter }

func (Not) isFilter() {}
func (n Not) String() string { return "NOT" + n.Child.String() }
