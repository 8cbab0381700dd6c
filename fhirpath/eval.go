package fhirpath

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EvalError is returned for any failure during expression evaluation,
// matching 4.A's "typed EvalError" requirement; apperr.Eval wraps this at
// package boundaries that speak HTTP/OperationOutcome.
type EvalError struct {
	Msg string
}

func (e EvalError) Error() string { return "fhirpath: " + e.Msg }

func evalErrorf(format string, args ...any) error {
	return EvalError{Msg: fmt.Sprintf(format, args...)}
}

// evalNode evaluates node against focus (the items it navigates relative
// to) within ctx.
func evalNode(node Node, focus Collection, ctx *Context) (Collection, error) {
	switch n := node.(type) {
	case Path:
		return evalPath(n, focus, ctx)
	case SubExpr:
		lhs, err := evalNode(n.Lhs, focus, ctx)
		if err != nil {
			return nil, err
		}
		return evalNode(n.Rhs, lhs, ctx)
	case Binary:
		return evalBinary(n, focus, ctx)
	case Unary:
		return evalUnary(n, focus, ctx)
	case Function:
		return evalFunction(n, focus, ctx)
	case ArrayIndex:
		return evalArrayIndex(n, focus, ctx)
	case Literal:
		return evalLiteral(n)
	case EnvVariable:
		if v, ok := ctx.Env[n.Name]; ok {
			return v, nil
		}
		return nil, nil
	case TypeCast:
		return evalTypeCast(n, focus, ctx)
	case TypeIs:
		return evalTypeIs(n, focus, ctx)
	default:
		return nil, evalErrorf("unsupported node type %T", node)
	}
}

func evalPath(p Path, focus Collection, ctx *Context) (Collection, error) {
	if p.Name == "" || p.Name == "$this" {
		return focus, nil
	}
	var out Collection
	for _, v := range focus {
		if el, ok := v.(Element); ok {
			out = append(out, el.Children(p.Name)...)
		}
	}
	return out, nil
}

func evalUnary(u Unary, focus Collection, ctx *Context) (Collection, error) {
	inner, err := evalNode(u.Expr, focus, ctx)
	if err != nil {
		return nil, err
	}
	if u.Op == "-" {
		var out Collection
		for _, v := range inner {
			n, ok := v.(Number)
			if !ok {
				return nil, evalErrorf("unary - applied to non-numeric value")
			}
			neg := Number{n.Decimal.Neg(n.Decimal)}
			out = append(out, neg)
		}
		return out, nil
	}
	return inner, nil
}

func evalArrayIndex(a ArrayIndex, focus Collection, ctx *Context) (Collection, error) {
	base, err := evalNode(a.Base, focus, ctx)
	if err != nil {
		return nil, err
	}
	idxColl, err := evalNode(a.Index, focus, ctx)
	if err != nil {
		return nil, err
	}
	if len(idxColl) != 1 {
		return nil, evalErrorf("index expression must yield a single value")
	}
	n, ok := idxColl[0].(Number)
	if !ok {
		return nil, evalErrorf("index expression must be numeric")
	}
	i, err := strconv.Atoi(n.Decimal.String())
	if err != nil {
		return nil, evalErrorf("invalid index %q", n.Decimal.String())
	}
	if i < 0 || i >= len(base) {
		return nil, nil
	}
	return Collection{base[i]}, nil
}

func evalLiteral(l Literal) (Collection, error) {
	switch l.Kind {
	case LitString:
		return Collection{String(l.Text)}, nil
	case LitBool:
		return Collection{Boolean(l.Bool)}, nil
	case LitNumber:
		n, err := NewNumber(l.Text)
		if err != nil {
			return nil, evalErrorf("invalid number literal %q", l.Text)
		}
		return Collection{n}, nil
	case LitQuantity:
		n, err := NewNumber(l.Text)
		if err != nil {
			return nil, evalErrorf("invalid quantity literal %q", l.Text)
		}
		return Collection{Quantity{Value: n, Unit: l.Unit}}, nil
	case LitDateTime:
		dt, err := parseDateTimeLiteral(l.Text)
		if err != nil {
			return nil, err
		}
		return Collection{dt}, nil
	default:
		return nil, evalErrorf("unsupported literal kind")
	}
}

// parseDateTimeLiteral parses the @-prefixed forms: @YYYY, @YYYY-MM,
// @YYYY-MM-DD, @YYYY-MM-DDTHH:MM:SS(.sss)?(Z|+HH:MM)?.
func parseDateTimeLiteral(text string) (DateTime, error) {
	layouts := []struct {
		layout string
		prec   DateTimePrecision
	}{
		{"2006-01-02T15:04:05.999999999Z07:00", PrecisionSecond},
		{"2006-01-02T15:04:05Z07:00", PrecisionSecond},
		{"2006-01-02T15:04Z07:00", PrecisionMinute},
		{"2006-01-02T15:04:05", PrecisionSecond},
		{"2006-01-02T15:04", PrecisionMinute},
		{"2006-01-02", PrecisionDay},
		{"2006-01", PrecisionMonth},
		{"2006", PrecisionYear},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, text); err == nil {
			return DateTime{T: t, Precision: l.prec}, nil
		}
	}
	return DateTime{}, evalErrorf("invalid date/time literal %q", text)
}

func evalTypeCast(t TypeCast, focus Collection, ctx *Context) (Collection, error) {
	parent, err := evalNode(t.Parent, focus, ctx)
	if err != nil {
		return nil, err
	}
	var out Collection
	for _, v := range parent {
		el, ok := v.(Element)
		if !ok {
			continue
		}
		if bare := el.Children(t.Bare); len(bare) > 0 {
			out = append(out, bare...)
			continue
		}
		out = append(out, el.Children(t.Fused)...)
	}
	return out, nil
}

func evalTypeIs(t TypeIs, focus Collection, ctx *Context) (Collection, error) {
	result, err := evalNode(t.Expr, focus, ctx)
	if err != nil {
		return nil, err
	}
	var out Collection
	for _, v := range result {
		out = append(out, Boolean(valueTypeName(v) == t.TypeName))
	}
	return out, nil
}

func valueTypeName(v Value) string {
	switch x := v.(type) {
	case String:
		return "string"
	case Boolean:
		return "boolean"
	case Number:
		return "decimal"
	case DateTime:
		return "dateTime"
	case Quantity:
		return "Quantity"
	case Element:
		return x.TypeHint
	default:
		return ""
	}
}

func evalBinary(b Binary, focus Collection, ctx *Context) (Collection, error) {
	switch b.Op {
	case OpAnd, OpOr, OpXor, OpImplies:
		return evalLogical(b, focus, ctx)
	case OpIn, OpContains:
		return evalMembership(b, focus, ctx)
	case OpUnion:
		return evalUnionOp(b, focus, ctx)
	}

	lhs, err := evalNode(b.Lhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	rhs, err := evalNode(b.Rhs, focus, ctx)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case OpEq, OpNeq, OpEquiv, OpNEquiv:
		eq := collectionsEqual(lhs, rhs)
		if b.Op == OpNeq || b.Op == OpNEquiv {
			eq = !eq
		}
		return Collection{Boolean(eq)}, nil
	case OpLt, OpLte, OpGt, OpGte:
		return evalRelational(b.Op, lhs, rhs)
	case OpAdd, OpSub, OpMul, OpDiv, OpIntDiv, OpMod:
		return evalArithmetic(b.Op, lhs, rhs)
	case OpConcat:
		return Collection{String(collToString(lhs) + collToString(rhs))}, nil
	default:
		return nil, evalErrorf("unsupported operator %q", b.Op)
	}
}

func evalLogical(b Binary, focus Collection, ctx *Context) (Collection, error) {
	lhs, err := evalNode(b.Lhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	rhs, err := evalNode(b.Rhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	l, r := lhs.AsBool(), rhs.AsBool()
	switch b.Op {
	case OpAnd:
		return Collection{Boolean(l && r)}, nil
	case OpOr:
		return Collection{Boolean(l || r)}, nil
	case OpXor:
		return Collection{Boolean(l != r)}, nil
	case OpImplies:
		return Collection{Boolean(!l || r)}, nil
	default:
		return nil, evalErrorf("unreachable logical operator %q", b.Op)
	}
}

func evalMembership(b Binary, focus Collection, ctx *Context) (Collection, error) {
	lhs, err := evalNode(b.Lhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	rhs, err := evalNode(b.Rhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	needle, haystack := lhs, rhs
	if b.Op == OpContains {
		needle, haystack = rhs, lhs
	}
	if len(needle) != 1 {
		return Collection{Boolean(false)}, nil
	}
	for _, h := range haystack {
		if valuesEqual(needle[0], h) {
			return Collection{Boolean(true)}, nil
		}
	}
	return Collection{Boolean(false)}, nil
}

func evalUnionOp(b Binary, focus Collection, ctx *Context) (Collection, error) {
	lhs, err := evalNode(b.Lhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	rhs, err := evalNode(b.Rhs, focus, ctx)
	if err != nil {
		return nil, err
	}
	return unionCollections(lhs, rhs), nil
}

func unionCollections(a, b Collection) Collection {
	out := append(Collection(nil), a...)
	for _, v := range b {
		dup := false
		for _, existing := range out {
			if valuesEqual(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// collectionsEqual compares two equal-length collections pairwise. When the
// lengths differ and one side is a single value, it falls back to an
// any-match test instead: inside where(), the left operand is routinely a
// multi-valued element field (e.g. `given = 'Duck'` against a HumanName's
// given array), and the intent there is "any element matches", not
// "collections are identical".
func collectionsEqual(a, b Collection) bool {
	if len(a) == len(b) {
		for i := range a {
			if !valuesEqual(a[i], b[i]) {
				return false
			}
		}
		return true
	}
	if len(a) == 1 {
		return containsValue(b, a[0])
	}
	if len(b) == 1 {
		return containsValue(a, b[0])
	}
	return false
}

func containsValue(coll Collection, v Value) bool {
	for _, item := range coll {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

func evalRelational(op BinaryOp, lhs, rhs Collection) (Collection, error) {
	if len(lhs) != 1 && len(rhs) != 1 {
		return nil, nil
	}
	if len(lhs) == 1 && len(rhs) == 1 {
		cmp, err := compareValues(lhs[0], rhs[0])
		if err != nil {
			return nil, err
		}
		return Collection{Boolean(relationalHolds(op, cmp))}, nil
	}
	// One side is multi-valued: succeed if any element satisfies op against
	// the lone value on the other side, matching collectionsEqual's
	// any-match fallback for the equality operators.
	multi, single := lhs, rhs[0]
	if len(lhs) == 1 {
		multi, single = rhs, lhs[0]
	}
	for _, item := range multi {
		cmp, err := compareValues(item, single)
		if err != nil {
			continue
		}
		if len(lhs) == 1 {
			cmp = -cmp
		}
		if relationalHolds(op, cmp) {
			return Collection{Boolean(true)}, nil
		}
	}
	return Collection{Boolean(false)}, nil
}

func relationalHolds(op BinaryOp, cmp int) bool {
	switch op {
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	default:
		return false
	}
}

func compareValues(a, b Value) (int, error) {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return 0, evalErrorf("cannot compare Number with %T", b)
		}
		return av.Decimal.Cmp(bv.Decimal), nil
	case String:
		bv, ok := b.(String)
		if !ok {
			return 0, evalErrorf("cannot compare String with %T", b)
		}
		return strings.Compare(string(av), string(bv)), nil
	case DateTime:
		bv, ok := b.(DateTime)
		if !ok {
			return 0, evalErrorf("cannot compare DateTime with %T", b)
		}
		switch {
		case av.T.Before(bv.T):
			return -1, nil
		case av.T.After(bv.T):
			return 1, nil
		default:
			return 0, nil
		}
	case Quantity:
		bv, ok := b.(Quantity)
		if !ok || av.Unit != bv.Unit {
			return 0, evalErrorf("cannot compare quantities with differing units")
		}
		return av.Value.Decimal.Cmp(bv.Value.Decimal), nil
	default:
		return 0, evalErrorf("type %T is not ordered", a)
	}
}

func evalArithmetic(op BinaryOp, lhs, rhs Collection) (Collection, error) {
	if len(lhs) != 1 || len(rhs) != 1 {
		return nil, nil
	}
	a, aok := lhs[0].(Number)
	b, bok := rhs[0].(Number)
	if !aok || !bok {
		return nil, evalErrorf("arithmetic operator %q requires numeric operands", op)
	}
	result := new(bigDecimalOps)
	return result.apply(op, a, b)
}

func collToString(c Collection) string {
	if len(c) == 0 {
		return ""
	}
	return c[0].String()
}
