package fhirpath

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Value is one item in a Collection. Every evaluated expression produces a
// Collection; a singleton value threads through operators following the
// original rapath::stype::SystemType enum (Element/Boolean/Number/String/
// DateTime/Quantity/Collection), renamed here to match Go idiom.
type Value interface {
	fmt.Stringer
	isValue()
}

// Collection is the universal result type of expression evaluation.
type Collection []Value

// Boolean wraps a bool result.
type Boolean bool

func (Boolean) isValue()        {}
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

// String wraps a text result.
type String string

func (String) isValue()        {}
func (s String) String() string { return string(s) }

// Number wraps an arbitrary-precision decimal (cockroachdb/apd), avoiding
// float64 rounding error in dosage and lab-value comparisons.
type Number struct{ *apd.Decimal }

func (Number) isValue()        {}
func (n Number) String() string { return n.Decimal.String() }

func NewNumber(s string) (Number, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Number{}, err
	}
	return Number{d}, nil
}

func NumberFromFloat(f float64) Number {
	d := new(apd.Decimal)
	d.SetFloat64(f)
	return Number{d}
}

// DateTimePrecision records how much of a date/time literal was supplied;
// String renders only that much. Comparisons use the full parsed instant
// and do not consult the precision.
type DateTimePrecision int

const (
	PrecisionYear DateTimePrecision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
)

// DateTime wraps a parsed date/time/instant literal.
type DateTime struct {
	T         time.Time
	Precision DateTimePrecision
}

func (DateTime) isValue() {}
func (d DateTime) String() string {
	switch d.Precision {
	case PrecisionYear:
		return d.T.Format("2006")
	case PrecisionMonth:
		return d.T.Format("2006-01")
	case PrecisionDay:
		return d.T.Format("2006-01-02")
	default:
		return d.T.Format(time.RFC3339)
	}
}

// Millis returns the value as milliseconds since epoch, the encoding used by
// Date-typed index rows.
func (d DateTime) Millis() int64 { return d.T.UnixMilli() }

// Quantity wraps a decimal magnitude with a UCUM unit, as produced by
// quantity literals (`4.5 'mg'`) and Quantity-typed document fields.
type Quantity struct {
	Value Number
	Unit  string
}

func (Quantity) isValue() {}
func (q Quantity) String() string {
	return q.Value.String() + " '" + q.Unit + "'"
}

// Element wraps one node of the generic JSON document tree (a
// map[string]any object, a []any array already flattened into items, or a
// JSON scalar) and supports path navigation into its children, following the
// navigation semantics of damedic-fhir-toolbox-go/model's Element /
// ContainedResources but generalized to untyped documents instead of
// generated per-release structs.
type Element struct {
	Node any
	// TypeHint carries the name of the field Node was reached through (or the
	// resourceType for the root element), e.g. "name" or "Patient"; `is`
	// compares against it.
	TypeHint string
}

func (Element) isValue() {}
func (e Element) String() string {
	switch v := e.Node.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Children returns the value(s) reachable by navigating the attribute named
// name from e. Arrays are flattened into the resulting Collection, matching
// FHIRPath's implicit array-to-collection semantics. Polymorphic fields
// (`value[x]`) are resolved by the caller via dual-name lookup (TypeCast),
// not here.
func (e Element) Children(name string) Collection {
	obj, ok := e.Node.(map[string]any)
	if !ok {
		return nil
	}
	child, present := obj[name]
	if !present {
		return nil
	}
	return wrapNode(child, name)
}

// wrapNode lifts a raw JSON node into a Collection, flattening arrays and
// tagging each Element with a type hint derived from its field name.
func wrapNode(node any, fieldName string) Collection {
	switch v := node.(type) {
	case nil:
		return nil
	case []any:
		var out Collection
		for _, item := range v {
			out = append(out, wrapNode(item, fieldName)...)
		}
		return out
	case map[string]any:
		return Collection{Element{Node: v, TypeHint: fieldName}}
	case string:
		return Collection{String(v)}
	case bool:
		return Collection{Boolean(v)}
	case float64:
		return Collection{NumberFromFloat(v)}
	default:
		return Collection{Element{Node: v, TypeHint: fieldName}}
	}
}

// RootElement wraps a decoded resource document as the root navigation
// context for an expression.
func RootElement(doc map[string]any) Element {
	rt, _ := doc["resourceType"].(string)
	return Element{Node: doc, TypeHint: rt}
}

// AsBool reads a collection as a boolean: empty is false, a collection
// whose first item is a Boolean takes that item's value, and any other
// non-empty collection is true.
func (c Collection) AsBool() bool {
	if len(c) == 0 {
		return false
	}
	if b, ok := c[0].(Boolean); ok {
		return bool(b)
	}
	return len(c) > 0
}

func (c Collection) Empty() bool { return len(c) == 0 }

// Sorted returns a copy of c ordered by the given less function, keeping
// equal items in their original order.
func (c Collection) Sorted(less func(a, b Value) bool) Collection {
	out := append(Collection(nil), c...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func valuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av.Decimal.Cmp(bv.Decimal) == 0
	case DateTime:
		bv, ok := b.(DateTime)
		return ok && av.T.Equal(bv.T)
	case Quantity:
		bv, ok := b.(Quantity)
		return ok && av.Unit == bv.Unit && av.Value.Decimal.Cmp(bv.Value.Decimal) == 0
	case Element:
		bv, ok := b.(Element)
		return ok && fmt.Sprintf("%v", av.Node) == fmt.Sprintf("%v", bv.Node)
	default:
		return false
	}
}

// stripResourcePrefix removes a leading "<ResourceType>." segment from a path
// expression, per 4.A's resource-name prefix stripping rule (expressions are
// authored as e.g. "Patient.name" but evaluate relative to the root element).
func stripResourcePrefix(expr, resourceType string) string {
	prefix := resourceType + "."
	if strings.HasPrefix(expr, prefix) {
		return expr[len(prefix):]
	}
	return expr
}
