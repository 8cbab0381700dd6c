package fhirpath

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustEval(t *testing.T, expr string, doc map[string]any) Collection {
	t.Helper()
	c, err := Eval(expr, doc, nil)
	if err != nil {
		t.Fatalf("Eval(%q): %v", expr, err)
	}
	return c
}

func TestEvalSimplePath(t *testing.T) {
	doc := map[string]any{
		"resourceType": "Patient",
		"name": []any{
			map[string]any{"family": "Chalmers", "given": []any{"Peter", "James"}},
		},
	}
	got := mustEval(t, "Patient.name.family", doc)
	want := Collection{String("Chalmers")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEvalWhere(t *testing.T) {
	doc := map[string]any{
		"resourceType": "Patient",
		"name": []any{
			map[string]any{"use": "old", "family": "Smith"},
			map[string]any{"use": "official", "family": "Jones"},
		},
	}
	got := mustEval(t, "name.where(use = 'official').family", doc)
	want := Collection{String("Jones")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEvalExistsEmpty(t *testing.T) {
	doc := map[string]any{
		"resourceType": "Patient",
		"active":       true,
	}
	if got := mustEval(t, "active.exists()", doc); !got.AsBool() {
		t.Fatalf("expected active.exists() to be true")
	}
	if got := mustEval(t, "deceasedBoolean.empty()", doc); !got.AsBool() {
		t.Fatalf("expected deceasedBoolean.empty() to be true")
	}
}

func TestEvalAsTypeCast(t *testing.T) {
	doc := map[string]any{
		"resourceType":   "Observation",
		"valueQuantity": map[string]any{"value": 72.0, "unit": "beats/min"},
	}
	got := mustEval(t, "value as Quantity", doc)
	if len(got) != 1 {
		t.Fatalf("expected one element, got %d", len(got))
	}
}

func TestEvalRelational(t *testing.T) {
	doc := map[string]any{"resourceType": "Observation", "valueInteger": 5.0}
	got := mustEval(t, "valueInteger > 3", doc)
	if !got.AsBool() {
		t.Fatalf("expected valueInteger > 3 to be true")
	}
}

func TestEvalUnion(t *testing.T) {
	doc := map[string]any{
		"resourceType": "Patient",
		"name":         []any{map[string]any{"family": "Smith"}},
		"alias":        []any{"Smitty"},
	}
	got := mustEval(t, "name.family.union(alias)", doc)
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %d: %v", len(got), got)
	}
}

func TestParseBindingPowers(t *testing.T) {
	node, err := Parse("a.b = 1 and c or d")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	top, ok := node.(Binary)
	if !ok || top.Op != OpOr {
		t.Fatalf("expected top-level 'or', got %#v", node)
	}
}

func TestResolveAndCheck(t *testing.T) {
	patient := map[string]any{"resourceType": "Patient", "id": "123", "active": true}
	doc := map[string]any{
		"resourceType": "Encounter",
		"subject":      map[string]any{"reference": "Patient/123"},
	}
	resolver := func(targetType, id string) (map[string]any, bool) {
		if targetType == "Patient" && id == "123" {
			return patient, true
		}
		return nil, false
	}
	got, err := Eval("subject.resolve_and_check('Patient').active", doc, resolver)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !got.AsBool() {
		t.Fatalf("expected resolved patient to be active")
	}
}
