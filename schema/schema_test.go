package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitUnionExpr(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{
			"Patient.telecom.where(system='phone') | Person.telecom.where(system='phone')",
			[]string{"Patient.telecom.where(system='phone')", "Person.telecom.where(system='phone')"},
		},
		{"a.c", []string{"a.c"}},
		{"a.c | a.r.s ", []string{"a.c", "a.r.s"}},
		{"c.c | (dr.c as CC)", []string{"c.c", "(dr.c as CC)"}},
		{"c.c | ((dr.c as CC) | a.b = 2)", []string{"c.c", "((dr.c as CC) | a.b = 2)"}},
		{`c.c | a.b = "has an |"`, []string{"c.c", `a.b = "has an |"`}},
		{"c.c | a.b = 'has an |'", []string{"c.c", "a.b = 'has an |'"}},
		{`c.c | a.b = 'has an \' escaped char'`, []string{"c.c", `a.b = 'has an \' escaped char'`}},
		{"c.c | (((dr.c as CC)))", []string{"c.c", "(((dr.c as CC)))"}},
		{"Account.subject.where(resolve() is Patient)", []string{"Account.subject.where(resolve() is Patient)"}},
	}
	for _, tc := range cases {
		got, err := SplitUnionExpr(tc.input)
		if err != nil {
			t.Fatalf("SplitUnionExpr(%q): %v", tc.input, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("SplitUnionExpr(%q) mismatch (-want +got):\n%s", tc.input, diff)
		}
	}
}

func TestSplitUnionExprMismatchedParens(t *testing.T) {
	if _, err := SplitUnionExpr("a.c | (b.d"); err == nil {
		t.Fatal("expected error for unbalanced parentheses")
	}
}

var minimalSchemaJSON = []byte(`{
  "discriminator": {
    "propertyName": "resourceType",
    "mapping": {
      "Patient": "#/definitions/Patient",
      "Encounter": "#/definitions/Encounter"
    }
  },
  "definitions": {
    "Patient": {"type": "object", "properties": {"resourceType": {"type": "string"}}},
    "Encounter": {"type": "object", "properties": {"resourceType": {"type": "string"}}}
  }
}`)

var minimalSearchParamsJSON = []byte(`[
  {"id": "Patient-family", "code": "family", "type": "string", "base": ["Patient"], "expression": "Patient.name.family"},
  {"id": "Encounter-subject", "code": "subject", "type": "reference", "base": ["Encounter"], "expression": "Encounter.subject", "target": ["Patient"]}
]`)

func TestLoadAndLookupSearchParam(t *testing.T) {
	sd, err := Load(minimalSchemaJSON, minimalSearchParamsJSON)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	spd, expr, ok := sd.GetSearchParamExprForRes("Patient", "family")
	if !ok {
		t.Fatal("expected to find Patient/family search parameter")
	}
	if spd.Type != TypeString {
		t.Fatalf("expected string type, got %v", spd.Type)
	}
	if expr == nil || expr.Expr != "Patient.name.family" {
		t.Fatalf("unexpected expression: %+v", expr)
	}

	rd, err := sd.GetResourceDef("Encounter")
	if err != nil {
		t.Fatalf("GetResourceDef: %v", err)
	}
	if _, ok := rd.RefProps["subject"]; !ok {
		t.Fatalf("expected subject to be recorded as a reference attribute")
	}
}

func TestValidateAcceptsKnownType(t *testing.T) {
	sd, err := Load(minimalSchemaJSON, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := sd.Validate(map[string]any{"resourceType": "Patient"}); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
}
