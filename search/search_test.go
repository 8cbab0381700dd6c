package search

import (
	"context"
	"testing"
	"time"

	"github.com/clinicalregistry/barnreg/filter"
	"github.com/clinicalregistry/barnreg/indexing"
	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

var testSchemaJSON = []byte(`{
  "discriminator": {
    "propertyName": "resourceType",
    "mapping": {"Patient": "#/definitions/Patient"}
  },
  "definitions": {"Patient": {"type": "object"}}
}`)

var testSearchParamsJSON = []byte(`[
  {"id": "Patient-family", "code": "family", "type": "string", "base": ["Patient"], "expression": "Patient.name.family"},
  {"id": "Patient-name", "code": "name", "type": "string", "base": ["Patient"], "expression": "Patient.name"},
  {"id": "Patient-identifier", "code": "identifier", "type": "token", "base": ["Patient"], "expression": "Patient.identifier"}
]`)

func setupPatient(t *testing.T, family string) (*schema.SchemaDef, *schema.ResourceDef, *store.Store, ResourceKey) {
	t.Helper()
	sd, err := schema.Load(testSchemaJSON, testSearchParamsJSON)
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	rd, _ := sd.GetResourceDef("Patient")
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	doc := map[string]any{
		"resourceType": "Patient",
		"name":         []any{map[string]any{"family": family, "given": []any{"Peter"}}},
		"identifier":   []any{map[string]any{"system": "urn:oid:1.2.3", "value": "12345"}},
	}
	ctx := context.Background()
	_, pk, err := indexing.Index(ctx, st, sd, rd, doc, time.Now())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	return sd, rd, st, ResourceKey(pk)
}

func TestStringScannerEqAndPrefix(t *testing.T) {
	sd, rd, st, pk := setupPatient(t, "Chalmers")
	ctx := context.Background()

	cases := []struct {
		expr string
		want bool
	}{
		{`family eq "Chalmers"`, true},
		{`family eq "chalmers"`, true},
		{`family:exact eq "chalmers"`, false},
		{`family sw "Chal"`, true},
		{`family ew "mers"`, true},
		{`family co "alm"`, true},
		{`family eq "Windsor"`, false},
	}
	for _, c := range cases {
		f, err := filter.Parse(c.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.expr, err)
		}
		scanner, err := ToIndexScanner(f, rd, sd, st)
		if err != nil {
			t.Fatalf("ToIndexScanner(%q): %v", c.expr, err)
		}
		keys, err := scanner.CollectAll(ctx)
		if err != nil {
			t.Fatalf("CollectAll(%q): %v", c.expr, err)
		}
		if keys[pk] != c.want {
			t.Errorf("%q: matched=%v, want %v (keys=%v)", c.expr, keys[pk], c.want, keys)
		}
	}
}

func TestTokenScannerSystemAndCode(t *testing.T) {
	sd, rd, st, pk := setupPatient(t, "Smith")
	ctx := context.Background()

	cases := []struct {
		expr string
		want bool
	}{
		{`identifier eq "urn:oid:1.2.3|12345"`, true},
		{`identifier eq "|12345"`, true},
		{`identifier eq "12345"`, true},
		{`identifier eq "urn:oid:1.2.3|"`, true},
		{`identifier eq "urn:oid:1.2.3|99999"`, false},
	}
	for _, c := range cases {
		f, err := filter.Parse(c.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.expr, err)
		}
		scanner, err := ToIndexScanner(f, rd, sd, st)
		if err != nil {
			t.Fatalf("ToIndexScanner(%q): %v", c.expr, err)
		}
		keys, err := scanner.CollectAll(ctx)
		if err != nil {
			t.Fatalf("CollectAll(%q): %v", c.expr, err)
		}
		if keys[pk] != c.want {
			t.Errorf("%q: matched=%v, want %v", c.expr, keys[pk], c.want)
		}
	}
}

func TestAndOrNotComposition(t *testing.T) {
	sd, rd, st, pk := setupPatient(t, "Chalmers")
	ctx := context.Background()

	f, err := filter.Parse(`family eq "Chalmers" and name eq "Peter"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	scanner, err := ToIndexScanner(f, rd, sd, st)
	if err != nil {
		t.Fatalf("ToIndexScanner: %v", err)
	}
	keys, err := scanner.CollectAll(ctx)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if !keys[pk] {
		t.Fatal("expected AND of two true conditions to match")
	}

	f2, err := filter.Parse(`family eq "Windsor" or name eq "Peter"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	scanner2, _ := ToIndexScanner(f2, rd, sd, st)
	keys2, err := scanner2.CollectAll(ctx)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if !keys2[pk] {
		t.Fatal("expected OR with one true condition to match")
	}

	f3, err := filter.Parse(`not(family eq "Chalmers")`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	scanner3, _ := ToIndexScanner(f3, rd, sd, st)
	keys3, err := scanner3.CollectAll(ctx)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if keys3[pk] {
		t.Fatal("expected NOT of a true condition to exclude the resource")
	}
}

func TestExecuteReturnsStoredDocument(t *testing.T) {
	sd, rd, st, pk := setupPatient(t, "Chalmers")
	ctx := context.Background()

	f, err := filter.Parse(`family eq "Chalmers"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	results, err := Execute(ctx, Query{Filter: f, Count: 10}, rd, sd, st)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 || results[0].Key != pk {
		t.Fatalf("unexpected results: %+v", results)
	}
}
