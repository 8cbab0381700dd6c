package indexing

import (
	"context"
	"testing"
	"time"

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
  {"id": "Patient-name", "code": "name", "type": "string", "base": ["Patient"], "expression": "Patient.name"}
]`)

func TestBuildIndexRowsStringFanOut(t *testing.T) {
	sd, err := schema.Load(testSchemaJSON, testSearchParamsJSON)
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	rd, _ := sd.GetResourceDef("Patient")

	doc := map[string]any{
		"resourceType": "Patient",
		"name": []any{
			map[string]any{"use": "official", "family": "Chalmers", "given": []any{"Peter"}},
		},
	}
	var pk [24]byte
	rows, err := BuildIndexRows(sd, rd, doc, pk)
	if err != nil {
		t.Fatalf("BuildIndexRows: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected at least one index row")
	}

	foundFamily, foundGiven := false, false
	_, familyExpr, _ := sd.GetSearchParamExprForRes("Patient", "family")
	_, nameExpr, _ := sd.GetSearchParamExprForRes("Patient", "name")
	for _, r := range rows {
		if len(r.Key) < 5 {
			continue
		}
		var hash [4]byte
		copy(hash[:], r.Key[:4])
		if hash == familyExpr.Hash {
			folded, orig := DecodeStringKey(r.Key[5 : len(r.Key)-24])
			if orig == "Chalmers" && folded == "chalmers" {
				foundFamily = true
			}
		}
		if hash == nameExpr.Hash {
			_, orig := DecodeStringKey(r.Key[5 : len(r.Key)-24])
			if orig == "Peter" {
				foundGiven = true
			}
		}
	}
	if !foundFamily {
		t.Error("expected a family index row for 'Chalmers'")
	}
	if !foundGiven {
		t.Error("expected the name fan-out to include the given name 'Peter'")
	}
}

func TestIndexAssignsIdAndStoresPrimary(t *testing.T) {
	sd, err := schema.Load(testSchemaJSON, testSearchParamsJSON)
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	rd, _ := sd.GetResourceDef("Patient")

	dir := t.TempDir()
	st, err := store.Open(dir, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	doc := map[string]any{
		"resourceType": "Patient",
		"name":         []any{map[string]any{"family": "Smith"}},
	}
	ctx := context.Background()
	id, pk, err := Index(ctx, st, sd, rd, doc, time.Now())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty logical id")
	}
	got, err := st.GetPrimary(ctx, pk[:])
	if err != nil {
		t.Fatalf("GetPrimary: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected primary row to be stored")
	}
}
