package resource

import (
	"context"
	"testing"
	"time"

	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

var ingestSchemaJSON = []byte(`{
  "discriminator": {
    "propertyName": "resourceType",
    "mapping": {"Patient": "#/definitions/Patient", "Observation": "#/definitions/Observation"}
  },
  "definitions": {
    "Patient": {"type": "object"},
    "Observation": {"type": "object"}
  }
}`)

func TestParseBundleSortsByMethod(t *testing.T) {
	doc := map[string]any{
		"resourceType": "Bundle",
		"type":         "transaction",
		"entry": []any{
			map[string]any{
				"fullUrl":  "urn:uuid:obs-1",
				"request":  map[string]any{"method": "POST", "url": "Observation"},
				"resource": map[string]any{"resourceType": "Observation"},
			},
			map[string]any{
				"fullUrl":  "urn:uuid:patient-1",
				"request":  map[string]any{"method": "DELETE", "url": "Patient/1"},
				"resource": map[string]any{"resourceType": "Patient"},
			},
		},
	}
	b, err := ParseBundle(doc)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if b.Entries[0].Method != MethodDelete || b.Entries[1].Method != MethodPost {
		t.Fatalf("expected DELETE before POST, got %+v", b.Entries)
	}
}

func TestIngestRewritesReferencesAndIndexes(t *testing.T) {
	sd, err := schema.Load(ingestSchemaJSON, nil)
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	doc := map[string]any{
		"resourceType": "Bundle",
		"type":         "transaction",
		"entry": []any{
			map[string]any{
				"fullUrl":  "urn:uuid:patient-1",
				"request":  map[string]any{"method": "POST", "url": "Patient"},
				"resource": map[string]any{"resourceType": "Patient", "name": []any{map[string]any{"family": "Smith"}}},
			},
			map[string]any{
				"fullUrl": "urn:uuid:obs-1",
				"request": map[string]any{"method": "POST", "url": "Observation"},
				"resource": map[string]any{
					"resourceType": "Observation",
					"subject":      map[string]any{"reference": "urn:uuid:patient-1"},
				},
			},
		},
	}
	b, err := ParseBundle(doc)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}

	outcomes, err := Ingest(context.Background(), st, sd, b, time.Now())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Err != nil {
			t.Fatalf("unexpected outcome error for %s: %v", o.FullURL, o.Err)
		}
		if o.Status != 201 || o.ID == "" {
			t.Fatalf("unexpected outcome: %+v", o)
		}
	}

	var obsResource map[string]any
	for _, e := range b.Entries {
		if e.FullURL == "urn:uuid:obs-1" {
			obsResource = e.Resource
		}
	}
	subject, _ := obsResource["subject"].(map[string]any)
	ref, _ := subject["reference"].(string)
	patientID := ""
	for _, o := range outcomes {
		if o.FullURL == "urn:uuid:patient-1" {
			patientID = o.ID
		}
	}
	if ref != "Patient/"+patientID {
		t.Fatalf("expected rewritten reference %q, got %q", "Patient/"+patientID, ref)
	}
}

func TestIngestRejectsNonTransactionBundle(t *testing.T) {
	b := &Bundle{Type: BundleBatch}
	if _, err := Ingest(context.Background(), nil, nil, b, time.Now()); err == nil {
		t.Fatal("expected an error for a non-transaction bundle")
	}
}
