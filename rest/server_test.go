package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var serverSchemaJSON = []byte(`{
  "discriminator": {
    "propertyName": "resourceType",
    "mapping": {"Patient": "#/definitions/Patient"}
  },
  "definitions": {"Patient": {"type": "object"}}
}`)

var serverSearchParamsJSON = []byte(`[
  {"id": "Patient-family", "code": "family", "type": "string", "base": ["Patient"], "expression": "Patient.name.family"}
]`)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sd, err := schema.Load(serverSchemaJSON, serverSearchParamsJSON)
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &Server{
		Store:           st,
		Schema:          sd,
		Log:             discardLogger(),
		DefaultHandling: "lenient",
		MaxCount:        500,
		DefaultCount:    500,
		Now:             func() time.Time { return time.Unix(0, 0) },
	}
}

func TestCreateAndReadRoundTrip(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"resourceType":"Patient","name":[{"family":"Chalmers"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/Patient", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if loc == "" {
		t.Fatal("expected a Location header")
	}

	readReq := httptest.NewRequest(http.MethodGet, loc, nil)
	readRec := httptest.NewRecorder()
	s.ServeHTTP(readRec, readReq)
	if readRec.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d: %s", readRec.Code, readRec.Body.String())
	}

	var doc map[string]any
	if err := json.Unmarshal(readRec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["resourceType"] != "Patient" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestSearchByFamily(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"resourceType":"Patient","name":[{"family":"Chalmers"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/Patient", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	searchReq := httptest.NewRequest(http.MethodGet, "/Patient?family=chalmers", nil)
	searchRec := httptest.NewRecorder()
	s.ServeHTTP(searchRec, searchReq)
	if searchRec.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", searchRec.Code, searchRec.Body.String())
	}

	var bundle map[string]any
	if err := json.Unmarshal(searchRec.Body.Bytes(), &bundle); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bundle["type"] != "searchset" || bundle["count"].(float64) != 1 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
}

func TestSearchUnknownParamStrictVsLenient(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/Patient?unknown=1", nil)
	req.Header.Set("Prefer", "handling=strict")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 under strict handling, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/Patient?unknown=1", nil)
	req2.Header.Set("Prefer", "handling=lenient")
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 under lenient handling, got %d: %s", rec2.Code, rec2.Body.String())
	}
}

func TestMetadata(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metadata", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cs map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &cs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cs["resourceType"] != "CapabilityStatement" {
		t.Fatalf("unexpected body: %+v", cs)
	}
}

func TestTransactionBundle(t *testing.T) {
	s := newTestServer(t)

	doc := []byte(`{
		"resourceType": "Bundle",
		"type": "transaction",
		"entry": [{
			"fullUrl": "urn:uuid:patient-1",
			"request": {"method": "POST", "url": "Patient"},
			"resource": {"resourceType": "Patient", "name": [{"family": "Smith"}]}
		}]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(doc))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entries, _ := resp["entry"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", resp)
	}
}
