package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clinicalregistry/barnreg/apperr"
	"github.com/clinicalregistry/barnreg/indexing"
	"github.com/clinicalregistry/barnreg/resource"
	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/search"
	"github.com/clinicalregistry/barnreg/store"
)

// Server is the registry's HTTP front door: a stdlib net/http.ServeMux
// dispatcher installed at the root of whatever handler embeds it, in the
// style of damedic-fhir-toolbox-go/rest/server.go — no external web
// framework, Go 1.22+ pattern routing, log/slog for structured logs.
type Server struct {
	Store  *store.Store
	Schema *schema.SchemaDef
	Log    *slog.Logger

	// DefaultHandling is used when a request carries no Prefer: handling
	// token.
	DefaultHandling string // "strict" or "lenient"
	// MaxCount and DefaultCount bound a search's returned entry count.
	MaxCount     int
	DefaultCount int
	// Now stamps meta.lastUpdated on newly ingested resources; defaults to
	// time.Now when nil, overridable for tests.
	Now func() time.Time

	muxMu sync.Mutex
	mux   *http.ServeMux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.mux == nil {
		s.registerRoutes()
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.muxMu.Lock()
	defer s.muxMu.Unlock()
	if s.mux != nil {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metadata", s.handleMetadata)
	mux.HandleFunc("POST /{$}", s.handleTransaction)
	mux.HandleFunc("POST /{type}", s.handleCreate)
	mux.HandleFunc("GET /{type}/{id}", s.handleRead)
	mux.HandleFunc("GET /{type}", s.handleSearch)
	s.mux = mux
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) defaultHandling() preferHandling {
	if preferHandling(s.DefaultHandling) == handlingStrict {
		return handlingStrict
	}
	return handlingLenient
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Log.Error("failed to encode response body", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, body := errorOutcome(err)
	s.writeJSON(w, status, body)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, capabilityStatement(s.Schema))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	resourceType := r.PathValue("type")
	_, ret := parsePrefer(r, s.defaultHandling(), returnRepresentation)

	doc, err := decodeDocument(r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rt, _ := resource.ResourceType(doc); rt != resourceType {
		s.writeError(w, apperr.BadRequest("unexpected resource: expected %s, got %s", resourceType, rt))
		return
	}

	rd, err := s.Schema.GetResourceDef(resourceType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Schema.Validate(doc); err != nil {
		s.writeError(w, err)
		return
	}

	id, _, err := indexing.Index(r.Context(), s.Store, s.Schema, rd, doc, s.now())
	if err != nil {
		s.Log.Error("failed to create resource", "resourceType", resourceType, "err", err)
		s.writeError(w, err)
		return
	}

	w.Header().Set("Location", "/"+resourceType+"/"+id)
	switch ret {
	case returnMinimal:
		w.WriteHeader(http.StatusCreated)
	case returnOutcome:
		s.writeJSON(w, http.StatusCreated, operationOutcome("information", "informational", "resource created"))
	default:
		s.writeJSON(w, http.StatusCreated, doc)
	}
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	resourceType := r.PathValue("type")
	id := r.PathValue("id")

	rd, err := s.Schema.GetResourceDef(resourceType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pk, err := indexing.PrimaryKeyFor(rd, id)
	if err != nil {
		s.writeError(w, apperr.BadRequest("malformed id %q", id))
		return
	}
	raw, err := s.Store.GetPrimary(r.Context(), pk[:])
	if err != nil {
		s.writeError(w, err)
		return
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.writeError(w, apperr.Storage(err, "stored document is not valid JSON"))
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resourceType := r.PathValue("type")
	handling, _ := parsePrefer(r, s.defaultHandling(), returnRepresentation)

	rd, err := s.Schema.GetResourceDef(resourceType)
	if err != nil {
		s.writeError(w, err)
		return
	}

	defaultCount, maxCount := s.DefaultCount, s.MaxCount
	if defaultCount <= 0 {
		defaultCount = 500
	}
	if maxCount <= 0 {
		maxCount = 500
	}

	f, count, err := buildSearchFilter(s.Schema, resourceType, r.URL.Query(), handling == handlingStrict, defaultCount, maxCount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var results []search.Result
	if f == nil {
		// no search parameters given: every resource of this type matches,
		// so scan its primary-key prefix directly instead of routing a
		// vacuous filter through the index scanners.
		results, err = searchAll(r.Context(), rd, s.Store, count)
	} else {
		results, err = search.Execute(r.Context(), search.Query{Filter: f, Count: count}, rd, s.Schema, s.Store)
	}
	if err != nil {
		s.Log.Error("search failed", "resourceType", resourceType, "err", err)
		s.writeError(w, err)
		return
	}

	bundle, err := buildSearchBundle(resourceType, results)
	if err != nil {
		s.writeError(w, apperr.Storage(err, "failed to build search bundle"))
		return
	}
	s.writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	b, err := resource.ParseBundle(doc)
	if err != nil {
		s.writeError(w, err)
		return
	}

	outcomes, err := resource.Ingest(r.Context(), s.Store, s.Schema, b, s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries := make([]any, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			entries = append(entries, map[string]any{
				"response": map[string]any{
					"status":  fmt.Sprintf("%d", o.Status),
					"outcome": operationOutcome("error", o.Err.Kind.IssueCode(), o.Err.Error()),
				},
			})
			continue
		}
		entries = append(entries, map[string]any{
			"response": map[string]any{
				"status":   fmt.Sprintf("%d", o.Status),
				"location": o.ID,
			},
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"resourceType": "Bundle",
		"type":         "transaction-response",
		"entry":        entries,
	})
}

func decodeDocument(body io.Reader) (map[string]any, error) {
	var doc map[string]any
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, apperr.BadRequest("invalid JSON body: %v", err)
	}
	return doc, nil
}

// searchAll fetches every primary row under rd's type-hash prefix, up to
// count, for a search request with no parameters.
func searchAll(ctx context.Context, rd *schema.ResourceDef, st *store.Store, count int) ([]search.Result, error) {
	var results []search.Result
	err := st.PrefixIteratorPrimary(ctx, rd.Hash[:], func(e store.Entry) (bool, error) {
		var key search.ResourceKey
		copy(key[:], e.Key)
		results = append(results, search.Result{Key: key, Doc: e.Value})
		return count <= 0 || len(results) < count, nil
	})
	return results, err
}
