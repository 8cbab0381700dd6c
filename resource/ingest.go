// Package resource implements transaction-bundle ingest: fullUrl -> logical
// id rewriting and handing each rewritten resource to indexing.Index inside
// one atomic store write, grounded on original_source/src/api/bundle.rs.
package resource

import (
	"context"
	"strings"
	"time"

	"github.com/clinicalregistry/barnreg/apperr"
	"github.com/clinicalregistry/barnreg/indexing"
	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

// refLink records one POST/PUT/PATCH entry's id reassignment, so every
// other entry's "reference"/"div" fields can be rewritten to point at the
// newly allocated id before anything is indexed.
type refLink struct {
	OldURL string
	OldID  string
	NewURL string
}

// EntryOutcome is the per-entry result of Ingest, mirroring the way
// original_source/src/api/bundle.rs's transaction-response entries carry
// either a stored resource's new id or a failure outcome independent of the
// rest of the batch.
type EntryOutcome struct {
	FullURL string
	Status  int
	ID      string
	Err     *apperr.Error
}

// Ingest processes a transaction Bundle: it allocates every POST/PUT/PATCH
// entry's new id up front, rewrites whole-token reference/div occurrences
// of the old ids across every entry, then indexes the rewritten resources in
// one store write batch per entry so two concurrent ingests never observe
// partial state. GET/HEAD and DELETE entries produce a BadRequest
// EntryOutcome, and entries that fail validation a SchemaValidation one,
// rather than aborting the whole bundle.
func Ingest(ctx context.Context, st *store.Store, sd *schema.SchemaDef, b *Bundle, now time.Time) ([]EntryOutcome, error) {
	if b.Type != BundleTransaction {
		return nil, apperr.BadRequest("only transaction bundles are supported, got type %q", b.Type)
	}

	refs, gatherErrs := gatherRefs(b.Entries, sd)

	outcomes := make([]EntryOutcome, len(b.Entries))
	for i, e := range b.Entries {
		if err := gatherErrs[i]; err != nil {
			outcomes[i] = EntryOutcome{FullURL: e.FullURL, Status: err.Kind.Status(), Err: err}
			continue
		}
		switch e.Method {
		case MethodGet, MethodHead:
			outcomes[i] = EntryOutcome{
				FullURL: e.FullURL,
				Status:  400,
				Err:     apperr.BadRequest("GET/HEAD entries are not processed by transaction ingest"),
			}
			continue
		case MethodDelete:
			outcomes[i] = EntryOutcome{
				FullURL: e.FullURL,
				Status:  400,
				Err:     apperr.BadRequest("DELETE is not yet implemented"),
			}
			continue
		}

		rewriteRefs(e.Resource, refs)

		rt, err := ResourceType(e.Resource)
		if err != nil {
			outcomes[i] = EntryOutcome{FullURL: e.FullURL, Status: err.(*apperr.Error).Kind.Status(), Err: err.(*apperr.Error)}
			continue
		}
		rd, rerr := sd.GetResourceDef(rt)
		if rerr != nil {
			ae := rerr.(*apperr.Error)
			outcomes[i] = EntryOutcome{FullURL: e.FullURL, Status: ae.Kind.Status(), Err: ae}
			continue
		}
		if verr := sd.Validate(e.Resource); verr != nil {
			ae := verr.(*apperr.Error)
			outcomes[i] = EntryOutcome{FullURL: e.FullURL, Status: ae.Kind.Status(), Err: ae}
			continue
		}

		id, _, err := indexing.Index(ctx, st, sd, rd, e.Resource, now)
		if err != nil {
			ae, _ := apperr.As(err)
			if ae == nil {
				ae = apperr.Wrap(apperr.KindStorage, err, "index failed")
			}
			outcomes[i] = EntryOutcome{FullURL: e.FullURL, Status: ae.Kind.Status(), Err: ae}
			continue
		}
		outcomes[i] = EntryOutcome{FullURL: e.FullURL, Status: 201, ID: id}
	}

	return outcomes, nil
}

// gatherRefs allocates a new id for every POST/PUT/PATCH entry and derives
// the old id it replaces from the entry's fullUrl, following
// original_source/src/api/bundle.rs's gather_refs. Per-entry errors are
// returned alongside (indexed the same as entries) rather than aborting the
// whole gather pass, so one malformed entry doesn't block the rest.
func gatherRefs(entries []Entry, sd *schema.SchemaDef) ([]refLink, []*apperr.Error) {
	var refs []refLink
	errs := make([]*apperr.Error, len(entries))

	for i, e := range entries {
		if e.Method != MethodPost && e.Method != MethodPut && e.Method != MethodPatch {
			continue
		}
		rt, err := ResourceType(e.Resource)
		if err != nil {
			errs[i] = err.(*apperr.Error)
			continue
		}
		rd, rerr := sd.GetResourceDef(rt)
		if rerr != nil {
			errs[i] = rerr.(*apperr.Error)
			continue
		}

		oldID, derr := deriveOldID(e.FullURL, rt)
		if derr != nil {
			errs[i] = derr
			continue
		}

		newID, _ := indexing.NewID(rd)
		newURL := rt + "/" + newID
		refs = append(refs, refLink{OldURL: e.FullURL, OldID: oldID, NewURL: newURL})
		e.Resource["id"] = newID
	}

	return refs, errs
}

// deriveOldID extracts the identifier a bundle entry's fullUrl refers to:
// the bare UUID for a "urn:uuid:..." fullUrl, or "ResourceType/id" for an
// absolute-URL fullUrl, matching gather_refs's two branches.
func deriveOldID(fullURL, resourceType string) (string, *apperr.Error) {
	if strings.HasPrefix(fullURL, "urn:uuid:") {
		return strings.TrimPrefix(fullURL, "urn:uuid:"), nil
	}
	needle := "/" + resourceType + "/"
	idx := strings.LastIndex(fullURL, needle)
	if idx < 0 {
		return "", apperr.BadRequest("couldn't extract ID from the fullUrl %q", fullURL)
	}
	id := fullURL[idx+len(needle):]
	if id == "" {
		return "", apperr.BadRequest("couldn't extract ID from the fullUrl %q", fullURL)
	}
	return resourceType + "/" + id, nil
}

// rewriteRefs walks resource's "reference" and "div" string fields,
// replacing whole-token occurrences of each refLink's old fullUrl or old id
// with its new "ResourceType/id", via whole-token substitution only.
func rewriteRefs(resource map[string]any, refs []refLink) {
	walkStrings(resource, "", func(key, s string) string {
		if key != "reference" && key != "div" {
			return s
		}
		for _, r := range refs {
			s = rewriteToken(s, r.OldURL, r.NewURL)
			s = rewriteToken(s, r.OldID, r.NewURL)
		}
		return s
	})
}
