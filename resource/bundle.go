package resource

import (
	"sort"

	"github.com/clinicalregistry/barnreg/apperr"
)

// Method is a bundle entry's HTTP verb. Its ordinal values are the fixed
// transaction processing order DELETE, POST, PUT, PATCH, GET, HEAD — do not
// reorder these constants, Entries are sorted by casting straight to int,
// following original_source/src/api/bundle.rs's Method enum ("the values of
// this enum are placed in the respective positions based on the transaction
// processing rules of a bundle so that entries can be sorted using Vec.sort()").
type Method int

const (
	MethodDelete Method = iota
	MethodPost
	MethodPut
	MethodPatch
	MethodGet
	MethodHead
)

func parseMethod(s string) (Method, error) {
	switch s {
	case "DELETE":
		return MethodDelete, nil
	case "POST":
		return MethodPost, nil
	case "PUT":
		return MethodPut, nil
	case "PATCH":
		return MethodPatch, nil
	case "GET":
		return MethodGet, nil
	case "HEAD":
		return MethodHead, nil
	default:
		return 0, apperr.BadRequest("unknown method name %q", s)
	}
}

// BundleType is the Bundle.type discriminator.
type BundleType string

const (
	BundleTransaction BundleType = "transaction"
	BundleBatch       BundleType = "batch"
	BundleDocument    BundleType = "document"
	BundleMessage     BundleType = "message"
	BundleHistory     BundleType = "history"
	BundleSearchSet   BundleType = "searchset"
	BundleCollection  BundleType = "collection"
)

func parseBundleType(s string) (BundleType, error) {
	switch BundleType(s) {
	case BundleTransaction, BundleBatch, BundleDocument, BundleMessage, BundleHistory, BundleSearchSet, BundleCollection:
		return BundleType(s), nil
	default:
		return "", apperr.BadRequest("unknown bundle type %q", s)
	}
}

// Entry is one bundle.entry, with its method and fullUrl pulled up from
// request.method / fullUrl for the transaction processing rules.
type Entry struct {
	Method   Method
	FullURL  string
	Resource map[string]any
}

// Bundle is a parsed request bundle, following
// original_source/src/api/bundle.rs's RequestBundle.
type Bundle struct {
	Type    BundleType
	Entries []Entry
}

// ParseBundle extracts a Bundle from a generic JSON document, validating
// just enough shape to process it (resourceType/type/entry array, and per
// entry: fullUrl, request.method, resource).
func ParseBundle(doc map[string]any) (*Bundle, error) {
	rt, _ := doc["resourceType"].(string)
	if rt != "Bundle" {
		return nil, apperr.BadRequest("expected a Bundle resource, got resourceType %q", rt)
	}
	typeStr, _ := doc["type"].(string)
	btype, err := parseBundleType(typeStr)
	if err != nil {
		return nil, err
	}

	rawEntries, _ := doc["entry"].([]any)
	entries := make([]Entry, 0, len(rawEntries))
	for i, re := range rawEntries {
		item, ok := re.(map[string]any)
		if !ok {
			return nil, apperr.BadRequest("entry %d is not an object", i)
		}
		fullURL, _ := item["fullUrl"].(string)
		req, _ := item["request"].(map[string]any)
		methodStr, _ := req["method"].(string)
		method, err := parseMethod(methodStr)
		if err != nil {
			return nil, err
		}
		res, _ := item["resource"].(map[string]any)
		entries = append(entries, Entry{Method: method, FullURL: fullURL, Resource: res})
	}

	if btype == BundleTransaction {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Method < entries[j].Method })
	}

	return &Bundle{Type: btype, Entries: entries}, nil
}
