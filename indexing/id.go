// Package indexing implements the insert-time evaluation pipeline: assigning
// a resource its primary key, evaluating every applicable search-parameter
// expression, and emitting the resulting value-index rows.
// Grounded on original_source/src/barn.rs (id allocation) and
// src/barn/insert.rs (insert_batch, index_searchparams, the nested-string
// fan-out rule for HumanName/Address).
package indexing

import (
	"github.com/segmentio/ksuid"

	"github.com/clinicalregistry/barnreg/schema"
)

// NewID allocates a fresh 20-byte K-sortable identifier and the 24-byte
// primary key it belongs under for resourceDef, using segmentio/ksuid as the
// Go ecosystem counterpart of the Rust `ksuid` crate
// original_source/src/barn.rs builds its ids with.
func NewID(resourceDef *schema.ResourceDef) (logicalID string, primaryKey [24]byte) {
	k := ksuid.New()
	logicalID = k.String()
	primaryKey = schema.PrefixID(resourceDef.Hash, k.Bytes())
	return logicalID, primaryKey
}

// PrimaryKeyFor builds the 24-byte primary key for an existing logical id,
// used when updating or fetching a resource whose id is already known.
func PrimaryKeyFor(resourceDef *schema.ResourceDef, logicalID string) ([24]byte, error) {
	k, err := ksuid.Parse(logicalID)
	if err != nil {
		var zero [24]byte
		return zero, err
	}
	return schema.PrefixID(resourceDef.Hash, k.Bytes()), nil
}

// IDFromKey recovers the ksuid logical id string from a 24-byte primary key,
// the inverse of PrimaryKeyFor's id encoding. Used by chained reference
// scans to turn a resolved target key back into the id string a reference
// index row stores.
func IDFromKey(pk [24]byte) (string, error) {
	k, err := ksuid.FromBytes(pk[4:])
	if err != nil {
		return "", err
	}
	return k.String(), nil
}
