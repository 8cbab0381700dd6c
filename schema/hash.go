package schema

import "hash/crc32"

// crcHash computes the little-endian CRC32(IEEE) of k, matching
// original_source/src/utils.rs's get_crc_hash: a one-to-one port of the
// Rust crc32fast usage. Go's stdlib hash/crc32 is the direct equivalent of
// crc32fast with no meaningful behavioral difference for this purpose, so it
// is used as-is rather than sourcing a third-party crc32 package — the only
// standard-library choice in this package that needs a justification note
// (see DESIGN.md).
func crcHash(k string) [4]byte {
	sum := crc32.ChecksumIEEE([]byte(k))
	var out [4]byte
	out[0] = byte(sum)
	out[1] = byte(sum >> 8)
	out[2] = byte(sum >> 16)
	out[3] = byte(sum >> 24)
	return out
}

// PrefixID concatenates a 4-byte family/type prefix with a 20-byte
// K-sortable id to build the 24-byte primary key.
func PrefixID(prefix [4]byte, ksid []byte) [24]byte {
	var out [24]byte
	copy(out[:4], prefix[:])
	copy(out[4:], ksid)
	return out
}

// NewID returns the primary-key bytes for a resource instance.
func (r *ResourceDef) NewID(ksid []byte) [24]byte { return PrefixID(r.Hash, ksid) }

// NewHistoryID returns the key bytes for a version-history row.
func (r *ResourceDef) NewHistoryID(ksid []byte) [24]byte { return PrefixID(r.HistoryHash, ksid) }

// NewRefFwdID builds the _include forward-reference key:
// <fromAttrHash><fromID><toTypeHash><toID>, following
// original_source/src/res_schema.rs's new_ref_fwd_id.
func (r *ResourceDef) NewRefFwdID(attrName string, fromID []byte, to *ResourceDef, toID []byte) ([48]byte, bool) {
	var out [48]byte
	fromHash, ok := r.RefProps[attrName]
	if !ok {
		return out, false
	}
	copy(out[0:4], fromHash[:])
	copy(out[4:24], fromID)
	copy(out[24:28], to.Hash[:])
	copy(out[28:48], toID)
	return out, true
}

// NewRefRevID builds the _revinclude reverse-reference key:
// <toRevIncludeHash><toID><fromTypeHash><fromID>, following
// original_source/src/res_schema.rs's new_ref_rev_id. The "to" resource
// (the one being referenced) owns the revinclude_hash prefix.
func (to *ResourceDef) NewRefRevID(toID []byte, from *ResourceDef, fromID []byte) [48]byte {
	var out [48]byte
	copy(out[0:4], to.RevIncludeHash[:])
	copy(out[4:24], toID)
	copy(out[24:28], from.Hash[:])
	copy(out[28:48], fromID)
	return out
}
