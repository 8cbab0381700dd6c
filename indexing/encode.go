package indexing

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Every value-index row's physical key has the shape:
//
//	parameter_hash(4) || present(1) || value_bytes || primary_key(24)
//
// value_bytes is type-specific, see each Encode* function below; the trailing primary
// key makes the row unique per (parameter, value, resource) triple so that
// many resources can share one indexed value. present=0 marks the single
// fallback row emitted when the parameter's expression evaluates empty for
// a resource (so ":missing"-style queries can still find it via a
// present-byte prefix scan without touching value_bytes at all).

const (
	presentByte = 0x01
	absentByte  = 0x00
)

// FoldString lowercases and NFKD-normalizes s for use as the sortable,
// case/accent-insensitive half of a String-typed index key; the original
// case is preserved separately in the row's stored value. Runs of
// whitespace collapse to a single space so two names differing only in
// internal whitespace width fold to the same key.
func FoldString(s string) string {
	folded := norm.NFKD.String(s)
	var b strings.Builder
	lastWasSpace := false
	for _, r := range folded {
		if unicode.Is(unicode.Mn, r) { // strip combining marks left by NFKD
			continue
		}
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.TrimSpace(b.String())
}

// EncodeStringKey builds the value_bytes for a String-typed row: the folded
// form followed by a NUL separator and the original-case value, so exact
// and case-insensitive scans can both operate directly on the key bytes.
func EncodeStringKey(original string) []byte {
	folded := FoldString(original)
	out := make([]byte, 0, len(folded)+1+len(original))
	out = append(out, folded...)
	out = append(out, 0x00)
	out = append(out, original...)
	return out
}

// DecodeStringKey splits a String-typed value_bytes segment back into its
// folded and original-case components.
func DecodeStringKey(b []byte) (folded, original string) {
	idx := indexByte(b, 0x00)
	if idx < 0 {
		return string(b), string(b)
	}
	return string(b[:idx]), string(b[idx+1:])
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// EncodeNumberKey encodes a Number-typed value as 8 bytes so that two
// encoded values compare numerically equal iff their source float64s do;
// scanners decode rather than relying on byte-lexicographic ordering,
// since an LE IEEE-754 layout is not order-preserving for negative values.
func EncodeNumberKey(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func DecodeNumberKey(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// EncodeDateKey encodes a Date/DateTime-typed value as milliseconds since
// the epoch, little-endian.
func EncodeDateKey(millis int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(millis))
	return b
}

func DecodeDateKey(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

// EncodeReferenceKey encodes a Reference-typed value as
// target_type_hash(4) || target_id, where target_id is the referenced
// logical id exactly as written in the reference (variable length, not
// padded to a fixed width); an optional referenced version
// number is carried in the row's stored value, not the key, since most
// reference searches don't pin a version.
func EncodeReferenceKey(targetTypeHash [4]byte, targetID []byte) []byte {
	out := make([]byte, 0, 24)
	out = append(out, targetTypeHash[:]...)
	out = append(out, targetID...)
	return out
}

// DecodeReferenceKey splits a Reference-typed value_bytes segment back into
// its target-type hash and target id.
func DecodeReferenceKey(b []byte) (targetTypeHash [4]byte, targetID []byte) {
	copy(targetTypeHash[:], b[:4])
	return targetTypeHash, b[4:]
}

// EncodeTokenKey encodes a Token-typed value as
// sys_len(4LE) || sys || code_len(4LE) || code.
func EncodeTokenKey(system, code string) []byte {
	out := make([]byte, 0, 8+len(system)+len(code))
	out = appendLenPrefixed(out, system)
	out = appendLenPrefixed(out, code)
	return out
}

func appendLenPrefixed(out []byte, s string) []byte {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
	out = append(out, lenBuf...)
	out = append(out, s...)
	return out
}

// DecodeTokenKey splits a Token-typed value_bytes segment back into system
// and code.
func DecodeTokenKey(b []byte) (system, code string, ok bool) {
	if len(b) < 4 {
		return "", "", false
	}
	sysLen := binary.LittleEndian.Uint32(b[0:4])
	if uint32(len(b)) < 4+sysLen+4 {
		return "", "", false
	}
	system = string(b[4 : 4+sysLen])
	rest := b[4+sysLen:]
	codeLen := binary.LittleEndian.Uint32(rest[0:4])
	if uint32(len(rest)) < 4+codeLen {
		return "", "", false
	}
	code = string(rest[4 : 4+codeLen])
	return system, code, true
}
