// Package schema holds the resource/search-parameter registry: per-resource
// CRC32 key-prefix hashes, search-parameter expression storage keyed by
// resource type, and JSON Schema structural validation. Grounded on
// original_source/src/res_schema.rs (SchemaDef/ResourceDef/SearchParamDef).
package schema

// SearchParamType enumerates the value encodings a search parameter's
// results can produce.
type SearchParamType string

const (
	TypeString    SearchParamType = "string"
	TypeToken     SearchParamType = "token"
	TypeReference SearchParamType = "reference"
	TypeNumber    SearchParamType = "number"
	TypeDate      SearchParamType = "date"
	TypeQuantity  SearchParamType = "quantity"
	TypeComposite SearchParamType = "composite"
)

// ResourceDef describes one resource type's key-prefix hashes and the
// reference-bearing attributes that participate in _include/_revinclude.
// Mirrors original_source/src/res_schema.rs's ResourceDef.
type ResourceDef struct {
	Name           string
	Hash           [4]byte // CRC32(name), little-endian — primary-key prefix
	HistoryHash    [4]byte // CRC32(name+"_history")
	RevIncludeHash [4]byte // CRC32(name+"_revinclude")
	RefProps       map[string][4]byte
}

// SearchParamExpr is one resource-type-specific slice of a search
// parameter's expression, with its own CRC32(resourceType+"_"+code) hash —
// this is the hash stored in every value-index row for that parameter.
type SearchParamExpr struct {
	Hash [4]byte
	Expr string
}

// SearchParamDef is a single named search parameter, potentially spanning
// several base resource types with distinct per-resource expressions.
type SearchParamDef struct {
	Code        string
	Type        SearchParamType
	Base        []string
	Expressions map[string]*SearchParamExpr // resourceType -> expr (nil if none applies)
	Targets     map[string]bool             // allowed reference target types, if constrained
	MultipleOr  bool
	MultipleAnd bool
	Components  []string // composite search-parameter component codes
}

// PropertyDef records a resource attribute's shape: whether it is a
// collection, its declared type and its nested properties. Load does not
// populate it and the indexer does not read it.
type PropertyDef struct {
	Name       string
	RefType    string
	Primitive  bool
	Collection bool
	Props      map[string]*PropertyDef
}
