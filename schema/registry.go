package schema

import (
	"encoding/json"
	"strings"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/clinicalregistry/barnreg/apperr"
	"github.com/clinicalregistry/barnreg/fhirpath"
)

// SchemaDef is the compiled registry of resource definitions and search
// parameters, mirroring original_source/src/res_schema.rs's SchemaDef.
type SchemaDef struct {
	Resources map[string]*ResourceDef
	// SearchParams is keyed by CRC32(id), matching get_crc_from_id in the
	// original — a cheap-to-clone identifier for a definition that may be
	// looked up by id directly (e.g. from a capability-statement request).
	SearchParams          map[uint32]*SearchParamDef
	searchParamsByResName map[string]map[string]uint32
	compiled              *jschema.Schema
}

// rawSchemaDoc captures just the discriminator mapping of a JSON-Schema
// style resource-shape document; full structural detail is left to the
// compiled jsonschema.Schema used for validation.
type rawSchemaDoc struct {
	Discriminator struct {
		PropertyName string            `json:"propertyName"`
		Mapping      map[string]string `json:"mapping"`
	} `json:"discriminator"`
}

// rawSearchParam is the on-disk representation of one search-parameter
// definition, following the field names original_source/src/res_schema.rs's
// parse_search_param reads out of each entry.
type rawSearchParam struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Type        string   `json:"type"`
	Base        []string `json:"base"`
	Expression  string   `json:"expression"`
	Target      []string `json:"target"`
	MultipleOr  *bool    `json:"multipleOr"`
	MultipleAnd *bool    `json:"multipleAnd"`
	Components  []string `json:"components"`
}

// Load compiles schemaJSON (a JSON-Schema document with a `discriminator`
// resource-type mapping, used both for structural validation and for
// deriving each resource's key-prefix hashes) together with a list of
// search-parameter definitions, returning a ready-to-query SchemaDef.
func Load(schemaJSON, searchParamsJSON []byte) (*SchemaDef, error) {
	var doc rawSchemaDoc
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, apperr.SchemaValidation("invalid schema document: %v", err)
	}
	if len(doc.Discriminator.Mapping) == 0 {
		return nil, apperr.SchemaValidation("schema document has no discriminator.mapping")
	}

	var rawDoc any
	if err := json.Unmarshal(schemaJSON, &rawDoc); err != nil {
		return nil, apperr.SchemaValidation("invalid schema document: %v", err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", rawDoc); err != nil {
		return nil, apperr.SchemaValidation("failed to add schema resource: %v", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, apperr.SchemaValidation("failed to compile schema: %v", err)
	}

	resources := make(map[string]*ResourceDef, len(doc.Discriminator.Mapping))
	for name := range doc.Discriminator.Mapping {
		resources[name] = &ResourceDef{
			Name:           name,
			Hash:           crcHash(name),
			HistoryHash:    crcHash(name + "_history"),
			RevIncludeHash: crcHash(name + "_revinclude"),
			RefProps:       map[string][4]byte{},
		}
	}

	sd := &SchemaDef{
		Resources:             resources,
		SearchParams:          map[uint32]*SearchParamDef{},
		searchParamsByResName: map[string]map[string]uint32{},
		compiled:               compiled,
	}

	var rawParams []rawSearchParam
	if len(searchParamsJSON) > 0 {
		if err := json.Unmarshal(searchParamsJSON, &rawParams); err != nil {
			return nil, apperr.SchemaValidation("invalid search-parameters document: %v", err)
		}
	}
	for _, rp := range rawParams {
		if err := sd.addSearchParam(rp); err != nil {
			return nil, err
		}
	}

	return sd, nil
}

func (sd *SchemaDef) addSearchParam(rp rawSearchParam) error {
	ptype := SearchParamType(rp.Type)
	multipleOr := true
	if rp.MultipleOr != nil {
		multipleOr = *rp.MultipleOr
	}
	multipleAnd := true
	if rp.MultipleAnd != nil {
		multipleAnd = *rp.MultipleAnd
	}

	exprMap := make(map[string]*SearchParamExpr, len(rp.Base))
	for _, b := range rp.Base {
		exprMap[b] = nil
	}

	if rp.Expression != "" {
		if len(rp.Base) == 1 {
			resName := rp.Base[0]
			hash := crcHash(resName + "_" + rp.Code)
			exprMap[resName] = &SearchParamExpr{Hash: hash, Expr: rp.Expression}
		} else {
			subExprs, err := SplitUnionExpr(rp.Expression)
			if err != nil {
				return apperr.SchemaValidation("search parameter %q: %v", rp.Code, err)
			}
			for _, se := range subExprs {
				resName := resourceNamePrefix(se)
				if resName == "" {
					continue
				}
				if _, known := exprMap[resName]; !known {
					continue // expression references a resource outside this parameter's base
				}
				if existing := exprMap[resName]; existing != nil {
					existing.Expr = existing.Expr + " | " + se
				} else {
					hash := crcHash(resName + "_" + rp.Code)
					exprMap[resName] = &SearchParamExpr{Hash: hash, Expr: se}
				}
			}
		}
	}

	// Parse every per-base expression now, with the registry already
	// populated, so a malformed search-parameter expression fails schema
	// load instead of surfacing lazily as a per-document EvalError the
	// first time a resource is indexed.
	for resName, e := range exprMap {
		if e == nil {
			continue
		}
		if _, err := fhirpath.Parse(e.Expr); err != nil {
			return apperr.SchemaValidation("search parameter %q on %s: invalid expression %q: %v", rp.Code, resName, e.Expr, err)
		}
	}

	var targets map[string]bool
	if len(rp.Target) > 0 {
		targets = make(map[string]bool, len(rp.Target))
		for _, t := range rp.Target {
			targets[t] = true
		}
	}

	spd := &SearchParamDef{
		Code:        rp.Code,
		Type:        ptype,
		Base:        rp.Base,
		Expressions: exprMap,
		Targets:     targets,
		MultipleOr:  multipleOr,
		MultipleAnd: multipleAnd,
		Components:  rp.Components,
	}

	idHash := crcHash(rp.ID)
	id := uint32(idHash[0]) | uint32(idHash[1])<<8 | uint32(idHash[2])<<16 | uint32(idHash[3])<<24
	sd.SearchParams[id] = spd

	for resName := range exprMap {
		byRes, ok := sd.searchParamsByResName[resName]
		if !ok {
			byRes = map[string]uint32{}
			sd.searchParamsByResName[resName] = byRes
		}
		byRes[rp.Code] = id
	}

	// record reference-bearing attribute hashes for the top-level attribute
	// referenced by a reference-typed search parameter, used by
	// NewRefFwdID/NewRefRevID when resolving _include/_revinclude.
	if ptype == TypeReference {
		for resName, e := range exprMap {
			if e == nil {
				continue
			}
			rd := sd.Resources[resName]
			if rd == nil {
				continue
			}
			attr := topLevelAttr(strings.TrimPrefix(strings.TrimSpace(e.Expr), resName+"."))
			if attr == "" {
				continue
			}
			rd.RefProps[attr] = crcHash(resName + "_" + attr)
		}
	}

	return nil
}

// topLevelAttr extracts the first path segment of a (possibly prefixed)
// search-parameter expression, e.g. "subject.where(...)" -> "subject".
func topLevelAttr(expr string) string {
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == '.' || c == '(' || c == ' ' {
			return expr[:i]
		}
	}
	return expr
}

// GetSearchParamExprForRes looks up the search-parameter definition and its
// resource-specific expression for (resourceType, code), matching
// original_source/src/res_schema.rs's get_search_param_expr_for_res.
func (sd *SchemaDef) GetSearchParamExprForRes(resourceType, code string) (*SearchParamDef, *SearchParamExpr, bool) {
	byRes, ok := sd.searchParamsByResName[resourceType]
	if !ok {
		return nil, nil, false
	}
	id, ok := byRes[code]
	if !ok {
		return nil, nil, false
	}
	spd := sd.SearchParams[id]
	return spd, spd.Expressions[resourceType], true
}

// ParamCodesFor lists the search-parameter codes registered against
// resourceType, for iterating every applicable parameter at insert time.
func (sd *SchemaDef) ParamCodesFor(resourceType string) []string {
	byRes := sd.searchParamsByResName[resourceType]
	codes := make([]string, 0, len(byRes))
	for code := range byRes {
		codes = append(codes, code)
	}
	return codes
}

// GetResourceDef returns the named resource's definition.
func (sd *SchemaDef) GetResourceDef(name string) (*ResourceDef, error) {
	rd, ok := sd.Resources[name]
	if !ok {
		return nil, apperr.NotFound("unknown resourceType %q", name)
	}
	return rd, nil
}

// GetResourceDefByHash linearly scans for the resource definition whose
// primary-key prefix hash matches hash; used when decoding a raw key whose
// resourceType is not yet known, as in a NOT scanner's complement scan.
func (sd *SchemaDef) GetResourceDefByHash(hash [4]byte) (*ResourceDef, error) {
	for _, rd := range sd.Resources {
		if rd.Hash == hash {
			return rd, nil
		}
	}
	return nil, apperr.NotFound("unknown resourceType hash %v", hash)
}

// Validate runs structural JSON Schema validation on doc (4.B: "for
// validation only" — it never participates in indexing or search).
func (sd *SchemaDef) Validate(doc map[string]any) error {
	if err := sd.compiled.Validate(doc); err != nil {
		return apperr.SchemaValidation("%v", err)
	}
	return nil
}
