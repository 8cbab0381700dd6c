package indexing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clinicalregistry/barnreg/apperr"
	"github.com/clinicalregistry/barnreg/fhirpath"
	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

// Index assigns doc a fresh primary key, stamps its version metadata,
// evaluates every search-parameter expression registered for rd, and
// writes the primary row plus every resulting value-index row atomically.
// It is the Go counterpart of original_source/src/barn/insert.rs's
// insert_batch + index_searchparams.
func Index(ctx context.Context, st *store.Store, sd *schema.SchemaDef, rd *schema.ResourceDef, doc map[string]any, now time.Time) (id string, pk [24]byte, err error) {
	id, pk = NewID(rd)
	SetMeta(doc, id, 1, now)

	rows, err := BuildIndexRows(sd, rd, doc, pk)
	if err != nil {
		return "", pk, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", pk, apperr.BadRequest("failed to encode resource: %v", err)
	}
	rows = append([]store.Row{store.PrimaryRow(pk[:], raw)}, rows...)

	if err := st.PutBatch(ctx, rows); err != nil {
		return "", pk, err
	}
	return id, pk, nil
}

// BuildIndexRows evaluates every search-parameter expression applicable to
// rd against doc and returns the resulting value-index rows, without
// touching the store — split out so re-indexing (e.g. a future reindex
// command) can reuse it without re-allocating an id.
func BuildIndexRows(sd *schema.SchemaDef, rd *schema.ResourceDef, doc map[string]any, pk [24]byte) ([]store.Row, error) {
	var rows []store.Row
	for _, code := range sd.ParamCodesFor(rd.Name) {
		spd, expr, ok := sd.GetSearchParamExprForRes(rd.Name, code)
		if !ok || expr == nil {
			continue
		}
		values, err := fhirpath.Eval(expr.Expr, doc, nil)
		if err != nil {
			return nil, apperr.Eval("search parameter %q: %v", code, err)
		}
		paramRows, err := rowsForParam(sd, spd, expr, values, pk)
		if err != nil {
			return nil, err
		}
		rows = append(rows, paramRows...)
	}
	return rows, nil
}

func rowsForParam(sd *schema.SchemaDef, spd *schema.SearchParamDef, expr *schema.SearchParamExpr, values fhirpath.Collection, pk [24]byte) ([]store.Row, error) {
	if values.Empty() {
		return []store.Row{absentRow(expr.Hash, pk)}, nil
	}

	var rows []store.Row
	for _, v := range values {
		vrows, err := rowsForValue(sd, spd, expr, v, pk)
		if err != nil {
			return nil, err
		}
		rows = append(rows, vrows...)
	}
	if len(rows) == 0 {
		return []store.Row{absentRow(expr.Hash, pk)}, nil
	}
	return rows, nil
}

func absentRow(hash [4]byte, pk [24]byte) store.Row {
	key := make([]byte, 0, 4+1+24)
	key = append(key, hash[:]...)
	key = append(key, absentByte)
	key = append(key, pk[:]...)
	return store.IndexRow(key, pk[:])
}

func rowsForValue(sd *schema.SchemaDef, spd *schema.SearchParamDef, expr *schema.SearchParamExpr, v fhirpath.Value, pk [24]byte) ([]store.Row, error) {
	switch spd.Type {
	case schema.TypeString:
		return stringRows(expr.Hash, v, pk)
	case schema.TypeToken:
		sys, code, ok := tokenParts(v)
		if !ok {
			return nil, nil
		}
		return []store.Row{valueRow(expr.Hash, EncodeTokenKey(sys, code), pk)}, nil
	case schema.TypeNumber:
		n, ok := v.(fhirpath.Number)
		if !ok {
			return nil, nil
		}
		f, _ := n.Decimal.Float64()
		return []store.Row{valueRow(expr.Hash, EncodeNumberKey(f), pk)}, nil
	case schema.TypeDate:
		dt, ok := v.(fhirpath.DateTime)
		if !ok {
			return nil, nil
		}
		return []store.Row{valueRow(expr.Hash, EncodeDateKey(dt.Millis()), pk)}, nil
	case schema.TypeQuantity:
		q, ok := v.(fhirpath.Quantity)
		if !ok {
			return nil, nil
		}
		f, _ := q.Value.Decimal.Float64()
		return []store.Row{valueRow(expr.Hash, EncodeNumberKey(f), pk)}, nil
	case schema.TypeReference:
		targetHash, targetID, ok := referenceParts(sd, v)
		if !ok {
			return nil, nil
		}
		return []store.Row{valueRow(expr.Hash, EncodeReferenceKey(targetHash, targetID), pk)}, nil
	default:
		return nil, nil
	}
}

func valueRow(hash [4]byte, valueBytes []byte, pk [24]byte) store.Row {
	key := make([]byte, 0, 4+1+len(valueBytes)+24)
	key = append(key, hash[:]...)
	key = append(key, presentByte)
	key = append(key, valueBytes...)
	key = append(key, pk[:]...)
	return store.IndexRow(key, pk[:])
}

// stringRows implements the String-typed fan-out rule: a bare string
// produces one row; a nested object (e.g.
// HumanName, Address) produces one row per descendant string leaf,
// excluding any "period" or "use" field at any depth, since those carry no
// searchable text.
func stringRows(hash [4]byte, v fhirpath.Value, pk [24]byte) ([]store.Row, error) {
	switch x := v.(type) {
	case fhirpath.String:
		return []store.Row{valueRow(hash, EncodeStringKey(string(x)), pk)}, nil
	case fhirpath.Element:
		leaves := collectElementStrings(x.Node)
		rows := make([]store.Row, 0, len(leaves))
		seen := map[string]bool{}
		for _, s := range leaves {
			if seen[s] {
				continue
			}
			seen[s] = true
			rows = append(rows, valueRow(hash, EncodeStringKey(s), pk))
		}
		return rows, nil
	default:
		return nil, nil
	}
}

func collectElementStrings(node any) []string {
	switch v := node.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case map[string]any:
		var out []string
		for k, child := range v {
			if k == "period" || k == "use" {
				continue
			}
			out = append(out, collectElementStrings(child)...)
		}
		return out
	case []any:
		var out []string
		for _, child := range v {
			out = append(out, collectElementStrings(child)...)
		}
		return out
	default:
		return nil
	}
}

func tokenParts(v fhirpath.Value) (system, code string, ok bool) {
	el, isEl := v.(fhirpath.Element)
	if !isEl {
		if s, isStr := v.(fhirpath.String); isStr {
			return "", string(s), true
		}
		return "", "", false
	}
	obj, isObj := el.Node.(map[string]any)
	if !isObj {
		return "", "", false
	}
	sys, _ := obj["system"].(string)
	code, _ = obj["code"].(string)
	if code == "" {
		code, _ = obj["value"].(string) // Identifier-shaped tokens use "value" instead of "code"
	}
	return sys, code, code != ""
}

func referenceParts(sd *schema.SchemaDef, v fhirpath.Value) (targetHash [4]byte, targetID []byte, ok bool) {
	el, isEl := v.(fhirpath.Element)
	if !isEl {
		return targetHash, nil, false
	}
	obj, isObj := el.Node.(map[string]any)
	if !isObj {
		return targetHash, nil, false
	}
	ref, _ := obj["reference"].(string)
	if ref == "" {
		return targetHash, nil, false
	}
	typeName, id := splitReference(ref)
	if typeName == "" || id == "" {
		return targetHash, nil, false
	}
	targetDef, err := sd.GetResourceDef(typeName)
	if err != nil {
		return targetHash, nil, false
	}
	return targetDef.Hash, []byte(id), true
}

func splitReference(ref string) (typeName, id string) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' {
			return ref[:i], ref[i+1:]
		}
	}
	return "", ""
}
