package fhirpath

// Resolver looks up the target of a Reference value during
// resolve_and_check(), returning the referenced document and whether it was
// found. A Context may carry no Resolver (the indexer evaluates without
// one); resolve_and_check() then fails with an evaluation error.
type Resolver func(targetType, id string) (map[string]any, bool)

// Context carries everything an evaluation needs beyond the AST and the
// current navigation focus: environment variables (`%var`), the resource
// root (for resource-name prefix stripping and %resource), and an optional
// reference Resolver.
type Context struct {
	Root     Element
	Env      map[string]Collection
	Resolver Resolver
}

// NewContext builds an evaluation context rooted at doc.
func NewContext(doc map[string]any, resolver Resolver) *Context {
	root := RootElement(doc)
	return &Context{
		Root: root,
		Env: map[string]Collection{
			"resource":  {root},
			"context":   {root},
			"rootResource": {root},
		},
		Resolver: resolver,
	}
}

// Eval parses and evaluates expr against doc, stripping a leading
// "<resourceType>." prefix first (4.A).
func Eval(expr string, doc map[string]any, resolver Resolver) (Collection, error) {
	rt, _ := doc["resourceType"].(string)
	expr = stripResourcePrefix(expr, rt)
	node, err := Parse(expr)
	if err != nil {
		return nil, EvalError{Msg: "parse: " + err.Error()}
	}
	ctx := NewContext(doc, resolver)
	return evalNode(node, Collection{ctx.Root}, ctx)
}
