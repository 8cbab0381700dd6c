package fhirpath

import "strings"

// evalFunction dispatches the small function set 4.A requires:
// where, exists, empty, resolve_and_check, union, count, not.
func evalFunction(f Function, focus Collection, ctx *Context) (Collection, error) {
	switch f.Name {
	case "where":
		return fnWhere(f, focus, ctx)
	case "exists":
		return fnExists(f, focus, ctx)
	case "empty":
		if len(f.Args) != 0 {
			return nil, evalErrorf("empty() takes no arguments")
		}
		return Collection{Boolean(focus.Empty())}, nil
	case "not":
		if len(f.Args) != 0 {
			return nil, evalErrorf("not() takes no arguments")
		}
		return Collection{Boolean(!focus.AsBool())}, nil
	case "count":
		return Collection{NumberFromFloat(float64(len(focus)))}, nil
	case "first":
		if len(focus) == 0 {
			return nil, nil
		}
		return Collection{focus[0]}, nil
	case "union":
		return fnUnion(f, focus, ctx)
	case "resolve_and_check", "resolve":
		return fnResolveAndCheck(f, focus, ctx)
	default:
		return nil, evalErrorf("unknown function %q", f.Name)
	}
}

// fnWhere filters focus to the items for which criteria evaluates truthy
// with that item as the sole navigation context (FHIRPath's implicit
// $this binding inside a where clause).
func fnWhere(f Function, focus Collection, ctx *Context) (Collection, error) {
	if len(f.Args) != 1 {
		return nil, evalErrorf("where() takes exactly one argument")
	}
	var out Collection
	for _, item := range focus {
		result, err := evalNode(f.Args[0], Collection{item}, ctx)
		if err != nil {
			return nil, err
		}
		if result.AsBool() {
			out = append(out, item)
		}
	}
	return out, nil
}

// fnExists reports whether focus (optionally filtered by a where-style
// criteria argument) is non-empty.
func fnExists(f Function, focus Collection, ctx *Context) (Collection, error) {
	if len(f.Args) == 0 {
		return Collection{Boolean(!focus.Empty())}, nil
	}
	if len(f.Args) != 1 {
		return nil, evalErrorf("exists() takes zero or one arguments")
	}
	filtered, err := fnWhere(f, focus, ctx)
	if err != nil {
		return nil, err
	}
	return Collection{Boolean(!filtered.Empty())}, nil
}

// fnUnion evaluates its argument against the resource root (matching the
// "sibling attribute" usage search-parameter expressions rely on, e.g.
// `name.union(alias)` meaning "also look at the resource's alias field")
// and merges the two collections without duplicates.
func fnUnion(f Function, focus Collection, ctx *Context) (Collection, error) {
	if len(f.Args) != 1 {
		return nil, evalErrorf("union() takes exactly one argument")
	}
	other, err := evalNode(f.Args[0], Collection{ctx.Root}, ctx)
	if err != nil {
		return nil, err
	}
	return unionCollections(focus, other), nil
}

// fnResolveAndCheck follows a Reference-typed element and fetches the
// referenced document through ctx.Resolver, optionally constrained to a
// target resource type argument (e.g. resolve_and_check('Patient')), so that
// the rest of the expression is evaluated against the *target* resource.
// Without a Resolver it returns an evaluation error.
func fnResolveAndCheck(f Function, focus Collection, ctx *Context) (Collection, error) {
	if ctx.Resolver == nil {
		return nil, evalErrorf("resolve_and_check() requires a reference resolver")
	}
	var wantType string
	if len(f.Args) == 1 {
		lit, ok := f.Args[0].(Literal)
		if !ok || lit.Kind != LitString {
			return nil, evalErrorf("resolve_and_check() argument must be a string literal")
		}
		wantType = lit.Text
	} else if len(f.Args) > 1 {
		return nil, evalErrorf("resolve_and_check() takes zero or one arguments")
	}

	var out Collection
	for _, v := range focus {
		el, ok := v.(Element)
		if !ok {
			continue
		}
		refStr, targetType, ok := referenceTarget(el)
		if !ok {
			continue
		}
		if wantType != "" && targetType != "" && targetType != wantType {
			continue
		}
		if wantType != "" {
			targetType = wantType
		}
		id := refStr
		if idx := strings.LastIndex(refStr, "/"); idx >= 0 {
			id = refStr[idx+1:]
		}
		doc, found := ctx.Resolver(targetType, id)
		if !found {
			continue
		}
		out = append(out, RootElement(doc))
	}
	return out, nil
}

// referenceTarget extracts the "Type/id" pair out of a Reference-shaped
// Element (a `{"reference": "Patient/123"}` node).
func referenceTarget(el Element) (refStr, targetType string, ok bool) {
	obj, isObj := el.Node.(map[string]any)
	if !isObj {
		return "", "", false
	}
	ref, _ := obj["reference"].(string)
	if ref == "" {
		return "", "", false
	}
	if idx := strings.Index(ref, "/"); idx >= 0 {
		targetType = ref[:idx]
	}
	return ref, targetType, true
}
