// Package document defines the content entity the pipeline moves around: a
// JSON object keyed by field name. The pipeline never interprets payload
// fields; only the slug carries meaning here.
package document

import "sort"

// Document is one content entity as decoded from an article file or fetched
// from the remote dataset.
type Document map[string]any

// Slug returns the slug value of d, accepting both the bare-string form found
// in hand-written article files and the structured {current: ...} form the
// dataset stores. Returns "" when no usable slug exists.
func Slug(d Document) string {
	switch v := d["slug"].(type) {
	case string:
		return v
	case map[string]any:
		if cur, ok := v["current"].(string); ok {
			return cur
		}
	}
	return ""
}

// NormalizeSlug rewrites a bare-string slug into the structured form the
// dataset expects. Already-structured slugs pass through untouched.
func NormalizeSlug(d Document) {
	if s, ok := d["slug"].(string); ok {
		d["slug"] = map[string]any{"_type": "slug", "current": s}
	}
}

// Payload returns the fields of d that belong in a mutation: everything
// except dataset-managed system fields (_id, _rev, _createdAt, _updatedAt).
// The _type field is kept since mutations need it.
func Payload(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		switch k {
		case "_id", "_rev", "_createdAt", "_updatedAt":
			continue
		}
		out[k] = v
	}
	return out
}

// FieldNames returns the payload field names of d in sorted order.
func FieldNames(d Document) []string {
	names := make([]string, 0, len(d))
	for k := range Payload(d) {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal reports deep equality of two decoded JSON values. Maps compare
// order-insensitively, lists positionally, and numbers by value so an int
// written by a test fixture equals the float64 the decoder produces.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		an, aok := asFloat(a)
		bn, bok := asFloat(b)
		if aok && bok {
			return an == bn
		}
		return a == b
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
