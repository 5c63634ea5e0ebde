// Package jsonpath implements the dotted-path addressing used by record
// patches: tokens are separated by dots or brackets ("a.b.0.c", "a.b[0].c"),
// numeric tokens index arrays, and a missing path reads as nil. Values are
// the decoded-JSON shapes produced by encoding/json (map[string]any, []any,
// float64, string, bool, nil).
package jsonpath

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Get returns the value addressed by path, or nil when any step is missing.
// An empty path addresses the whole document. With deepCopy the caller gets
// a detached copy instead of a reference into the document.
func Get(data any, path string, deepCopy bool) any {
	node := data
	for _, tok := range tokens(path) {
		switch n := node.(type) {
		case map[string]any:
			node = n[tok]
		case []any:
			idx, ok := arrayIndex(tok)
			if !ok || idx >= len(n) {
				return nil
			}
			node = n[idx]
		default:
			return nil
		}
	}
	if deepCopy {
		return Copy(node)
	}
	return node
}

// Set writes value at path and returns the resulting document. Missing
// intermediate containers are created: numeric tokens make arrays (padded
// with nil up to the index), everything else makes objects. An empty path
// replaces the whole document. With deepCopy the input document is left
// untouched and a modified copy is returned; otherwise it is modified in
// place where possible.
func Set(data any, path string, value any, deepCopy bool) any {
	if path == "" {
		if deepCopy {
			return Copy(value)
		}
		return value
	}
	root := data
	if deepCopy {
		root = Copy(data)
	}
	return setTokens(root, tokens(path), value)
}

func setTokens(node any, toks []string, value any) any {
	tok := toks[0]
	if idx, ok := arrayIndex(tok); ok {
		arr, _ := node.([]any)
		for len(arr) <= idx {
			arr = append(arr, nil)
		}
		if len(toks) == 1 {
			arr[idx] = value
		} else {
			arr[idx] = setTokens(arr[idx], toks[1:], value)
		}
		return arr
	}

	obj, ok := node.(map[string]any)
	if !ok {
		obj = make(map[string]any)
	}
	if len(toks) == 1 {
		obj[tok] = value
	} else {
		obj[tok] = setTokens(obj[tok], toks[1:], value)
	}
	return obj
}

// Copy returns a detached copy of a JSON-shaped value. The copy goes through
// encoding/json, which also normalizes native Go inputs (ints, structs,
// typed slices) into decoded-JSON shapes so stored documents compare
// consistently with remote payloads. Unserializable values are returned
// unchanged.
func Copy(value any) any {
	if value == nil {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return value
	}
	return out
}

// Equal reports structural equality of two documents. Both sides are assumed
// to be in decoded-JSON shape (see Copy).
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func tokens(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.FieldsFunc(path, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
	return raw
}

func arrayIndex(tok string) (int, bool) {
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
