// Package payload provides tolerant accessors over decoded webhook bodies.
//
// Webhook schemas are large and only a handful of fields are read per event,
// so the body stays an untyped tree and callers pull values out by path.
package payload

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// ErrNotObject is returned when the body decodes to something other than an object
var ErrNotObject = errors.New("payload is not a JSON object")

// Tree is a decoded JSON object
type Tree map[string]any

// Decode parses raw bytes into a Tree. The top level must be an object.
func Decode(raw []byte) (Tree, error) {
	var t Tree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotObject
	}
	return t, nil
}

// Lookup walks the path and returns the value found there
func (t Tree) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(t)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Has reports whether a non-null value exists at path
func (t Tree) Has(path ...string) bool {
	_, ok := t.Lookup(path...)
	return ok
}

// String returns the string at path, or def
func (t Tree) String(def string, path ...string) string {
	v, ok := t.Lookup(path...)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return def
}

// Int returns the integer at path, or def
func (t Tree) Int(def int64, path ...string) int64 {
	v, ok := t.Lookup(path...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return def
		}
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return def
}

// Bool returns the boolean at path, or def
func (t Tree) Bool(def bool, path ...string) bool {
	v, ok := t.Lookup(path...)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// Sub returns the object at path as a Tree
func (t Tree) Sub(path ...string) (Tree, bool) {
	v, ok := t.Lookup(path...)
	if !ok {
		return nil, false
	}
	m, ok := asMap(v)
	return Tree(m), ok
}

// List returns the array at path
func (t Tree) List(path ...string) []any {
	v, ok := t.Lookup(path...)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}

// Names collects the "name" field of every object in the array at path.
// Label and file lists in webhook bodies share this shape.
func (t Tree) Names(path ...string) []string {
	items := t.List(path...)
	names := make([]string, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		if name, ok := m["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Tree:
		return m, true
	}
	return nil, false
}
