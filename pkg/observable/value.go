package observable

import (
	"math"
	"reflect"
	"sort"
	"strconv"
)

// isContainer reports whether v has observable children.
func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// sameValue reports whether a and b are the same value for notification
// purposes: containers compare by reference, leaves by ==.
func sameValue(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && sameMap(av, bv)
	case []any:
		bv, ok := b.([]any)
		return ok && sameSlice(av, bv)
	case nil:
		return b == nil
	}
	if b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return safeEqual(a, b)
	}
	return sameRef(a, b)
}

// safeEqual compares two values of the same comparable type. Interfaces
// holding non-comparable dynamic values can still panic; those compare as
// different.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func sameMap(a, b map[string]any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func sameSlice(a, b []any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

func sameRef(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	}
	return false
}

// identityOf returns a comparable identity for an array element, or nil if
// the element has none. Maps carrying id, _id or __id are identified by that
// value; other reference values by their address.
func identityOf(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for _, k := range identityKeys {
			if id, ok := x[k]; ok && id != nil && reflect.TypeOf(id).Comparable() {
				return keyIdentity{key: k, val: id}
			}
		}
		if x == nil {
			return nil
		}
		return refIdentity{typ: "map", ptr: reflect.ValueOf(x).Pointer()}
	case []any:
		if x == nil {
			return nil
		}
		return refIdentity{typ: "slice", ptr: reflect.ValueOf(x).Pointer(), n: len(x)}
	case nil:
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return refIdentity{typ: rv.Type().String(), ptr: rv.Pointer()}
	}
	return nil
}

var identityKeys = [...]string{"id", "_id", "__id"}

type keyIdentity struct {
	key string
	val any
}

type refIdentity struct {
	typ string
	ptr uintptr
	n   int
}

// parseIndex parses a canonical non-negative array index.
func parseIndex(key string) (int, bool) {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, false
	}
	return n, true
}

// childValue returns the value stored under key in v.
func childValue(v any, key string) (any, bool) {
	switch c := v.(type) {
	case map[string]any:
		cv, ok := c[key]
		return cv, ok
	case []any:
		i, ok := parseIndex(key)
		if !ok || i >= len(c) {
			return nil, false
		}
		return c[i], true
	}
	return nil, false
}

// lookupPath walks path from v, yielding nil through missing levels.
func lookupPath(v any, path []string) any {
	for _, k := range path {
		v, _ = childValue(v, k)
	}
	return v
}

// lookupExists is lookupPath that also reports whether the final key exists.
func lookupExists(v any, path []string) (any, bool) {
	ok := true
	for _, k := range path {
		v, ok = childValue(v, k)
		if !ok {
			return nil, false
		}
	}
	return v, ok
}

// setAt writes value at path beneath cur and returns the new cur. Maps are
// mutated in place; nil and primitive levels are replaced by new maps; arrays
// grow with nil padding. Nothing is written when an error is returned.
func setAt(cur any, path []string, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	key, rest := path[0], path[1:]
	switch c := cur.(type) {
	case map[string]any:
		if c == nil {
			break
		}
		nv, err := setAt(c[key], rest, value)
		if err != nil {
			return cur, err
		}
		c[key] = nv
		return c, nil
	case []any:
		i, ok := parseIndex(key)
		if !ok {
			return cur, ErrInvalidIndex
		}
		var old any
		if i < len(c) {
			old = c[i]
		}
		nv, err := setAt(old, rest, value)
		if err != nil {
			return cur, err
		}
		if i >= len(c) {
			c = append(c, make([]any, i+1-len(c))...)
		}
		c[i] = nv
		return c, nil
	}
	nv, err := setAt(nil, rest, value)
	if err != nil {
		return cur, err
	}
	return map[string]any{key: nv}, nil
}

// deleteAt removes the value at path beneath cur. Map keys are removed;
// array slots are set to nil. It reports whether anything existed.
func deleteAt(cur any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, cur != nil
	}
	key, rest := path[0], path[1:]
	switch c := cur.(type) {
	case map[string]any:
		child, ok := c[key]
		if !ok {
			return cur, false
		}
		if len(rest) == 0 {
			delete(c, key)
			return c, true
		}
		nv, existed := deleteAt(child, rest)
		if existed {
			c[key] = nv
		}
		return c, existed
	case []any:
		i, ok := parseIndex(key)
		if !ok || i >= len(c) {
			return cur, false
		}
		if len(rest) == 0 {
			c[i] = nil
			return c, true
		}
		nv, existed := deleteAt(c[i], rest)
		if existed {
			c[i] = nv
		}
		return c, existed
	}
	return cur, false
}

// shallowCopy returns a copy of a container's top level.
func shallowCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		if c == nil {
			return c
		}
		m := make(map[string]any, len(c))
		for k, x := range c {
			m[k] = x
		}
		return m
	case []any:
		if c == nil {
			return c
		}
		return append([]any(nil), c...)
	}
	return v
}

// deepCopy copies nested maps and arrays. Leaves are shared.
func deepCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		if c == nil {
			return c
		}
		m := make(map[string]any, len(c))
		for k, x := range c {
			m[k] = deepCopy(x)
		}
		return m
	case []any:
		if c == nil {
			return c
		}
		out := make([]any, len(c))
		for i, x := range c {
			out[i] = deepCopy(x)
		}
		return out
	}
	return v
}

// keysOf returns the child keys of v: sorted map keys or array indices.
func keysOf(v any) []string {
	switch c := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, len(c))
		for i := range c {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	return nil
}

// truthy applies JavaScript truthiness to v.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int8:
		return x != 0
	case int16:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint8:
		return x != 0
	case uint16:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
