package docstore

import (
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// cloneValue deep copies `v` and normalizes it into the value space the engine works with:
// nil, bool, string, int64, float64, M and []any. Unknown types are kept as-is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return float64(t)
		}
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case M:
		out := make(M, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []M:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

// cloneDocument is cloneValue for documents.
func cloneDocument(doc M) M {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(M)
}

// valuesEqual compares two normalized values; numbers are compared by value regardless of their Go type.
func valuesEqual(a, b any) bool {
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			return ai == bi
		}
	}
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch at := a.(type) {
	case nil:
		return b == nil
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case M:
		bm, ok := b.(M)
		if !ok || len(at) != len(bm) {
			return false
		}
		for k, av := range at {
			bv, exists := bm[k]
			if !exists || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	case []any:
		ba, ok := b.([]any)
		return ok && slices.EqualFunc(at, ba, valuesEqual)
	default:
		return reflect.DeepEqual(a, b)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// addNumbers implements `$inc` arithmetic, keeping integers integral.
func addNumbers(a, b any) (any, bool) {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		return ai + bi, true
	}
	af, aOk := asFloat(a)
	bf, bOk := asFloat(b)
	if !aOk || !bOk {
		return nil, false
	}
	return af + bf, true
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// resolve collects every value reachable through `segs`, descending implicitly into arrays the way query
// predicates do. When the final value is an array, both the array and its elements are candidates.
func resolve(value any, segs []string) []any {
	if len(segs) == 0 {
		if arr, ok := value.([]any); ok {
			return append([]any{value}, arr...)
		}
		return []any{value}
	}
	switch t := value.(type) {
	case M:
		child, exists := t[segs[0]]
		if !exists {
			return nil
		}
		return resolve(child, segs[1:])
	case []any:
		var candidates []any
		if idx, err := strconv.Atoi(segs[0]); err == nil && idx >= 0 && idx < len(t) {
			candidates = append(candidates, resolve(t[idx], segs[1:])...)
		}
		for _, elem := range t {
			if elemDoc, ok := elem.(M); ok {
				candidates = append(candidates, resolve(elemDoc, segs)...)
			}
		}
		return candidates
	}
	return nil
}

// fieldValue evaluates a field path expression; paths crossing arrays yield the array of the sub-values.
func fieldValue(value any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return value, true
	}
	switch t := value.(type) {
	case M:
		child, exists := t[segs[0]]
		if !exists {
			return nil, false
		}
		return fieldValue(child, segs[1:])
	case []any:
		out := make([]any, 0, len(t))
		for _, elem := range t {
			if elemDoc, ok := elem.(M); ok {
				if sub, found := fieldValue(elemDoc, segs); found {
					out = append(out, sub)
				}
			}
		}
		return out, true
	}
	return nil, false
}

// setPath assigns `value` at `segs`, creating intermediate documents as needed.
func setPath(doc M, segs []string, value any) {
	for _, seg := range segs[:len(segs)-1] {
		child, ok := doc[seg].(M)
		if !ok {
			child = M{}
			doc[seg] = child
		}
		doc = child
	}
	doc[segs[len(segs)-1]] = value
}
