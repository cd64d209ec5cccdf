package docstore

import (
	"fmt"
	"strings"
)

// matchDocument reports whether `doc` satisfies every predicate of `filter`.
func matchDocument(doc M, filter M) (bool, error) {
	for key, cond := range filter {
		if strings.HasPrefix(key, "$") {
			if key != "$and" {
				return false, fmt.Errorf("%w: filter operator %s", ErrUnsupported, key)
			}
			clauses, ok := cloneValue(cond).([]any)
			if !ok {
				return false, fmt.Errorf("%w: $and expects an array", ErrUnsupported)
			}
			for _, clause := range clauses {
				clauseFilter, ok := clause.(M)
				if !ok {
					return false, fmt.Errorf("%w: $and clause must be a document", ErrUnsupported)
				}
				if matched, err := matchDocument(doc, clauseFilter); err != nil || !matched {
					return false, err
				}
			}
			continue
		}
		matched, err := matchCondition(resolve(doc, splitPath(key)), cond)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func isOperatorDocument(v any) (M, bool) {
	m, ok := v.(M)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

// matchCondition evaluates one predicate against the candidate values of a path.
func matchCondition(candidates []any, cond any) (bool, error) {
	ops, isOperator := isOperatorDocument(cond)
	if !isOperator {
		return matchEquality(candidates, cond), nil
	}
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !matchEquality(candidates, arg) {
				return false, nil
			}
		case "$ne":
			if matchEquality(candidates, arg) {
				return false, nil
			}
		case "$exists":
			want, ok := arg.(bool)
			if !ok {
				return false, fmt.Errorf("%w: $exists expects a boolean", ErrUnsupported)
			}
			if (len(candidates) > 0) != want {
				return false, nil
			}
		case "$in":
			options, ok := cloneValue(arg).([]any)
			if !ok {
				return false, fmt.Errorf("%w: $in expects an array", ErrUnsupported)
			}
			found := false
			for _, option := range options {
				if matchEquality(candidates, option) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: query operator %s", ErrUnsupported, op)
		}
	}
	return true, nil
}

// matchEquality follows query semantics: a null predicate also matches a missing field.
func matchEquality(candidates []any, want any) bool {
	want = cloneValue(want)
	if want == nil && len(candidates) == 0 {
		return true
	}
	for _, candidate := range candidates {
		if valuesEqual(candidate, want) {
			return true
		}
	}
	return false
}

// elementFilters groups array filters by their identifier: {"x.dataId": 1} becomes x -> {"dataId": 1}.
type elementFilters map[ /*identifier*/ string]M

func parseArrayFilters(arrayFilters []M) (elementFilters, error) {
	filters := make(elementFilters, len(arrayFilters))
	for _, arrayFilter := range arrayFilters {
		for key, cond := range arrayFilter {
			identifier, rest, _ := strings.Cut(key, ".")
			if identifier == "" || strings.HasPrefix(identifier, "$") {
				return nil, fmt.Errorf("%w: array filter key %q", ErrUnsupported, key)
			}
			if filters[identifier] == nil {
				filters[identifier] = M{}
			}
			filters[identifier][rest] = cond
		}
	}
	return filters, nil
}

// matchElement evaluates an identifier's array filter against one array element.
func matchElement(elem any, filter M) (bool, error) {
	for key, cond := range filter {
		var candidates []any
		if key == "" {
			candidates = resolve(elem, nil)
		} else if elemDoc, ok := elem.(M); ok {
			candidates = resolve(elemDoc, splitPath(key))
		}
		matched, err := matchCondition(candidates, cond)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}
