package docstore

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type mutationAction uint8

const (
	keepValue mutationAction = iota
	assignValue
	removeValue
)

// mutator computes the new value of one addressed field from its old value.
type mutator func(old any, exists bool) (value any, action mutationAction, err error)

// updater applies one update specification to one document, tracking whether anything changed.
type updater struct {
	filters  elementFilters
	modified bool
}

// applyUpdate mutates `doc` in place and reports whether it changed.
func applyUpdate(doc M, update M, arrayFilters []M) (bool, error) {
	if len(update) == 0 {
		return false, fmt.Errorf("%w: empty update", ErrUnsupported)
	}
	filters, err := parseArrayFilters(arrayFilters)
	if err != nil {
		return false, err
	}
	u := &updater{filters: filters}

	// Operators and paths are applied in a stable order so two runs of the same update behave the same.
	operators := make([]string, 0, len(update))
	for op := range update {
		operators = append(operators, op)
	}
	slices.Sort(operators)
	for _, op := range operators {
		fields, ok := update[op].(M)
		if !ok {
			return false, fmt.Errorf("%w: %s expects a document", ErrUnsupported, op)
		}
		paths := make([]string, 0, len(fields))
		for path := range fields {
			paths = append(paths, path)
		}
		slices.Sort(paths)
		for _, path := range paths {
			fn, creates, err := u.operatorMutator(op, fields[path])
			if err != nil {
				return false, err
			}
			if err := u.apply(doc, splitPath(path), fn, creates); err != nil {
				return false, fmt.Errorf("failed to apply %s on %q: %w", op, path, err)
			}
		}
	}
	return u.modified, nil
}

// operatorMutator returns the mutation of `op` and whether it creates missing intermediate documents.
func (u *updater) operatorMutator(op string, arg any) (mutator, bool, error) {
	switch op {
	case "$set":
		value := cloneValue(arg)
		return func(old any, exists bool) (any, mutationAction, error) {
			return cloneValue(value), assignValue, nil
		}, true, nil
	case "$unset":
		return func(old any, exists bool) (any, mutationAction, error) {
			return nil, removeValue, nil
		}, false, nil
	case "$inc":
		delta := cloneValue(arg)
		if _, ok := asFloat(delta); !ok {
			return nil, false, fmt.Errorf("%w: $inc expects a number, got %T", ErrUnsupported, arg)
		}
		return func(old any, exists bool) (any, mutationAction, error) {
			if !exists || old == nil {
				return delta, assignValue, nil
			}
			sum, ok := addNumbers(old, delta)
			if !ok {
				return nil, keepValue, fmt.Errorf("cannot $inc a non-numeric value of type %T", old)
			}
			return sum, assignValue, nil
		}, true, nil
	case "$push":
		value := cloneValue(arg)
		return func(old any, exists bool) (any, mutationAction, error) {
			if !exists || old == nil {
				return []any{cloneValue(value)}, assignValue, nil
			}
			arr, ok := old.([]any)
			if !ok {
				return nil, keepValue, fmt.Errorf("cannot $push to a non-array value of type %T", old)
			}
			return append(slices.Clone(arr), cloneValue(value)), assignValue, nil
		}, true, nil
	case "$pull":
		cond := cloneValue(arg)
		return func(old any, exists bool) (any, mutationAction, error) {
			if !exists || old == nil {
				return nil, keepValue, nil
			}
			arr, ok := old.([]any)
			if !ok {
				return nil, keepValue, fmt.Errorf("cannot $pull from a non-array value of type %T", old)
			}
			kept := make([]any, 0, len(arr))
			for _, elem := range arr {
				matched, err := pullMatches(elem, cond)
				if err != nil {
					return nil, keepValue, err
				}
				if !matched {
					kept = append(kept, elem)
				}
			}
			return kept, assignValue, nil
		}, false, nil
	default:
		return nil, false, fmt.Errorf("%w: update operator %s", ErrUnsupported, op)
	}
}

// pullMatches decides whether `$pull` removes `elem`: a plain document condition is a query on the element.
func pullMatches(elem any, cond any) (bool, error) {
	if condDoc, ok := cond.(M); ok {
		if _, isOperator := isOperatorDocument(condDoc); isOperator {
			return matchCondition(resolve(elem, nil), condDoc)
		}
		elemDoc, ok := elem.(M)
		if !ok {
			return false, nil
		}
		return matchDocument(elemDoc, condDoc)
	}
	return valuesEqual(elem, cond), nil
}

// mutate runs `fn` on one addressed field and records whether the document changed.
func (u *updater) mutate(old any, exists bool, fn mutator) (any, mutationAction, error) {
	value, action, err := fn(old, exists)
	if err != nil {
		return nil, keepValue, err
	}
	switch action {
	case assignValue:
		if !exists || !valuesEqual(old, value) {
			u.modified = true
		}
	case removeValue:
		if exists {
			u.modified = true
		}
	}
	return value, action, nil
}

func isPositional(seg string) bool {
	return strings.HasPrefix(seg, "$[") && strings.HasSuffix(seg, "]")
}

// apply walks `segs` from `container` and mutates the addressed field(s).
func (u *updater) apply(container M, segs []string, fn mutator, creates bool) error {
	seg := segs[0]
	if isPositional(seg) || seg == "$" {
		return fmt.Errorf("positional segment %q must follow an array", seg)
	}
	if len(segs) == 1 {
		old, exists := container[seg]
		value, action, err := u.mutate(old, exists, fn)
		if err != nil {
			return err
		}
		switch action {
		case assignValue:
			container[seg] = value
		case removeValue:
			delete(container, seg)
		}
		return nil
	}

	child, exists := container[seg]
	if !exists || child == nil {
		if isPositional(segs[1]) {
			return fmt.Errorf("the path %q must exist in the document in order to apply array updates", seg)
		}
		if !creates {
			return nil
		}
		child = M{}
		container[seg] = child
	}
	switch typed := child.(type) {
	case M:
		return u.apply(typed, segs[1:], fn, creates)
	case []any:
		return u.applyArray(typed, segs[1:], fn, creates)
	default:
		return fmt.Errorf("cannot create field %q in element of type %T", segs[1], child)
	}
}

// applyArray resolves a positional or numeric segment against `arr`, mutating matching elements in place.
func (u *updater) applyArray(arr []any, segs []string, fn mutator, creates bool) error {
	seg := segs[0]
	var indices []int
	if isPositional(seg) {
		identifier := seg[2 : len(seg)-1]
		filter, ok := u.filters[identifier]
		if !ok {
			return fmt.Errorf("no array filter found for identifier %q", identifier)
		}
		for i, elem := range arr {
			matched, err := matchElement(elem, filter)
			if err != nil {
				return err
			}
			if matched {
				indices = append(indices, i)
			}
		}
	} else {
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return fmt.Errorf("%w: array segment %q", ErrUnsupported, seg)
		}
		if idx < 0 || idx >= len(arr) {
			return nil
		}
		indices = []int{idx}
	}

	for _, i := range indices {
		if len(segs) == 1 {
			value, action, err := u.mutate(arr[i], true, fn)
			if err != nil {
				return err
			}
			switch action {
			case assignValue:
				arr[i] = value
			case removeValue:
				arr[i] = nil
			}
			continue
		}
		switch elem := arr[i].(type) {
		case M:
			if err := u.apply(elem, segs[1:], fn, creates); err != nil {
				return err
			}
		case []any:
			if err := u.applyArray(elem, segs[1:], fn, creates); err != nil {
				return err
			}
		default:
			return fmt.Errorf("cannot create field %q in element of type %T", segs[1], arr[i])
		}
	}
	return nil
}
