package docstore

import (
	"fmt"
	"slices"
)

// projectionNode is one level of an inclusion projection; a leaf includes the whole sub-value.
type projectionNode struct {
	leaf     bool
	children map[string]*projectionNode
}

func (n *projectionNode) include(segs []string) {
	for _, seg := range segs {
		if n.leaf {
			return // A parent path already includes everything below it.
		}
		if n.children == nil {
			n.children = make(map[string]*projectionNode)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &projectionNode{}
			n.children[seg] = child
		}
		n = child
	}
	n.leaf = true
	n.children = nil
}

// projectionFlag interprets a projection value: 1/true includes, 0/false excludes.
func projectionFlag(path string, v any) (bool, error) {
	switch t := cloneValue(v).(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	}
	return false, fmt.Errorf("%w: projection value for %q must be 0/1 or a boolean, got %T", ErrUnsupported, path, v)
}

// project applies an inclusion or exclusion projection; `_id` is kept unless excluded explicitly.
func project(doc M, projection M) (M, error) {
	if len(projection) == 0 {
		return cloneDocument(doc), nil
	}
	keepID := true
	var included, excluded []string
	for path, v := range projection {
		on, err := projectionFlag(path, v)
		if err != nil {
			return nil, err
		}
		switch {
		case path == IDField:
			keepID = on
		case on:
			included = append(included, path)
		default:
			excluded = append(excluded, path)
		}
	}
	if len(included) > 0 && len(excluded) > 0 {
		return nil, fmt.Errorf("%w: cannot mix inclusion and exclusion in a projection", ErrUnsupported)
	}

	if len(included) > 0 {
		root := &projectionNode{}
		slices.Sort(included)
		for _, path := range included {
			root.include(splitPath(path))
		}
		out := projectInclude(doc, root)
		if id, ok := doc[IDField]; ok && keepID {
			out[IDField] = cloneValue(id)
		}
		return out, nil
	}

	out := cloneDocument(doc)
	if !keepID {
		delete(out, IDField)
	}
	for _, path := range excluded {
		removeFanOut(out, splitPath(path))
	}
	return out, nil
}

func projectInclude(doc M, node *projectionNode) M {
	out := make(M, len(node.children))
	for key, child := range node.children {
		value, exists := doc[key]
		if !exists {
			continue
		}
		if child.leaf {
			out[key] = cloneValue(value)
			continue
		}
		switch typed := value.(type) {
		case M:
			out[key] = projectInclude(typed, child)
		case []any:
			projected := make([]any, 0, len(typed))
			for _, elem := range typed {
				if elemDoc, ok := elem.(M); ok {
					projected = append(projected, projectInclude(elemDoc, child))
				}
			}
			out[key] = projected
		}
	}
	return out
}

func removeFanOut(container M, segs []string) {
	if len(segs) == 1 {
		delete(container, segs[0])
		return
	}
	switch child := container[segs[0]].(type) {
	case M:
		removeFanOut(child, segs[1:])
	case []any:
		for _, elem := range child {
			if elemDoc, ok := elem.(M); ok {
				removeFanOut(elemDoc, segs[1:])
			}
		}
	}
}
