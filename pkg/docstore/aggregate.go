package docstore

import (
	"errors"
	"fmt"
	"strings"
)

var errInvalidStage = errors.New("invalid pipeline stage")

// runPipeline evaluates `pipeline` over `docs`. Every stage receives and returns owned (cloned) documents.
func runPipeline(docs []M, pipeline Pipeline) ([]M, error) {
	for stageIdx, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("%w #%d: a stage must have exactly one field, got %d",
				errInvalidStage, stageIdx, len(stage))
		}
		for name, spec := range stage {
			var err error
			switch name {
			case "$match":
				docs, err = matchStage(docs, spec)
			case "$project":
				docs, err = projectStage(docs, spec)
			case "$addFields", "$set":
				docs, err = addFieldsStage(docs, spec)
			case "$replaceRoot":
				docs, err = replaceRootStage(docs, spec)
			case "$unwind":
				docs, err = unwindStage(docs, spec)
			case "$limit":
				docs, err = limitStage(docs, spec)
			default:
				err = fmt.Errorf("%w: pipeline stage %s", ErrUnsupported, name)
			}
			if err != nil {
				return nil, fmt.Errorf("stage #%d (%s): %w", stageIdx, name, err)
			}
		}
	}
	return docs, nil
}

func matchStage(docs []M, spec any) ([]M, error) {
	filter, ok := spec.(M)
	if !ok {
		return nil, fmt.Errorf("%w: $match expects a document", errInvalidStage)
	}
	out := docs[:0]
	for _, doc := range docs {
		matched, err := matchDocument(doc, filter)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, doc)
		}
	}
	return out, nil
}

func projectStage(docs []M, spec any) ([]M, error) {
	projection, ok := spec.(M)
	if !ok {
		return nil, fmt.Errorf("%w: $project expects a document", errInvalidStage)
	}
	out := make([]M, 0, len(docs))
	for _, doc := range docs {
		projected, err := project(doc, projection)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

func addFieldsStage(docs []M, spec any) ([]M, error) {
	fields, ok := spec.(M)
	if !ok {
		return nil, fmt.Errorf("%w: $addFields expects a document", errInvalidStage)
	}
	for _, doc := range docs {
		// Expressions see the document as it was before this stage.
		values := make(M, len(fields))
		for path, expr := range fields {
			value, err := evaluate(expr, doc)
			if err != nil {
				return nil, err
			}
			values[path] = value
		}
		for path, value := range values {
			setFanOut(doc, splitPath(path), value)
		}
	}
	return docs, nil
}

// setFanOut assigns `value` at `segs`, applying it to every element when the path crosses an array of documents.
func setFanOut(container M, segs []string, value any) {
	if len(segs) == 1 {
		container[segs[0]] = cloneValue(value)
		return
	}
	switch child := container[segs[0]].(type) {
	case M:
		setFanOut(child, segs[1:], value)
	case []any:
		for _, elem := range child {
			if elemDoc, ok := elem.(M); ok {
				setFanOut(elemDoc, segs[1:], value)
			}
		}
	default:
		created := M{}
		container[segs[0]] = created
		setFanOut(created, segs[1:], value)
	}
}

func replaceRootStage(docs []M, spec any) ([]M, error) {
	specDoc, ok := spec.(M)
	if !ok {
		return nil, fmt.Errorf("%w: $replaceRoot expects a document", errInvalidStage)
	}
	expr, ok := specDoc["newRoot"]
	if !ok {
		return nil, fmt.Errorf("%w: $replaceRoot requires newRoot", errInvalidStage)
	}
	out := make([]M, 0, len(docs))
	for _, doc := range docs {
		value, err := evaluate(expr, doc)
		if err != nil {
			return nil, err
		}
		newRoot, ok := value.(M)
		if !ok {
			return nil, fmt.Errorf("'newRoot' expression must evaluate to an object, got %T", value)
		}
		out = append(out, newRoot)
	}
	return out, nil
}

func unwindStage(docs []M, spec any) ([]M, error) {
	path, ok := spec.(string)
	if specDoc, isDoc := spec.(M); isDoc {
		path, ok = specDoc["path"].(string)
	}
	if !ok || !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("%w: $unwind expects a field path", errInvalidStage)
	}
	segs := splitPath(path[1:])
	out := make([]M, 0, len(docs))
	for _, doc := range docs {
		value, exists := fieldValue(doc, segs)
		if !exists || value == nil {
			continue
		}
		arr, isArray := value.([]any)
		if !isArray { // Non-array values are treated as a single element array.
			out = append(out, doc)
			continue
		}
		for _, elem := range arr {
			unwound := cloneDocument(doc)
			setPath(unwound, segs, cloneValue(elem))
			out = append(out, unwound)
		}
	}
	return out, nil
}

func limitStage(docs []M, spec any) ([]M, error) {
	limit, ok := cloneValue(spec).(int64)
	if !ok || limit <= 0 {
		return nil, fmt.Errorf("%w: $limit expects a positive integer", errInvalidStage)
	}
	if int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// evaluate computes an aggregation expression; only field paths, literals, arrays and object literals are known.
func evaluate(expr any, root M) (any, error) {
	switch t := expr.(type) {
	case string:
		if strings.HasPrefix(t, "$$") {
			return nil, fmt.Errorf("%w: variable %s", ErrUnsupported, t)
		}
		if strings.HasPrefix(t, "$") {
			value, _ := fieldValue(root, splitPath(t[1:]))
			return cloneValue(value), nil
		}
		return t, nil
	case M:
		if _, isOperator := isOperatorDocument(t); isOperator {
			return nil, fmt.Errorf("%w: expression operator in %v", ErrUnsupported, t)
		}
		out := make(M, len(t))
		for key, sub := range t {
			value, err := evaluate(sub, root)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			value, err := evaluate(sub, root)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	default:
		return cloneValue(expr), nil
	}
}
