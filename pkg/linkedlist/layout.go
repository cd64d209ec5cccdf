package linkedlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nobletooth/doclist/pkg/docstore"
)

var (
	// ErrUnknownNodeType is returned when a node names a group the layout doesn't have.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrNilNode is returned when an operation requires a node identity but got an empty one.
	ErrNilNode = errors.New("expected a node with a non-empty data id")
)

// positionalIdentifier is the `$[ident]` identifier of every positional update issued on a node record.
const positionalIdentifier = "n"

// side selects one of the two links of a record. The head is the end without a prev link and the tail is the end
// without a next link, so a side also selects a list end.
type side uint8

const (
	prevSide side = iota
	nextSide
)

func (s side) String() string {
	if s == prevSide {
		return "prev"
	}
	return "next"
}

// groupPaths holds the precomputed update paths of one node group.
type groupPaths struct {
	array      string    // <field>.<group>
	dataID     string    // <field>.<group>.dataId, used in match predicates.
	linkType   [2]string // <field>.<group>.$[n].prevType and nextType, indexed by side.
	linkDataID [2]string // <field>.<group>.$[n].prevDataId and nextDataId, indexed by side.
}

// Layout describes where a list is stored inside its owning document: the list field and its finite set of node
// groups. Every path the list operations use is computed once here and looked up by node type afterwards.
type Layout struct {
	field  string
	groups []NodeType
	paths  map[NodeType]groupPaths

	endType    [2]string // <field>.headNodeType and tailNodeType, indexed by side.
	endDataID  [2]string // <field>.headNodeDataId and tailNodeDataId, indexed by side.
	lengthPath string    // <field>.listLength
}

// reservedNames can't be used as group names since the header shares the list field with the groups.
var reservedNames = []string{headTypeField, headDataIDField, tailTypeField, tailDataIDField, listLengthField}

func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("expected a non-empty %s name", kind)
	}
	if strings.ContainsAny(name, ".$") {
		return fmt.Errorf("%s name %q must not contain '.' or '$'", kind, name)
	}
	return nil
}

// NewLayout is the constructor for Layout.
func NewLayout(field string, groups ...NodeType) (*Layout, error) {
	if err := validateName("list field", field); err != nil {
		return nil, err
	}
	if field == docstore.IDField {
		return nil, fmt.Errorf("list field must not be %s", docstore.IDField)
	}
	if len(groups) == 0 {
		return nil, errors.New("expected at least one node group")
	}
	layout := &Layout{
		field:      field,
		groups:     make([]NodeType, 0, len(groups)),
		paths:      make(map[NodeType]groupPaths, len(groups)),
		endType:    [2]string{field + "." + headTypeField, field + "." + tailTypeField},
		endDataID:  [2]string{field + "." + headDataIDField, field + "." + tailDataIDField},
		lengthPath: field + "." + listLengthField,
	}
	for _, group := range groups {
		if err := validateName("node group", string(group)); err != nil {
			return nil, err
		}
		for _, reserved := range reservedNames {
			if string(group) == reserved {
				return nil, fmt.Errorf("node group name %q is reserved for the list header", group)
			}
		}
		if _, exists := layout.paths[group]; exists {
			return nil, fmt.Errorf("node group %q is given more than once", group)
		}
		array := field + "." + string(group)
		element := array + ".$[" + positionalIdentifier + "]."
		layout.groups = append(layout.groups, group)
		layout.paths[group] = groupPaths{
			array:      array,
			dataID:     array + "." + DataIDField,
			linkType:   [2]string{element + prevTypeField, element + nextTypeField},
			linkDataID: [2]string{element + prevDataIDField, element + nextDataIDField},
		}
	}
	return layout, nil
}

// Field returns the name of the list field.
func (l *Layout) Field() string { return l.field }

// Groups returns the node groups in the order they were given.
func (l *Layout) Groups() []NodeType { return append([]NodeType(nil), l.groups...) }

// group returns the paths of `nodeType`.
func (l *Layout) group(nodeType NodeType) (groupPaths, error) {
	paths, ok := l.paths[nodeType]
	if !ok {
		return groupPaths{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
	return paths, nil
}

// validate checks `node` can be addressed by this layout.
func (l *Layout) validate(node NodeRef) (groupPaths, error) {
	if node.DataID == "" {
		return groupPaths{}, ErrNilNode
	}
	return l.group(node.Type)
}

// EmptyHeader returns the value of the list field of a newly created owning document.
func (l *Layout) EmptyHeader() docstore.M {
	header := docstore.M{
		headTypeField:   "",
		headDataIDField: nil,
		tailTypeField:   "",
		tailDataIDField: nil,
		listLengthField: int64(0),
	}
	for _, group := range l.groups {
		header[string(group)] = []any{}
	}
	return header
}

// NewDocument returns an owning document holding an empty list.
func (l *Layout) NewDocument(listID string) docstore.M {
	return docstore.M{docstore.IDField: listID, l.field: l.EmptyHeader()}
}

// arrayFilter selects the record whose persisted data id is `dataID` for the positional identifier.
func (l *Layout) arrayFilter(dataID any) docstore.M {
	return docstore.M{positionalIdentifier + "." + DataIDField: dataID}
}

// headerProjection selects the header fields only.
func (l *Layout) headerProjection() docstore.M {
	return docstore.M{
		l.endType[prevSide]:   1,
		l.endDataID[prevSide]: 1,
		l.endType[nextSide]:   1,
		l.endDataID[nextSide]: 1,
		l.lengthPath:          1,
	}
}

// locatorPipeline resolves `node` to its record with the list length folded in: the node's group and the length
// are projected, the length is copied into every record of the group, the list field and then each record are
// promoted to the root, and the record with the wanted data id is kept.
func (l *Layout) locatorPipeline(listID string, node NodeRef, paths groupPaths) docstore.Pipeline {
	group := string(node.Type)
	return docstore.Pipeline{
		{"$match": docstore.M{docstore.IDField: listID, paths.dataID: node.storedID()}},
		{"$project": docstore.M{docstore.IDField: 0, paths.array: 1, l.lengthPath: 1}},
		{"$addFields": docstore.M{paths.array + "." + lengthField: "$" + l.lengthPath}},
		{"$replaceRoot": docstore.M{"newRoot": "$" + l.field}},
		{"$unwind": "$" + group},
		{"$replaceRoot": docstore.M{"newRoot": "$" + group}},
		{"$match": docstore.M{DataIDField: node.storedID()}},
		{"$limit": 1},
	}
}
