// A list lives inside one field of its owning document. Nodes are records embedded in named group arrays; the
// order of records inside a group means nothing, the list order is given by each record's prev/next pointers only.
// Pointers name the group of their target since nodes of different groups share one ordering. The list field also
// holds a header with the identities of the head and the tail and the number of live records.
//
// In Go an absent neighbor is a nil *NodeRef. On disk it is stored as an empty type plus a null data id.
//
// Data ids are strings in Go. Ids stored as another type (e.g. integers or object ids written by other tools) keep
// their stored value next to the string form, and every filter issued for such a node uses the stored value.

package linkedlist

import (
	"fmt"

	"github.com/nobletooth/doclist/pkg/docstore"
)

// NodeType names a node group, i.e. the array a node record lives in.
type NodeType string

// NodeRef identifies one node of a list.
type NodeRef struct {
	Type   NodeType `yaml:"type"`
	DataID string   `yaml:"dataId"`

	stored any // The persisted data id when it isn't a string.
}

// TypedRef returns a reference to a node whose data id is persisted as `dataID`, which may be of any scalar type.
func TypedRef(nodeType NodeType, dataID any) NodeRef {
	id, stored, _ := decodeDataID(dataID)
	return NodeRef{Type: nodeType, DataID: id, stored: stored}
}

func (r NodeRef) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.DataID)
}

// storedID is the data id as it is persisted, the value filters have to match.
func (r NodeRef) storedID() any {
	if r.stored != nil {
		return r.stored
	}
	return r.DataID
}

// nodeKey identifies a node regardless of how its data id is persisted.
type nodeKey struct {
	nodeType NodeType
	dataID   string
}

func (r NodeRef) key() nodeKey { return nodeKey{nodeType: r.Type, dataID: r.DataID} }

// sameNode reports whether the optional reference `ref` points at `node`.
func sameNode(ref *NodeRef, node NodeRef) bool {
	return ref != nil && ref.key() == node.key()
}

// NodeRecord is one list element as it is persisted.
type NodeRecord struct {
	DataID string   `yaml:"dataId"`
	Type   NodeType `yaml:"type"`
	Prev   *NodeRef `yaml:"prev"`
	Next   *NodeRef `yaml:"next"`

	stored any
}

// Ref returns the identity of the record.
func (nr NodeRecord) Ref() NodeRef {
	return NodeRef{Type: nr.Type, DataID: nr.DataID, stored: nr.stored}
}

// Header is the bookkeeping part of a list.
type Header struct {
	Head   *NodeRef `yaml:"head"`
	Tail   *NodeRef `yaml:"tail"`
	Length int64    `yaml:"length"`
}

// NodeView is a point-in-time read of a node together with the list length.
type NodeView struct {
	NodeRecord `yaml:",inline"`
	Length     int64 `yaml:"length"`
}

// DataIDField is the persisted field holding the data id of a node record.
const DataIDField = "dataId"

// Persisted field names of node records and of the header.
const (
	typeField       = "type"
	prevTypeField   = "prevType"
	prevDataIDField = "prevDataId"
	nextTypeField   = "nextType"
	nextDataIDField = "nextDataId"
	lengthField     = "length" // Only present on locator results.

	headTypeField   = "headNodeType"
	headDataIDField = "headNodeDataId"
	tailTypeField   = "tailNodeType"
	tailDataIDField = "tailNodeDataId"
	listLengthField = "listLength"
)

// refType and refDataID encode an optional reference into its two persisted fields.
func refType(ref *NodeRef) string {
	if ref == nil {
		return ""
	}
	return string(ref.Type)
}

func refDataID(ref *NodeRef) any {
	if ref == nil {
		return nil
	}
	return ref.storedID()
}

// decodeDataID reads a persisted data id into its string form. Non-string ids are also returned as `stored` so they
// can be written back unchanged; documents and arrays are never valid ids and only keep their string form.
func decodeDataID(v any) (id string, stored any, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", nil, false
	case string:
		return t, nil, t != ""
	case docstore.M, []any:
		return fmt.Sprint(t), nil, true
	case interface{ Hex() string }: // Object ids.
		return t.Hex(), v, true
	default:
		return fmt.Sprint(t), v, true
	}
}

// decodeRef is the inverse of refType and refDataID.
func decodeRef(typ, dataID any) *NodeRef {
	id, stored, ok := decodeDataID(dataID)
	if !ok {
		return nil
	}
	nodeType, _ := typ.(string)
	return &NodeRef{Type: NodeType(nodeType), DataID: id, stored: stored}
}

func decodeInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func encodeRecord(record NodeRecord) docstore.M {
	return docstore.M{
		DataIDField:     record.Ref().storedID(),
		typeField:       string(record.Type),
		prevTypeField:   refType(record.Prev),
		prevDataIDField: refDataID(record.Prev),
		nextTypeField:   refType(record.Next),
		nextDataIDField: refDataID(record.Next),
	}
}

func decodeRecord(doc docstore.M) NodeRecord {
	dataID, stored, _ := decodeDataID(doc[DataIDField])
	nodeType, _ := doc[typeField].(string)
	return NodeRecord{
		DataID: dataID,
		stored: stored,
		Type:   NodeType(nodeType),
		Prev:   decodeRef(doc[prevTypeField], doc[prevDataIDField]),
		Next:   decodeRef(doc[nextTypeField], doc[nextDataIDField]),
	}
}

// decodeHeader reads the header out of the list field; a missing list field is an empty list.
func decodeHeader(list docstore.M) Header {
	return Header{
		Head:   decodeRef(list[headTypeField], list[headDataIDField]),
		Tail:   decodeRef(list[tailTypeField], list[tailDataIDField]),
		Length: decodeInt(list[listLengthField]),
	}
}
