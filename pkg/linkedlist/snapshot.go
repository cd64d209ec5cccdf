package linkedlist

import (
	"context"
	"fmt"
	"iter"

	"github.com/nobletooth/doclist/pkg/docstore"
)

// Snapshot is the whole list field read at once. Unlike the list operations it sees every record, so it can walk the
// list and verify its structure.
type Snapshot struct {
	Header  Header
	Records []NodeRecord // Storage order, group by group.

	index     map[nodeKey]int                 // Keyed by the group a record is stored in.
	groupOf   map[ /*dataID*/ string]NodeType // Group of the first record stored for each data id.
	malformed []Violation                     // Problems found while decoding.
}

// Direction selects how Walk traverses a list.
type Direction uint8

const (
	Forward  Direction = iota // From the head along next links.
	Backward                  // From the tail along prev links.
)

// ViolationKind names a broken list property.
type ViolationKind string

const (
	LengthMismatch   ViolationKind = "length_mismatch"   // The length differs from the number of records.
	DanglingEndpoint ViolationKind = "dangling_endpoint" // A head or tail that is missing or doesn't resolve.
	EndpointLink     ViolationKind = "endpoint_link"     // A head with a prev link or a tail with a next link.
	AsymmetricLink   ViolationKind = "asymmetric_link"   // A link whose target doesn't link back.
	BrokenChain      ViolationKind = "broken_chain"      // A walk from one end doesn't visit every record once.
	DuplicateNode    ViolationKind = "duplicate_node"    // A data id stored more than once.
	TypeMismatch     ViolationKind = "type_mismatch"     // A record whose type differs from its group.
	MalformedRecord  ViolationKind = "malformed_record"  // A record without a data id.
)

// Violation is one broken list property.
type Violation struct {
	Kind   ViolationKind `yaml:"kind"`
	Node   *NodeRef      `yaml:"node,omitempty"`
	Detail string        `yaml:"detail"`
}

func (v Violation) String() string {
	if v.Node == nil {
		return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	}
	return fmt.Sprintf("%s at %s: %s", v.Kind, v.Node, v.Detail)
}

// Snapshot reads the whole list. Returns ErrDocumentNotFound when the owning document doesn't exist.
func (l *List) Snapshot(ctx context.Context, listID string) (*Snapshot, error) {
	doc, err := l.store.FindByID(ctx, listID, docstore.M{l.layout.field: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", listID, err)
	}
	list, _ := doc[l.layout.field].(docstore.M)
	snapshot := newSnapshot(decodeHeader(list))
	for _, group := range l.layout.groups {
		elems, _ := list[string(group)].([]any)
		for _, elem := range elems {
			elemDoc, ok := elem.(docstore.M)
			if !ok {
				snapshot.malformed = append(snapshot.malformed, Violation{Kind: MalformedRecord,
					Detail: fmt.Sprintf("group %s holds a %T instead of a record", group, elem)})
				continue
			}
			snapshot.add(group, decodeRecord(elemDoc))
		}
	}
	return snapshot, nil
}

func newSnapshot(header Header) *Snapshot {
	return &Snapshot{Header: header, index: make(map[nodeKey]int), groupOf: make(map[string]NodeType)}
}

// add indexes `record` found in `group`.
func (s *Snapshot) add(group NodeType, record NodeRecord) {
	stored := NodeRef{Type: group, DataID: record.DataID, stored: record.stored}
	if record.DataID == "" {
		s.malformed = append(s.malformed, Violation{Kind: MalformedRecord,
			Detail: fmt.Sprintf("group %s holds a record without a data id", group)})
		return
	}
	if record.Type != group {
		s.malformed = append(s.malformed, Violation{Kind: TypeMismatch, Node: &stored,
			Detail: fmt.Sprintf("record says its type is %q", record.Type)})
	}
	if other, ok := s.groupOf[record.DataID]; ok {
		s.malformed = append(s.malformed, Violation{Kind: DuplicateNode, Node: &stored,
			Detail: fmt.Sprintf("data id is also stored in group %s", other)})
		return
	}
	s.groupOf[record.DataID] = group
	s.index[stored.key()] = len(s.Records)
	s.Records = append(s.Records, record)
}

// Lookup returns the record stored for `ref`.
func (s *Snapshot) Lookup(ref NodeRef) (NodeRecord, bool) {
	idx, ok := s.index[ref.key()]
	if !ok {
		return NodeRecord{}, false
	}
	return s.Records[idx], true
}

// Walk yields the records reachable from one end of the list. It stops at a dangling link and never yields more
// records than the snapshot holds, so a cyclic list still terminates.
func (s *Snapshot) Walk(direction Direction) iter.Seq[NodeRecord] {
	return func(yield func(NodeRecord) bool) {
		current := s.Header.Head
		if direction == Backward {
			current = s.Header.Tail
		}
		for range len(s.Records) {
			if current == nil {
				return
			}
			record, ok := s.Lookup(*current)
			if !ok || !yield(record) {
				return
			}
			current = record.Next
			if direction == Backward {
				current = record.Prev
			}
		}
	}
}

// link returns the `link` side of `record`.
func (nr NodeRecord) link(link side) *NodeRef {
	if link == prevSide {
		return nr.Prev
	}
	return nr.Next
}

// Check verifies the structural properties every completed list operation preserves, and returns what is broken.
func (s *Snapshot) Check() []Violation {
	violations := append([]Violation(nil), s.malformed...)
	count := int64(len(s.Records))
	if s.Header.Length != count {
		violations = append(violations, Violation{Kind: LengthMismatch,
			Detail: fmt.Sprintf("length is %d but the list holds %d records", s.Header.Length, count)})
	}

	for _, end := range []struct {
		name string
		ref  *NodeRef
		link side
	}{
		{name: "head", ref: s.Header.Head, link: prevSide},
		{name: "tail", ref: s.Header.Tail, link: nextSide},
	} {
		switch {
		case end.ref == nil && count > 0:
			violations = append(violations, Violation{Kind: DanglingEndpoint,
				Detail: fmt.Sprintf("%s is empty but the list holds %d records", end.name, count)})
		case end.ref == nil:
		default:
			record, ok := s.Lookup(*end.ref)
			if !ok {
				violations = append(violations, Violation{Kind: DanglingEndpoint, Node: end.ref,
					Detail: fmt.Sprintf("%s doesn't resolve to a record", end.name)})
			} else if record.link(end.link) != nil {
				violations = append(violations, Violation{Kind: EndpointLink, Node: end.ref,
					Detail: fmt.Sprintf("%s has a %s link to %s", end.name, end.link, record.link(end.link))})
			}
		}
	}

	for _, record := range s.Records {
		for _, link := range []side{prevSide, nextSide} {
			target := record.link(link)
			if target == nil {
				continue
			}
			self := record.Ref()
			targetRecord, ok := s.Lookup(*target)
			back := prevSide
			if link == prevSide {
				back = nextSide
			}
			if !ok || !sameNode(targetRecord.link(back), self) {
				violations = append(violations, Violation{Kind: AsymmetricLink, Node: &self,
					Detail: fmt.Sprintf("%s link to %s isn't matched by a %s link back", link, target, back)})
			}
		}
	}

	for _, walk := range []struct {
		direction Direction
		from, to  *NodeRef
		name      string
	}{
		{direction: Forward, from: s.Header.Head, to: s.Header.Tail, name: "head to tail"},
		{direction: Backward, from: s.Header.Tail, to: s.Header.Head, name: "tail to head"},
	} {
		if walk.from == nil {
			continue
		}
		var (
			visited int64
			last    NodeRecord
			seen    = make(map[nodeKey]bool, len(s.Records))
			cyclic  bool
		)
		for record := range s.Walk(walk.direction) {
			if seen[record.Ref().key()] {
				cyclic = true
				break
			}
			seen[record.Ref().key()] = true
			visited++
			last = record
		}
		if cyclic || visited != count || walk.to == nil || !sameNode(walk.to, last.Ref()) {
			violations = append(violations, Violation{Kind: BrokenChain,
				Detail: fmt.Sprintf("walking %s visits %d of %d records (cycle: %v)", walk.name, visited, count, cyclic)})
		}
	}
	return violations
}
