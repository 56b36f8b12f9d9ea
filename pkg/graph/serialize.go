package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRecord indicates a serialized record that cannot be rebuilt
// into a tree, typically a node with a missing address field.
var ErrMalformedRecord = errors.New("malformed graph record")

// Record is the serialized form of a Node. Children keep discovery order so
// that serialization is deterministic for a given tree.
type Record struct {
	Address  string   `json:"address"`
	Children []Record `json:"children"`
}

// UnmarshalJSON decodes a record, requiring both the address and children
// fields to be present. A record with either field absent is rejected with
// ErrMalformedRecord rather than silently defaulted.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Address  *string   `json:"address"`
		Children *[]Record `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Address == nil {
		return fmt.Errorf("%w: missing address field", ErrMalformedRecord)
	}
	if raw.Children == nil {
		return fmt.Errorf("%w: missing children field for %q", ErrMalformedRecord, *raw.Address)
	}
	r.Address = *raw.Address
	r.Children = *raw.Children
	return nil
}

// Serialize converts a tree into its Record form. The child order of every
// node is preserved.
func Serialize(n *Node) Record {
	rec := Record{
		Address:  n.Address,
		Children: make([]Record, 0, len(n.Children)),
	}
	for _, child := range n.Children {
		rec.Children = append(rec.Children, Serialize(child))
	}
	return rec
}

// Deserialize rebuilds a tree from its Record form. The returned nodes are
// freshly allocated; identity is not preserved across a round trip, only
// address, child count and child order at every level.
func Deserialize(rec Record) (*Node, error) {
	if rec.Address == "" {
		return nil, fmt.Errorf("%w: node without address", ErrMalformedRecord)
	}
	node := New(rec.Address)
	node.Children = make([]*Node, 0, len(rec.Children))
	for i, childRec := range rec.Children {
		child, err := Deserialize(childRec)
		if err != nil {
			return nil, fmt.Errorf("child %d of %q: %w", i, rec.Address, err)
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}
