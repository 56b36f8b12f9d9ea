package graph

// Node is a single account in the transfer tree. Children are exclusively
// owned by their parent and kept in discovery order. The structure is a tree,
// not a DAG: the same address may legitimately appear in several branches and
// no identity unification is performed across them.
type Node struct {
	Address  string
	Children []*Node
}

// New creates a childless node for the given account address.
func New(address string) *Node {
	return &Node{Address: address}
}

// Attach appends a child to the node, preserving discovery order.
func (n *Node) Attach(child *Node) {
	n.Children = append(n.Children, child)
}

// Find returns the first node with the given address in a depth-first
// traversal, or nil when the address does not occur in the tree.
func (n *Node) Find(address string) *Node {
	if n == nil {
		return nil
	}
	if n.Address == address {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(address); found != nil {
			return found
		}
	}
	return nil
}

// NodesAtDepth returns the nodes exactly depth levels below n, in level
// order. Depth 0 returns the node itself.
func (n *Node) NodesAtDepth(depth int) []*Node {
	if n == nil {
		return nil
	}
	level := []*Node{n}
	for d := 0; d < depth && len(level) > 0; d++ {
		next := make([]*Node, 0)
		for _, node := range level {
			next = append(next, node.Children...)
		}
		level = next
	}
	return level
}

// DistinctCount returns the number of distinct addresses reachable from the
// node. An address reached via two branches counts once.
func (n *Node) DistinctCount() int {
	if n == nil {
		return 0
	}
	seen := make(map[string]struct{})
	n.walk(func(node *Node) {
		seen[node.Address] = struct{}{}
	})
	return len(seen)
}

// Size returns the structural node count, counting duplicated addresses once
// per occurrence.
func (n *Node) Size() int {
	if n == nil {
		return 0
	}
	count := 0
	n.walk(func(*Node) { count++ })
	return count
}

// walk visits the node and all descendants depth-first in child order.
func (n *Node) walk(visit func(*Node)) {
	visit(n)
	for _, child := range n.Children {
		child.walk(visit)
	}
}
