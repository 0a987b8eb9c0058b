package engine

import (
	"fmt"
)

type node struct {
	data     float64
	grad     float64
	op       Op
	operands []NodeID
	label    string
}

// Graph is an arena of scalar nodes. Nodes are addressed by NodeID and only
// ever appended, so every operand of a node has a smaller id than the node.
//
// A Graph is not safe for concurrent use.
type Graph struct {
	nodes []node
}

func NewGraph() *Graph {
	return &Graph{}
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Leaf creates a node with no operands, for inputs and parameters.
func (g *Graph) Leaf(data float64) Value {
	return g.LeafWithLabel(data, "")
}

func (g *Graph) LeafWithLabel(data float64, label string) Value {
	return g.add(node{data: data, op: Op{Kind: OpLeaf}, label: label})
}

// Node returns the handle for id, if it exists.
func (g *Graph) Node(id NodeID) (Value, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return Value{}, false
	}
	return Value{g: g, id: id}, true
}

// Mark is a watermark in a Graph's arena.
type Mark int

// Mark returns the current end of the arena.
func (g *Graph) Mark() Mark {
	return Mark(len(g.nodes))
}

// Rewind drops every node created after m. Values referring to dropped nodes
// must not be used afterwards; their ids will be reused by new nodes.
func (g *Graph) Rewind(m Mark) {
	if int(m) < 0 || int(m) > len(g.nodes) {
		panic(fmt.Errorf("rewinding to mark %d of graph with %d nodes: %w", m, len(g.nodes), ErrInvalidOperation))
	}
	clear(g.nodes[m:])
	g.nodes = g.nodes[:m]
}

func (g *Graph) add(n node) Value {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return Value{g: g, id: id}
}

// Value is a handle to a scalar node. The zero Value is not usable.
type Value struct {
	g  *Graph
	id NodeID
}

var _ Operand = Value{}

func (v Value) valueIn(g *Graph) Value {
	if v.g != g {
		panic(fmt.Errorf("node %d belongs to a different graph: %w", v.id, ErrInvalidOperation))
	}
	return v
}

func (v Value) node() *node {
	if v.g == nil {
		panic(fmt.Errorf("use of zero Value: %w", ErrInvalidOperation))
	}
	if int(v.id) >= len(v.g.nodes) {
		panic(fmt.Errorf("node %d no longer exists in graph: %w", v.id, ErrInvalidOperation))
	}
	return &v.g.nodes[v.id]
}

func (v Value) ID() NodeID {
	return v.id
}

func (v Value) Graph() *Graph {
	return v.g
}

func (v Value) Data() float64 {
	return v.node().data
}

// SetData overwrites the forward value. Intended for parameter updates on
// leaves; nodes computed from v are not recomputed.
func (v Value) SetData(data float64) {
	v.node().data = data
}

func (v Value) Grad() float64 {
	return v.node().grad
}

func (v Value) SetGrad(grad float64) {
	v.node().grad = grad
}

func (v Value) ZeroGrad() {
	v.node().grad = 0
}

func (v Value) Op() Op {
	return v.node().op
}

func (v Value) Label() string {
	return v.node().label
}

func (v Value) IsLeaf() bool {
	return len(v.node().operands) == 0
}

// Operands returns the nodes v was computed from, in slot order. A node used
// in both slots of a binary operation appears twice.
func (v Value) Operands() []Value {
	ids := v.node().operands
	operands := make([]Value, len(ids))
	for i, id := range ids {
		operands[i] = Value{g: v.g, id: id}
	}
	return operands
}

func (v Value) String() string {
	n := v.node()
	return fmt.Sprintf("Value(data=%g, grad=%g)", n.data, n.grad)
}
