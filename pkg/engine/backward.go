package engine

import "fmt"

// Backward computes d(v)/d(n) for every node n reachable from v and adds it
// to n's gradient. v's own gradient is set to 1.
//
// Gradients accumulate: callers must zero the gradients of any node reused
// from an earlier pass (see ZeroGradReachable) unless accumulation across
// passes is intended.
func (v Value) Backward() {
	v.node()
	v.g.backward(v.g.TopologicalOrder(v.id), v.id)
}

// BackwardStrict is Backward, but first fails with ErrStaleGradient if any
// node reachable from v has a non-zero gradient.
func (v Value) BackwardStrict() error {
	v.node()
	order := v.g.TopologicalOrder(v.id)
	for _, id := range order {
		if grad := v.g.nodes[id].grad; grad != 0 {
			return fmt.Errorf("node %d has gradient %g before backward from node %d: %w", id, grad, v.id, ErrStaleGradient)
		}
	}
	v.g.backward(order, v.id)
	return nil
}

// ZeroGradReachable sets the gradient of v and every node it depends on to 0.
func (v Value) ZeroGradReachable() {
	v.node()
	for _, id := range v.g.TopologicalOrder(v.id) {
		v.g.nodes[id].grad = 0
	}
}

func (g *Graph) backward(order []NodeID, root NodeID) {
	g.nodes[root].grad = 1
	for i := len(order) - 1; i >= 0; i-- {
		g.propagate(order[i])
	}
}
