package engine

import (
	"context"
	"fmt"
)

// TopologicalOrder returns the nodes reachable from root in post-order: every
// node appears after all of its operands. Nodes reachable along several paths
// appear once.
func (g *Graph) TopologicalOrder(root NodeID) []NodeID {
	if root < 0 || int(root) >= len(g.nodes) {
		return nil
	}

	type frame struct {
		id   NodeID
		next int
	}

	order := make([]NodeID, 0, int(root)+1)
	visited := make([]bool, int(root)+1)

	visited[root] = true
	stack := []frame{{id: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		operands := g.nodes[top.id].operands
		if top.next < len(operands) {
			operand := operands[top.next]
			top.next++
			if !visited[operand] {
				visited[operand] = true
				stack = append(stack, frame{id: operand})
			}
			continue
		}
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}

	return order
}

// definition is a node that has been described but not yet built.
type definition interface {
	DefinitionID() int32
	Dependencies() []int32
}

// buildOrder orders definitions so each comes after the definitions it
// depends on, in time linear in definitions plus dependencies. Definitions
// may be supplied in any order. A definition whose dependencies are missing
// or cyclic is never ready and is reported.
func buildOrder[D definition](ctx context.Context, definitions []D) ([]D, error) {
	index := make(map[int32]int, len(definitions))
	for i, d := range definitions {
		index[d.DefinitionID()] = i
	}

	pending := make([]int, len(definitions))
	dependents := make([][]int, len(definitions))
	ready := make([]int, 0, len(definitions))
	for i, d := range definitions {
		for _, dep := range d.Dependencies() {
			j, found := index[dep]
			if !found {
				return nil, fmt.Errorf("node %d could not be built (missing dependency %d)", d.DefinitionID(), dep)
			}
			pending[i]++
			dependents[j] = append(dependents[j], i)
		}
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]D, 0, len(definitions))
	for n := 0; n < len(ready); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i := ready[n]
		order = append(order, definitions[i])
		for _, j := range dependents[i] {
			pending[j]--
			if pending[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(order) != len(definitions) {
		for i, d := range definitions {
			if pending[i] != 0 {
				return nil, fmt.Errorf("node %d could not be built (cyclic dependency)", d.DefinitionID())
			}
		}
	}

	return order, nil
}
