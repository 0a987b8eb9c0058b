package engine

import "fmt"

// NodeID is the handle of a node within its Graph.
type NodeID int32

// Operand is anything that can appear in an operand slot: a Value from the
// same graph, or a Const that is wrapped as a fresh leaf when consumed.
type Operand interface {
	valueIn(g *Graph) Value
}

// Const is a raw number used in an operand slot.
type Const float64

func (c Const) valueIn(g *Graph) Value {
	return g.Leaf(float64(c))
}

// Operands converts values into operand slots.
func Operands(values []Value) []Operand {
	operands := make([]Operand, len(values))
	for i, v := range values {
		operands[i] = v
	}
	return operands
}

// OpKind tags the operation that produced a node.
type OpKind uint8

const (
	OpLeaf OpKind = iota
	OpAdd
	OpMultiply
	OpPower
	OpReLU
	OpExp
	OpLog
	OpTanh
)

func (k OpKind) String() string {
	switch k {
	case OpLeaf:
		return "leaf"
	case OpAdd:
		return "add"
	case OpMultiply:
		return "multiply"
	case OpPower:
		return "power"
	case OpReLU:
		return "relu"
	case OpExp:
		return "exp"
	case OpLog:
		return "log"
	case OpTanh:
		return "tanh"
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// Op is the propagation rule stored on a node.
type Op struct {
	Kind OpKind
	// Exponent is only meaningful for OpPower.
	Exponent float64
}
