package engine

import (
	"fmt"
	"math"
	"strconv"
)

func (g *Graph) unary(op Op, label string, data float64, a Value) Value {
	return g.add(node{data: data, op: op, operands: []NodeID{a.id}, label: label})
}

func (g *Graph) binary(op Op, label string, data float64, a, b Value) Value {
	return g.add(node{data: data, op: op, operands: []NodeID{a.id, b.id}, label: label})
}

// Add returns a + b.
func (g *Graph) Add(a, b Operand) Value {
	x, y := a.valueIn(g), b.valueIn(g)
	return g.binary(Op{Kind: OpAdd}, "+", x.Data()+y.Data(), x, y)
}

// Mul returns a * b.
func (g *Graph) Mul(a, b Operand) Value {
	x, y := a.valueIn(g), b.valueIn(g)
	return g.binary(Op{Kind: OpMultiply}, "*", x.Data()*y.Data(), x, y)
}

// Pow returns a ** k for a constant exponent k.
func (g *Graph) Pow(a Operand, k float64) Value {
	x := a.valueIn(g)
	return g.unary(Op{Kind: OpPower, Exponent: k}, "**"+strconv.FormatFloat(k, 'g', -1, 64), math.Pow(x.Data(), k), x)
}

// Power is Pow with a dynamically typed exponent. Only a Const exponent is
// supported; raising to a graph node fails with ErrInvalidOperation.
func (g *Graph) Power(base, exponent Operand) (Value, error) {
	k, ok := exponent.(Const)
	if !ok {
		return Value{}, fmt.Errorf("exponent must be a constant, got %T: %w", exponent, ErrInvalidOperation)
	}
	return g.Pow(base, float64(k)), nil
}

// ReLU returns max(a, 0).
func (g *Graph) ReLU(a Operand) Value {
	x := a.valueIn(g)
	data := 0.0
	if x.Data() > 0 {
		data = x.Data()
	}
	return g.unary(Op{Kind: OpReLU}, "ReLU", data, x)
}

func (g *Graph) Exp(a Operand) Value {
	x := a.valueIn(g)
	return g.unary(Op{Kind: OpExp}, "exp", math.Exp(x.Data()), x)
}

// Log returns the natural logarithm of a.
func (g *Graph) Log(a Operand) Value {
	x := a.valueIn(g)
	return g.unary(Op{Kind: OpLog}, "log", math.Log(x.Data()), x)
}

func (g *Graph) Tanh(a Operand) Value {
	x := a.valueIn(g)
	return g.unary(Op{Kind: OpTanh}, "tanh", math.Tanh(x.Data()), x)
}

// Neg returns a * -1.
func (g *Graph) Neg(a Operand) Value {
	return g.Mul(a, Const(-1))
}

// Sub returns a + (-b).
func (g *Graph) Sub(a, b Operand) Value {
	return g.Add(a, g.Neg(b))
}

// Div returns a * b**-1.
func (g *Graph) Div(a, b Operand) Value {
	return g.Mul(a, g.Pow(b, -1))
}

// Sum folds the operands with Add from the left. An empty sum is a zero leaf.
func (g *Graph) Sum(operands ...Operand) Value {
	if len(operands) == 0 {
		return g.Leaf(0)
	}
	acc := operands[0].valueIn(g)
	for _, o := range operands[1:] {
		acc = g.Add(acc, o)
	}
	return acc
}

func (v Value) Add(o Operand) Value { return v.g.Add(v, o) }
func (v Value) Mul(o Operand) Value { return v.g.Mul(v, o) }
func (v Value) Sub(o Operand) Value { return v.g.Sub(v, o) }
func (v Value) Div(o Operand) Value { return v.g.Div(v, o) }
func (v Value) Pow(k float64) Value { return v.g.Pow(v, k) }
func (v Value) Neg() Value { return v.g.Neg(v) }
func (v Value) ReLU() Value { return v.g.ReLU(v) }
func (v Value) Exp() Value { return v.g.Exp(v) }
func (v Value) Log() Value { return v.g.Log(v) }
func (v Value) Tanh() Value { return v.g.Tanh(v) }

// propagate adds the local derivative contribution of node id to the
// gradients of its operands. It must only run once the node's own gradient
// is final.
func (g *Graph) propagate(id NodeID) {
	n := &g.nodes[id]
	out := n.grad
	switch n.op.Kind {
	case OpLeaf:

	case OpAdd:
		g.nodes[n.operands[0]].grad += out
		g.nodes[n.operands[1]].grad += out

	case OpMultiply:
		a, b := &g.nodes[n.operands[0]], &g.nodes[n.operands[1]]
		a.grad += b.data * out
		b.grad += a.data * out

	case OpPower:
		a := &g.nodes[n.operands[0]]
		k := n.op.Exponent
		a.grad += k * math.Pow(a.data, k-1) * out

	case OpReLU:
		if n.data > 0 {
			g.nodes[n.operands[0]].grad += out
		}

	case OpExp:
		g.nodes[n.operands[0]].grad += n.data * out

	case OpLog:
		a := &g.nodes[n.operands[0]]
		a.grad += out / a.data

	case OpTanh:
		g.nodes[n.operands[0]].grad += (1 - n.data*n.data) * out

	default:
		panic(fmt.Sprintf("unsupported operation: %v", n.op.Kind))
	}
}
