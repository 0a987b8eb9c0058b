package engine

import (
	"context"
	"errors"
	"fmt"

	api "k8s.io/examples/AI/scalargrad/pkg/api/v1alpha1"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Evaluate builds the nodes described by req into a fresh Graph, runs a
// backward pass from req.Root and reports data and gradient for the
// requested outputs.
func Evaluate(ctx context.Context, req *api.BackwardRequest) (*api.BackwardResponse, error) {
	definitions := make([]nodeDefinition, 0, len(req.GetNodes()))
	seen := make(map[int32]bool, len(req.GetNodes()))
	for _, n := range req.GetNodes() {
		if n == nil {
			return nil, status.Errorf(codes.InvalidArgument, "nil node definition")
		}
		if seen[n.GetId()] {
			return nil, status.Errorf(codes.InvalidArgument, "node %d already defined", n.GetId())
		}
		seen[n.GetId()] = true

		deps, err := GetDependencies(n)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "node %d: %v", n.GetId(), err)
		}
		definitions = append(definitions, nodeDefinition{node: n, dependencies: deps})
	}

	order, err := buildOrder(ctx, definitions)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	g := NewGraph()
	values := make(map[int32]Value, len(order))
	for _, d := range order {
		if err := ctx.Err(); err != nil {
			return nil, status.FromContextError(err).Err()
		}
		v, err := buildNode(g, d.node, values)
		if err != nil {
			if errors.Is(err, ErrInvalidOperation) {
				return nil, status.Errorf(codes.InvalidArgument, "node %d: %v", d.node.GetId(), err)
			}
			return nil, err
		}
		values[d.node.GetId()] = v
	}

	root, found := values[req.GetRoot()]
	if !found {
		return nil, status.Errorf(codes.InvalidArgument, "root node %d not found", req.GetRoot())
	}
	root.Backward()

	outputs := req.GetOutputs()
	if len(outputs) == 0 {
		for _, d := range definitions {
			outputs = append(outputs, d.node.GetId())
		}
	}

	response := &api.BackwardResponse{}
	for _, id := range outputs {
		v, found := values[id]
		if !found {
			return nil, status.Errorf(codes.InvalidArgument, "node %d not found", id)
		}
		response.Results = append(response.Results, &api.NodeResult{
			Id:    id,
			Label: v.Label(),
			Data:  v.Data(),
			Grad:  v.Grad(),
		})
	}

	return response, nil
}

type nodeDefinition struct {
	node         *api.Node
	dependencies []int32
}

func (d nodeDefinition) DefinitionID() int32 { return d.node.GetId() }
func (d nodeDefinition) Dependencies() []int32 { return d.dependencies }

// GetDependencies returns the ids of the nodes that n consumes.
func GetDependencies(n *api.Node) ([]int32, error) {
	if n.GetLeaf() != nil {
		if n.GetOperation() != nil {
			return nil, fmt.Errorf("both leaf and operation set")
		}
		return nil, nil
	}

	operation := n.GetOperation()
	if operation == nil {
		return nil, fmt.Errorf("neither leaf nor operation set")
	}
	if ops := countOps(operation); ops > 1 {
		return nil, fmt.Errorf("operation sets more than one op (%d)", ops)
	}

	var refs []*api.Operand
	switch {
	case operation.Add != nil:
		refs = []*api.Operand{operation.Add.Left, operation.Add.Right}
	case operation.Subtract != nil:
		refs = []*api.Operand{operation.Subtract.Left, operation.Subtract.Right}
	case operation.Multiply != nil:
		refs = []*api.Operand{operation.Multiply.Left, operation.Multiply.Right}
	case operation.Divide != nil:
		refs = []*api.Operand{operation.Divide.Left, operation.Divide.Right}
	case operation.Power != nil:
		refs = []*api.Operand{operation.Power.Base, operation.Power.Exponent}
	case operation.Negate != nil:
		refs = []*api.Operand{operation.Negate.Source}
	case operation.Relu != nil:
		refs = []*api.Operand{operation.Relu.Source}
	case operation.Exp != nil:
		refs = []*api.Operand{operation.Exp.Source}
	case operation.Log != nil:
		refs = []*api.Operand{operation.Log.Source}
	case operation.Tanh != nil:
		refs = []*api.Operand{operation.Tanh.Source}
	default:
		return nil, fmt.Errorf("empty operation")
	}

	var deps []int32
	for _, ref := range refs {
		if ref == nil {
			return nil, fmt.Errorf("missing operand")
		}
		if ref.Node != nil {
			deps = append(deps, *ref.Node)
		}
	}
	return deps, nil
}

func countOps(operation *api.Operation) int {
	count := 0
	for _, set := range []bool{
		operation.Add != nil,
		operation.Subtract != nil,
		operation.Multiply != nil,
		operation.Divide != nil,
		operation.Power != nil,
		operation.Negate != nil,
		operation.Relu != nil,
		operation.Exp != nil,
		operation.Log != nil,
		operation.Tanh != nil,
	} {
		if set {
			count++
		}
	}
	return count
}

func buildNode(g *Graph, n *api.Node, values map[int32]Value) (Value, error) {
	if leaf := n.GetLeaf(); leaf != nil {
		return g.LeafWithLabel(leaf.Value, n.GetLabel()), nil
	}

	operand := func(ref *api.Operand) (Operand, error) {
		switch {
		case ref.Node != nil && ref.Constant != nil:
			return nil, fmt.Errorf("operand sets both node and constant: %w", ErrInvalidOperation)
		case ref.Node != nil:
			v, found := values[*ref.Node]
			if !found {
				return nil, fmt.Errorf("node %d not built: %w", *ref.Node, ErrInvalidOperation)
			}
			return v, nil
		case ref.Constant != nil:
			return Const(*ref.Constant), nil
		default:
			return nil, fmt.Errorf("operand sets neither node nor constant: %w", ErrInvalidOperation)
		}
	}
	binary := func(op *api.Binary, f func(a, b Operand) Value) (Value, error) {
		a, err := operand(op.Left)
		if err != nil {
			return Value{}, err
		}
		b, err := operand(op.Right)
		if err != nil {
			return Value{}, err
		}
		return f(a, b), nil
	}
	unary := func(op *api.Unary, f func(a Operand) Value) (Value, error) {
		a, err := operand(op.Source)
		if err != nil {
			return Value{}, err
		}
		return f(a), nil
	}

	switch operation := n.GetOperation(); {
	case operation.Add != nil:
		return binary(operation.Add, g.Add)
	case operation.Subtract != nil:
		return binary(operation.Subtract, g.Sub)
	case operation.Multiply != nil:
		return binary(operation.Multiply, g.Mul)
	case operation.Divide != nil:
		return binary(operation.Divide, g.Div)
	case operation.Power != nil:
		base, err := operand(operation.Power.Base)
		if err != nil {
			return Value{}, err
		}
		exponent, err := operand(operation.Power.Exponent)
		if err != nil {
			return Value{}, err
		}
		return g.Power(base, exponent)
	case operation.Negate != nil:
		return unary(operation.Negate, g.Neg)
	case operation.Relu != nil:
		return unary(operation.Relu, g.ReLU)
	case operation.Exp != nil:
		return unary(operation.Exp, g.Exp)
	case operation.Log != nil:
		return unary(operation.Log, g.Log)
	case operation.Tanh != nil:
		return unary(operation.Tanh, g.Tanh)
	default:
		return Value{}, fmt.Errorf("unsupported operation: %+v: %w", operation, ErrInvalidOperation)
	}
}
