// Package nn builds small feed-forward networks out of engine values.
package nn

import (
	"fmt"
	"math/rand"
	"strings"

	"k8s.io/examples/AI/scalargrad/pkg/engine"
)

type Module interface {
	Parameters() []engine.Value
}

// ZeroGrad resets the gradient of every parameter of m.
func ZeroGrad(m Module) {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

type Neuron struct {
	w      []engine.Value
	b      engine.Value
	nonlin bool
}

var _ Module = &Neuron{}

// NewNeuron creates a neuron with nin weights drawn uniformly from [-1, 1)
// and a zero bias. All parameters are leaves of g.
func NewNeuron(g *engine.Graph, rng *rand.Rand, nin int, nonlin bool) *Neuron {
	w := make([]engine.Value, nin)
	for i := range w {
		w[i] = g.Leaf(rng.Float64()*2 - 1)
	}
	return &Neuron{w: w, b: g.Leaf(0), nonlin: nonlin}
}

// Forward computes b + Σ wᵢxᵢ, passed through ReLU for non-linear neurons.
func (n *Neuron) Forward(x []engine.Operand) (engine.Value, error) {
	if len(x) != len(n.w) {
		return engine.Value{}, fmt.Errorf("neuron expects %d inputs, got %d", len(n.w), len(x))
	}

	g := n.b.Graph()
	act := n.b
	for i, wi := range n.w {
		act = act.Add(g.Mul(wi, x[i]))
	}
	if n.nonlin {
		return act.ReLU(), nil
	}
	return act, nil
}

func (n *Neuron) Parameters() []engine.Value {
	params := make([]engine.Value, 0, len(n.w)+1)
	params = append(params, n.w...)
	return append(params, n.b)
}

func (n *Neuron) String() string {
	kind := "Linear"
	if n.nonlin {
		kind = "ReLU"
	}
	return fmt.Sprintf("%sNeuron(%d)", kind, len(n.w))
}

type Layer struct {
	neurons []*Neuron
}

var _ Module = &Layer{}

func NewLayer(g *engine.Graph, rng *rand.Rand, nin, nout int, nonlin bool) *Layer {
	neurons := make([]*Neuron, nout)
	for i := range neurons {
		neurons[i] = NewNeuron(g, rng, nin, nonlin)
	}
	return &Layer{neurons: neurons}
}

func (l *Layer) Forward(x []engine.Operand) ([]engine.Value, error) {
	out := make([]engine.Value, len(l.neurons))
	for i, n := range l.neurons {
		v, err := n.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("neuron %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (l *Layer) Parameters() []engine.Value {
	var params []engine.Value
	for _, n := range l.neurons {
		params = append(params, n.Parameters()...)
	}
	return params
}

func (l *Layer) String() string {
	names := make([]string, len(l.neurons))
	for i, n := range l.neurons {
		names[i] = n.String()
	}
	return "Layer of [" + strings.Join(names, ", ") + "]"
}

// MLP is a multi-layer perceptron. Every layer but the last applies ReLU.
type MLP struct {
	inputs int
	sizes  []int
	layers []*Layer
}

var _ Module = &MLP{}

func NewMLP(g *engine.Graph, rng *rand.Rand, nin int, nouts []int) *MLP {
	sz := append([]int{nin}, nouts...)
	layers := make([]*Layer, len(nouts))
	for i := range nouts {
		layers[i] = NewLayer(g, rng, sz[i], sz[i+1], i != len(nouts)-1)
	}
	return &MLP{inputs: nin, sizes: append([]int(nil), nouts...), layers: layers}
}

func (m *MLP) Inputs() int {
	return m.inputs
}

// Sizes returns the number of neurons in each layer.
func (m *MLP) Sizes() []int {
	return append([]int(nil), m.sizes...)
}

func (m *MLP) Forward(x []engine.Operand) ([]engine.Value, error) {
	var out []engine.Value
	for i, l := range m.layers {
		var err error
		out, err = l.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		x = engine.Operands(out)
	}
	return out, nil
}

// Predict feeds raw inputs through the network and returns its first output.
func (m *MLP) Predict(x []float64) (engine.Value, error) {
	in := make([]engine.Operand, len(x))
	for i, xi := range x {
		in[i] = engine.Const(xi)
	}
	out, err := m.Forward(in)
	if err != nil {
		return engine.Value{}, err
	}
	if len(out) == 0 {
		return engine.Value{}, fmt.Errorf("network has no outputs")
	}
	return out[0], nil
}

func (m *MLP) Parameters() []engine.Value {
	var params []engine.Value
	for _, l := range m.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (m *MLP) String() string {
	names := make([]string, len(m.layers))
	for i, l := range m.layers {
		names[i] = l.String()
	}
	return "MLP of [" + strings.Join(names, ", ") + "]"
}
