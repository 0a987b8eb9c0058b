package engine

import (
	"errors"
	"math"
	"testing"
)

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func expectFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if !floatEqual(got, want) {
		t.Errorf("%s: expected %v, got %v", name, want, got)
	}
}

func TestLeaf(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(3)
	if !x.IsLeaf() {
		t.Fatalf("expected leaf")
	}
	if len(x.Operands()) != 0 {
		t.Fatalf("expected no operands, got %d", len(x.Operands()))
	}
	x.Backward()
	expectFloat(t, "x.grad", x.Grad(), 1)
	if got := x.String(); got != "Value(data=3, grad=1)" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestAccumulation(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(3)
	y := x.Mul(x)
	y.Backward()

	expectFloat(t, "y.data", y.Data(), 9)
	expectFloat(t, "x.grad", x.Grad(), 2*x.Data())
}

func TestChainRuleReluClosed(t *testing.T) {
	g := NewGraph()
	a, b, c := g.Leaf(2), g.Leaf(-3), g.Leaf(1)
	f := a.Mul(b).Add(c).ReLU()
	f.Backward()

	expectFloat(t, "f.data", f.Data(), 0)
	expectFloat(t, "a.grad", a.Grad(), 0)
	expectFloat(t, "b.grad", b.Grad(), 0)
	expectFloat(t, "c.grad", c.Grad(), 0)
}

func TestChainRuleReluOpen(t *testing.T) {
	g := NewGraph()
	a, b, c := g.Leaf(2), g.Leaf(-3), g.Leaf(10)
	f := a.Mul(b).Add(c).ReLU()
	f.Backward()

	expectFloat(t, "f.data", f.Data(), 4)
	expectFloat(t, "a.grad", a.Grad(), -3)
	expectFloat(t, "b.grad", b.Grad(), 2)
	expectFloat(t, "c.grad", c.Grad(), 1)
}

func TestDiamond(t *testing.T) {
	g := NewGraph()
	a := g.Leaf(5)
	b := a.Add(a)
	b.Backward()
	expectFloat(t, "a.grad", a.Grad(), 2)

	order := g.TopologicalOrder(b.ID())
	if len(order) != 2 {
		t.Fatalf("expected shared operand to be ordered once, got %v", order)
	}
}

func TestPowerDivideConsistency(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(4)

	y := x.Pow(-1)
	y.Backward()
	yGrad := x.Grad()

	x.ZeroGradReachable()
	z := g.Div(Const(1), x)
	z.Backward()
	zGrad := x.Grad()

	expectFloat(t, "y.data", y.Data(), 0.25)
	expectFloat(t, "z.data", z.Data(), 0.25)
	expectFloat(t, "y grad on x", yGrad, -1.0/16)
	expectFloat(t, "z grad on x", zGrad, -1.0/16)
}

func TestZeroGradIsIdempotent(t *testing.T) {
	g := NewGraph()
	a, b := g.Leaf(-4), g.Leaf(2)
	c := a.Add(b)
	d := a.Mul(b).Add(b.Pow(3))
	e := c.Sub(d).Tanh().Add(d.Div(Const(2)).ReLU())
	e.Backward()

	order := g.TopologicalOrder(e.ID())
	first := make(map[NodeID]float64, len(order))
	for _, id := range order {
		v, _ := g.Node(id)
		first[id] = v.Grad()
	}

	e.ZeroGradReachable()
	for _, id := range order {
		v, _ := g.Node(id)
		if v.Grad() != 0 {
			t.Fatalf("node %d not zeroed: %v", id, v.Grad())
		}
	}

	e.Backward()
	for _, id := range order {
		v, _ := g.Node(id)
		if v.Grad() != first[id] {
			t.Errorf("node %d: expected grad %v on rerun, got %v", id, first[id], v.Grad())
		}
	}
}

func TestUnreachedNode(t *testing.T) {
	g := NewGraph()
	a, b := g.Leaf(1), g.Leaf(2)
	c := g.Leaf(3)
	y := a.Add(b)
	y.Backward()

	expectFloat(t, "c.grad", c.Grad(), 0)
	expectFloat(t, "a.grad", a.Grad(), 1)
	expectFloat(t, "b.grad", b.Grad(), 1)
}

func TestReflectedForms(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(3)

	tests := []struct {
		name     string
		build    func() Value
		wantData float64
		wantGrad float64
	}{
		{"x + 2", func() Value { return x.Add(Const(2)) }, 5, 1},
		{"2 + x", func() Value { return g.Add(Const(2), x) }, 5, 1},
		{"x * 2", func() Value { return x.Mul(Const(2)) }, 6, 2},
		{"2 * x", func() Value { return g.Mul(Const(2), x) }, 6, 2},
		{"x - 1", func() Value { return x.Sub(Const(1)) }, 2, 1},
		{"1 - x", func() Value { return g.Sub(Const(1), x) }, -2, -1},
		{"x / 2", func() Value { return x.Div(Const(2)) }, 1.5, 0.5},
		{"6 / x", func() Value { return g.Div(Const(6), x) }, 2, -6.0 / 9},
		{"-x", func() Value { return x.Neg() }, -3, -1},
		{"x ** 2", func() Value { return x.Pow(2) }, 9, 6},
		{"exp(x)", func() Value { return x.Exp() }, math.Exp(3), math.Exp(3)},
		{"log(x)", func() Value { return x.Log() }, math.Log(3), 1.0 / 3},
		{"tanh(x)", func() Value { return x.Tanh() }, math.Tanh(3), 1 - math.Tanh(3)*math.Tanh(3)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x.SetGrad(0)
			out := tc.build()
			out.Backward()
			expectFloat(t, "data", out.Data(), tc.wantData)
			expectFloat(t, "grad", x.Grad(), tc.wantGrad)
		})
	}
}

func TestLabels(t *testing.T) {
	g := NewGraph()
	x := g.LeafWithLabel(2, "x")
	if got := x.Label(); got != "x" {
		t.Errorf("expected label x, got %q", got)
	}
	for _, tc := range []struct {
		v    Value
		want string
		kind OpKind
	}{
		{x.Add(Const(1)), "+", OpAdd},
		{x.Mul(Const(1)), "*", OpMultiply},
		{x.Pow(-1), "**-1", OpPower},
		{x.Pow(0.5), "**0.5", OpPower},
		{x.ReLU(), "ReLU", OpReLU},
	} {
		if got := tc.v.Label(); got != tc.want {
			t.Errorf("expected label %q, got %q", tc.want, got)
		}
		if got := tc.v.Op().Kind; got != tc.kind {
			t.Errorf("expected op %v, got %v", tc.kind, got)
		}
	}
}

func TestPowerRejectsNodeExponent(t *testing.T) {
	g := NewGraph()
	x, k := g.Leaf(2), g.Leaf(3)
	before := g.Len()

	_, err := g.Power(x, k)
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if g.Len() != before {
		t.Errorf("failed power should not add nodes")
	}

	y, err := g.Power(x, Const(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectFloat(t, "y.data", y.Data(), 8)
}

func TestCrossGraphOperandPanics(t *testing.T) {
	a := NewGraph().Leaf(1)
	b := NewGraph().Leaf(2)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInvalidOperation) {
			t.Fatalf("expected panic with ErrInvalidOperation, got %v", r)
		}
	}()
	a.Add(b)
}

func TestBackwardStrict(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(3)
	y := x.Mul(x)

	if err := y.BackwardStrict(); err != nil {
		t.Fatalf("unexpected error on first pass: %v", err)
	}
	if err := y.BackwardStrict(); !errors.Is(err, ErrStaleGradient) {
		t.Fatalf("expected ErrStaleGradient, got %v", err)
	}
	expectFloat(t, "x.grad", x.Grad(), 6)

	y.ZeroGradReachable()
	if err := y.BackwardStrict(); err != nil {
		t.Fatalf("unexpected error after zero-grad: %v", err)
	}
	expectFloat(t, "x.grad", x.Grad(), 6)
}

func TestStaleGradientAccumulates(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(3)
	y := x.Mul(x)
	y.Backward()
	y.Backward()

	// root is re-seeded to 1 but x keeps the first pass's contribution
	expectFloat(t, "y.grad", y.Grad(), 1)
	expectFloat(t, "x.grad", x.Grad(), 12)
}

func TestDivideByZeroFollowsIEEE(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(0)
	y := g.Div(Const(1), x)
	y.Backward()
	if !math.IsInf(y.Data(), 1) {
		t.Errorf("expected +Inf, got %v", y.Data())
	}
	if !math.IsInf(x.Grad(), -1) && !math.IsNaN(x.Grad()) {
		t.Errorf("expected -Inf or NaN gradient, got %v", x.Grad())
	}
}

func TestMarkRewind(t *testing.T) {
	g := NewGraph()
	w := g.Leaf(2)
	mark := g.Mark()

	for step := 0; step < 3; step++ {
		loss := w.Mul(Const(3)).Pow(2)
		w.ZeroGrad()
		loss.Backward()
		expectFloat(t, "w.grad", w.Grad(), 2*9*w.Data())
		g.Rewind(mark)
		if g.Len() != 1 {
			t.Fatalf("expected rewind to leave 1 node, got %d", g.Len())
		}
	}
}

func TestSum(t *testing.T) {
	g := NewGraph()
	a, b := g.Leaf(1), g.Leaf(2)
	s := g.Sum(a, b, Const(3), a)
	s.Backward()
	expectFloat(t, "s.data", s.Data(), 7)
	expectFloat(t, "a.grad", a.Grad(), 2)
	expectFloat(t, "b.grad", b.Grad(), 1)

	if empty := g.Sum(); empty.Data() != 0 {
		t.Errorf("expected empty sum to be 0, got %v", empty.Data())
	}
}

// Reference values computed independently with PyTorch.
func TestSanityCheck(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(-4)
	z := g.Add(g.Mul(Const(2), x).Add(Const(2)), x)
	q := z.ReLU().Add(z.Mul(x))
	h := z.Mul(z).ReLU()
	y := h.Add(q).Add(q.Mul(x))
	y.Backward()

	expectFloat(t, "y.data", y.Data(), -20)
	expectFloat(t, "x.grad", x.Grad(), 46)
}

func TestMoreOps(t *testing.T) {
	g := NewGraph()
	a, b := g.Leaf(-4), g.Leaf(2)
	c := a.Add(b)
	d := a.Mul(b).Add(b.Pow(3))
	c = c.Add(c.Add(Const(1)))
	c = c.Add(g.Add(Const(1), c)).Add(a.Neg())
	d = d.Add(d.Mul(Const(2))).Add(g.Add(b, a).ReLU())
	d = d.Add(g.Mul(Const(3), d)).Add(b.Sub(a).ReLU())
	e := c.Sub(d)
	f := e.Pow(2)
	h := f.Div(Const(2))
	h = h.Add(g.Div(Const(10), f))
	h.Backward()

	if math.Abs(h.Data()-24.70408163265306) > 1e-6 {
		t.Errorf("h.data: expected 24.7041, got %v", h.Data())
	}
	if math.Abs(a.Grad()-138.83381924198252) > 1e-6 {
		t.Errorf("a.grad: expected 138.8338, got %v", a.Grad())
	}
	if math.Abs(b.Grad()-645.5772594752186) > 1e-6 {
		t.Errorf("b.grad: expected 645.5773, got %v", b.Grad())
	}
}

func TestDeepChainDoesNotOverflow(t *testing.T) {
	g := NewGraph()
	x := g.Leaf(1)
	y := x
	for i := 0; i < 100000; i++ {
		y = y.Add(Const(0))
	}
	y.Backward()
	expectFloat(t, "x.grad", x.Grad(), 1)
}
