// Package gradcheck compares gradients computed by the engine against
// central finite differences.
package gradcheck

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"k8s.io/examples/AI/scalargrad/pkg/engine"
)

var ErrMismatch = errors.New("gradient mismatch")

// Func builds a scalar expression of its inputs on g.
type Func func(g *engine.Graph, inputs []engine.Value) engine.Value

type Result struct {
	Analytic   []float64
	Numeric    []float64
	MaxAbsDiff float64
}

// Gradient returns the engine's gradient of f at x.
func Gradient(f Func, x []float64) []float64 {
	g := engine.NewGraph()
	inputs := make([]engine.Value, len(x))
	for i, xi := range x {
		inputs[i] = g.Leaf(xi)
	}
	f(g, inputs).Backward()

	grad := make([]float64, len(x))
	for i, in := range inputs {
		grad[i] = in.Grad()
	}
	return grad
}

// Numeric returns the central finite-difference gradient of f at x.
func Numeric(f Func, x []float64) []float64 {
	eval := func(x []float64) float64 {
		g := engine.NewGraph()
		inputs := make([]engine.Value, len(x))
		for i, xi := range x {
			inputs[i] = g.Leaf(xi)
		}
		return f(g, inputs).Data()
	}
	return fd.Gradient(nil, eval, x, &fd.Settings{Formula: fd.Central})
}

// Check fails with ErrMismatch when any component of the engine and numeric
// gradients differ by more than tol (absolute or relative).
func Check(f Func, x []float64, tol float64) (*Result, error) {
	analytic := Gradient(f, x)
	numeric := Numeric(f, x)

	result := &Result{
		Analytic:   analytic,
		Numeric:    numeric,
		MaxAbsDiff: floats.Distance(analytic, numeric, math.Inf(1)),
	}
	if !floats.EqualApprox(analytic, numeric, tol) {
		return result, fmt.Errorf("max difference %g exceeds tolerance %g (analytic %v, numeric %v): %w", result.MaxAbsDiff, tol, analytic, numeric, ErrMismatch)
	}
	return result, nil
}
