package train

import (
	"fmt"

	"k8s.io/examples/AI/scalargrad/pkg/engine"
)

// LossFunc combines predictions for a batch into a scalar loss and reports
// the fraction of examples predicted correctly.
type LossFunc func(g *engine.Graph, scores []engine.Value, examples []Example, params []engine.Value) (engine.Value, float64, error)

// MaxMarginLoss is the mean SVM hinge loss relu(1 - y*score) plus alpha times
// the L2 norm of the parameters. Targets are expected to be ±1.
func MaxMarginLoss(alpha float64) LossFunc {
	return func(g *engine.Graph, scores []engine.Value, examples []Example, params []engine.Value) (engine.Value, float64, error) {
		if len(scores) != len(examples) {
			return engine.Value{}, 0, fmt.Errorf("got %d scores for %d examples", len(scores), len(examples))
		}
		if len(scores) == 0 {
			return engine.Value{}, 0, fmt.Errorf("empty batch")
		}

		losses := make([]engine.Operand, len(scores))
		correct := 0
		for i, score := range scores {
			y := examples[i].Target
			losses[i] = g.Sub(engine.Const(1), score.Mul(engine.Const(y))).ReLU()
			if (y > 0) == (score.Data() > 0) {
				correct++
			}
		}
		dataLoss := g.Sum(losses...).Mul(engine.Const(1 / float64(len(losses))))

		squares := make([]engine.Operand, len(params))
		for i, p := range params {
			squares[i] = p.Mul(p)
		}
		regLoss := g.Sum(squares...).Mul(engine.Const(alpha))

		return dataLoss.Add(regLoss), float64(correct) / float64(len(scores)), nil
	}
}

// MSELoss is the mean squared error. An example counts as correct when the
// prediction has the sign of the target.
func MSELoss(g *engine.Graph, scores []engine.Value, examples []Example, params []engine.Value) (engine.Value, float64, error) {
	if len(scores) != len(examples) {
		return engine.Value{}, 0, fmt.Errorf("got %d scores for %d examples", len(scores), len(examples))
	}
	if len(scores) == 0 {
		return engine.Value{}, 0, fmt.Errorf("empty batch")
	}

	terms := make([]engine.Operand, len(scores))
	correct := 0
	for i, score := range scores {
		y := examples[i].Target
		terms[i] = score.Sub(engine.Const(y)).Pow(2)
		if (y > 0) == (score.Data() > 0) {
			correct++
		}
	}
	loss := g.Sum(terms...).Div(engine.Const(float64(len(terms))))
	return loss, float64(correct) / float64(len(scores)), nil
}
