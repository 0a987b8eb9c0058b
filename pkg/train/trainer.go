package train

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/scalargrad/pkg/engine"
	"k8s.io/examples/AI/scalargrad/pkg/nn"
)

// StepResult describes one optimization step.
type StepResult struct {
	Step         int
	Loss         float64
	Accuracy     float64
	LearningRate float64
	// GradNorm is the L2 norm of the parameter gradients before the update.
	GradNorm float64
}

// Recorder receives the result of every step.
type Recorder interface {
	RecordStep(ctx context.Context, result StepResult) error
}

// SGD moves every parameter against its gradient.
func SGD(params []engine.Value, learningRate float64) {
	for _, p := range params {
		p.SetData(p.Data() - learningRate*p.Grad())
	}
}

type Trainer struct {
	// Graph must be the graph the model's parameters live in.
	Graph *engine.Graph
	Model *nn.MLP
	Loss  LossFunc
	Data  []Example

	Steps        int
	LearningRate float64
	// Decay lowers the learning rate linearly to 10% of LearningRate over
	// Steps.
	Decay bool

	// Recorder is optional.
	Recorder Recorder
}

func (t *Trainer) learningRate(step int) float64 {
	if !t.Decay || t.Steps == 0 {
		return t.LearningRate
	}
	return t.LearningRate - 0.9*t.LearningRate*float64(step)/float64(t.Steps)
}

// Step runs forward, zero-grad, backward and the SGD update for one step.
// Nodes created for the step are dropped before returning.
func (t *Trainer) Step(ctx context.Context, step int) (StepResult, error) {
	mark := t.Graph.Mark()
	defer t.Graph.Rewind(mark)

	scores := make([]engine.Value, len(t.Data))
	for i, example := range t.Data {
		score, err := t.Model.Predict(example.Inputs)
		if err != nil {
			return StepResult{}, fmt.Errorf("example %d: %w", i, err)
		}
		scores[i] = score
	}

	params := t.Model.Parameters()
	loss, accuracy, err := t.Loss(t.Graph, scores, t.Data, params)
	if err != nil {
		return StepResult{}, fmt.Errorf("computing loss: %w", err)
	}
	if math.IsNaN(loss.Data()) || math.IsInf(loss.Data(), 0) {
		return StepResult{}, fmt.Errorf("loss diverged at step %d: %v", step, loss.Data())
	}

	nn.ZeroGrad(t.Model)
	loss.Backward()

	grads := make([]float64, len(params))
	for i, p := range params {
		grads[i] = p.Grad()
	}

	lr := t.learningRate(step)
	SGD(params, lr)

	return StepResult{
		Step:         step,
		Loss:         loss.Data(),
		Accuracy:     accuracy,
		LearningRate: lr,
		GradNorm:     floats.Norm(grads, 2),
	}, nil
}

// Run trains for t.Steps steps, stopping early if ctx is cancelled.
func (t *Trainer) Run(ctx context.Context) (StepResult, error) {
	log := klog.FromContext(ctx)

	if t.Graph == nil || t.Model == nil || t.Loss == nil {
		return StepResult{}, fmt.Errorf("trainer requires a graph, a model and a loss")
	}
	if len(t.Data) == 0 {
		return StepResult{}, fmt.Errorf("no training data")
	}

	log.Info("starting training", "model", t.Model.String(), "parameters", len(t.Model.Parameters()), "examples", len(t.Data), "steps", t.Steps)

	startedAt := time.Now()
	var last StepResult
	for step := 0; step < t.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return last, fmt.Errorf("training interrupted at step %d: %w", step, err)
		}

		result, err := t.Step(ctx, step)
		if err != nil {
			return last, err
		}
		last = result

		log.V(2).Info("step", "step", step, "loss", result.Loss, "accuracy", result.Accuracy, "learningRate", result.LearningRate, "gradNorm", result.GradNorm)

		if t.Recorder != nil {
			if err := t.Recorder.RecordStep(ctx, result); err != nil {
				return last, fmt.Errorf("recording step %d: %w", step, err)
			}
		}
	}

	log.Info("finished training", "loss", last.Loss, "accuracy", last.Accuracy, "duration", time.Since(startedAt))

	return last, nil
}
