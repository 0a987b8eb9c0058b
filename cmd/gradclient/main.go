package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	api "k8s.io/examples/AI/scalargrad/pkg/api/v1alpha1"
	"k8s.io/examples/AI/scalargrad/pkg/engine"
	"k8s.io/examples/AI/scalargrad/pkg/gradcheck"
	"k8s.io/klog/v2"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	serverAddr := "127.0.0.1:9876"
	if v := os.Getenv("GRADSERVER_ADDR"); v != "" {
		serverAddr = v
	}
	a, b, c := 2.0, -3.0, 10.0
	verify := false
	timeout := 10 * time.Second

	flag.StringVar(&serverAddr, "server", serverAddr, "address of the gradserver")
	flag.Float64Var(&a, "a", a, "value of a in relu(a*b + c)")
	flag.Float64Var(&b, "b", b, "value of b in relu(a*b + c)")
	flag.Float64Var(&c, "c", c, "value of c in relu(a*b + c)")
	flag.BoolVar(&verify, "verify", verify, "check the returned gradients against finite differences")
	flag.DurationVar(&timeout, "timeout", timeout, "request timeout")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to server %q: %w", serverAddr, err)
	}
	defer conn.Close()
	client := api.NewGradientsClient(conn)

	log.Info("Starting gradclient", "server", serverAddr)

	request := &api.BackwardRequest{
		Nodes: []*api.Node{
			{Id: 1, Label: "a", Leaf: &api.Leaf{Value: a}},
			{Id: 2, Label: "b", Leaf: &api.Leaf{Value: b}},
			{Id: 3, Label: "c", Leaf: &api.Leaf{Value: c}},
			{Id: 4, Operation: &api.Operation{Multiply: &api.Binary{Left: api.NodeRef(1), Right: api.NodeRef(2)}}},
			{Id: 5, Operation: &api.Operation{Add: &api.Binary{Left: api.NodeRef(4), Right: api.NodeRef(3)}}},
			{Id: 6, Operation: &api.Operation{Relu: &api.Unary{Source: api.NodeRef(5)}}},
		},
		Root:    6,
		Outputs: []int32{6, 1, 2, 3},
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	response, err := client.Backward(callCtx, request)
	if err != nil {
		return fmt.Errorf("failed to compute gradients: %w", err)
	}
	for _, result := range response.Results {
		log.Info("Result", "id", result.Id, "label", result.Label, "data", result.Data, "grad", result.Grad)
	}

	if verify {
		f := func(g *engine.Graph, in []engine.Value) engine.Value {
			return in[0].Mul(in[1]).Add(in[2]).ReLU()
		}
		numeric := gradcheck.Numeric(f, []float64{a, b, c})
		if err := verifyGradients(response.Results, []int32{1, 2, 3}, numeric, 1e-5); err != nil {
			return err
		}
		log.Info("Gradients match finite differences")
	}

	return nil
}

// verifyGradients checks that the result for each of inputs has a gradient
// within tol of the matching entry in want. Results may arrive in any order.
func verifyGradients(results []*api.NodeResult, inputs []int32, want []float64, tol float64) error {
	byID := make(map[int32]*api.NodeResult, len(results))
	for _, result := range results {
		if result != nil {
			byID[result.Id] = result
		}
	}

	for i, id := range inputs {
		result, found := byID[id]
		if !found {
			return fmt.Errorf("server returned no result for node %d", id)
		}
		if diff := math.Abs(result.Grad - want[i]); !(diff <= tol) {
			return fmt.Errorf("gradient of %s (node %d) is %v, finite differences give %v", result.Label, id, result.Grad, want[i])
		}
	}
	return nil
}
