package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	api "k8s.io/examples/AI/scalargrad/pkg/api/v1alpha1"
	"k8s.io/examples/AI/scalargrad/pkg/engine"
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
	listen := ":9876"
	if v := os.Getenv("GRADSERVER_LISTEN"); v != "" {
		listen = v
	}
	maxNodes := 1 << 20
	flag.StringVar(&listen, "listen", listen, "listen address")
	flag.IntVar(&maxNodes, "max-nodes", maxNodes, "maximum number of nodes accepted in one request")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", listen, err)
	}

	grpcServer := grpc.NewServer()

	gradServer := &GradServer{MaxNodes: maxNodes}
	api.RegisterGradientsServer(grpcServer, gradServer)
	log.Info("Starting gradserver", "listen", listen, "maxNodes", maxNodes)
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("serving GRPC: %w", err)
	}

	return nil
}

type GradServer struct {
	api.UnimplementedGradientsServer

	// MaxNodes bounds the size of a request's graph; zero means unbounded.
	MaxNodes int
}

// Backward builds a fresh graph per request, so concurrent calls never share
// nodes.
func (s *GradServer) Backward(ctx context.Context, req *api.BackwardRequest) (*api.BackwardResponse, error) {
	log := klog.FromContext(ctx)

	if s.MaxNodes > 0 && len(req.GetNodes()) > s.MaxNodes {
		return nil, status.Errorf(codes.ResourceExhausted, "request has %d nodes, limit is %d", len(req.GetNodes()), s.MaxNodes)
	}

	startedAt := time.Now()
	response, err := engine.Evaluate(ctx, req)
	if err != nil {
		log.Error(err, "evaluating backward request", "nodes", len(req.GetNodes()), "root", req.GetRoot())
		return nil, err
	}

	log.V(2).Info("evaluated backward request", "nodes", len(req.GetNodes()), "root", req.GetRoot(), "duration", time.Since(startedAt))
	return response, nil
}
