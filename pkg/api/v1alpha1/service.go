package v1alpha1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	GradientsServiceName    = "scalargrad.v1alpha1.Gradients"
	GradientsBackwardMethod = "/" + GradientsServiceName + "/Backward"
)

// GradientsClient is the client API for the Gradients service.
type GradientsClient interface {
	Backward(ctx context.Context, in *BackwardRequest, opts ...grpc.CallOption) (*BackwardResponse, error)
}

type gradientsClient struct {
	cc grpc.ClientConnInterface
}

func NewGradientsClient(cc grpc.ClientConnInterface) GradientsClient {
	return &gradientsClient{cc}
}

func (c *gradientsClient) Backward(ctx context.Context, in *BackwardRequest, opts ...grpc.CallOption) (*BackwardResponse, error) {
	out := new(BackwardResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, GradientsBackwardMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GradientsServer is the server API for the Gradients service.
type GradientsServer interface {
	Backward(context.Context, *BackwardRequest) (*BackwardResponse, error)
}

// UnimplementedGradientsServer can be embedded to have forward compatible
// implementations.
type UnimplementedGradientsServer struct{}

func (UnimplementedGradientsServer) Backward(context.Context, *BackwardRequest) (*BackwardResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Backward not implemented")
}

func RegisterGradientsServer(s grpc.ServiceRegistrar, srv GradientsServer) {
	s.RegisterService(&Gradients_ServiceDesc, srv)
}

func _Gradients_Backward_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BackwardRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GradientsServer).Backward(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GradientsBackwardMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GradientsServer).Backward(ctx, req.(*BackwardRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var Gradients_ServiceDesc = grpc.ServiceDesc{
	ServiceName: GradientsServiceName,
	HandlerType: (*GradientsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Backward",
			Handler:    _Gradients_Backward_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scalargrad/v1alpha1/gradients",
}
