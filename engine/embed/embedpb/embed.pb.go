// Package embedpb defines the wire types and gRPC service surface for the
// embedding service, hand-written in the shape generated protobuf code
// takes (plain structs, grpc.ClientConnInterface, a ServiceDesc) without a
// .proto source or a real protobuf codec.
package embedpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EmbedRequest carries the text to embed and the model that should embed it.
type EmbedRequest struct {
	Content string
	Model   string
}

// EmbedResponse carries the resulting dense vector.
type EmbedResponse struct {
	Vector []float32
}

// EmbedServiceClient is the client-side gRPC API.
type EmbedServiceClient interface {
	GetEmbedding(ctx context.Context, in *EmbedRequest, opts ...grpc.CallOption) (*EmbedResponse, error)
}

type embedServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEmbedServiceClient constructs a new gRPC client over cc.
func NewEmbedServiceClient(cc grpc.ClientConnInterface) EmbedServiceClient {
	return &embedServiceClient{cc: cc}
}

func (c *embedServiceClient) GetEmbedding(ctx context.Context, in *EmbedRequest, opts ...grpc.CallOption) (*EmbedResponse, error) {
	out := new(EmbedResponse)
	if err := c.cc.Invoke(ctx, "/embed.EmbedService/GetEmbedding", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedServiceServer is the server-side gRPC API.
type EmbedServiceServer interface {
	GetEmbedding(context.Context, *EmbedRequest) (*EmbedResponse, error)
	mustEmbedUnimplementedEmbedServiceServer()
}

// UnimplementedEmbedServiceServer can be embedded to have forward compatible
// implementations.
type UnimplementedEmbedServiceServer struct{}

func (UnimplementedEmbedServiceServer) GetEmbedding(context.Context, *EmbedRequest) (*EmbedResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetEmbedding not implemented")
}

func (UnimplementedEmbedServiceServer) mustEmbedUnimplementedEmbedServiceServer() {}

// RegisterEmbedServiceServer registers the EmbedService with the provided
// gRPC server registrar.
func RegisterEmbedServiceServer(s grpc.ServiceRegistrar, srv EmbedServiceServer) {
	s.RegisterService(&EmbedService_ServiceDesc, srv)
}

// EmbedService_ServiceDesc describes the EmbedService to gRPC.
var EmbedService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "embed.EmbedService",
	HandlerType: (*EmbedServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetEmbedding",
			Handler:    _EmbedService_GetEmbedding_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "engine/embed/embedpb/embed.proto",
}

func _EmbedService_GetEmbedding_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EmbedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmbedServiceServer).GetEmbedding(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/embed.EmbedService/GetEmbedding",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EmbedServiceServer).GetEmbedding(ctx, req.(*EmbedRequest))
	}
	return interceptor(ctx, in, info, handler)
}
