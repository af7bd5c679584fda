// Package shardrpc carries shard samples to the consensus coordinator over
// gRPC.
//
// The service uses protobuf well-known types (StringValue in, Struct out)
// so no protoc toolchain is needed. Every Struct field is a string: values
// travel as canonical 18-decimal strings and never as floating point.
package shardrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName      = "xdao.ledgercore.shardrpc.v1.Samples"
	latestFullMethod = "/" + serviceName + "/Latest"
)

// SamplesServer is the server API for the Samples service. The request is
// the round id.
type SamplesServer interface {
	Latest(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedSamplesServer can be embedded to have forward compatible implementations.
type UnimplementedSamplesServer struct{}

func (UnimplementedSamplesServer) Latest(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Latest not implemented")
}

func RegisterSamplesServer(s grpc.ServiceRegistrar, srv SamplesServer) {
	s.RegisterService(&Samples_ServiceDesc, srv)
}

type SamplesClient interface {
	Latest(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type samplesClient struct{ cc grpc.ClientConnInterface }

func NewSamplesClient(cc grpc.ClientConnInterface) SamplesClient { return &samplesClient{cc: cc} }

func (c *samplesClient) Latest(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, latestFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Samples_Latest_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SamplesServer).Latest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: latestFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SamplesServer).Latest(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Samples_ServiceDesc is the grpc.ServiceDesc for the Samples service.
var Samples_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SamplesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Latest", Handler: _Samples_Latest_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shardrpc.proto",
}
