package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name, matching the name
// used by the reference (non-Go) SDKs' generated stubs.
const ServiceName = "hipcheck.v1.PluginService"

// RegisterQueryServiceServer registers srv against s using a handwritten
// grpc.ServiceDesc in place of one protoc-gen-go-grpc would emit from a
// .proto file (see package doc).
func RegisterQueryServiceServer(s grpc.ServiceRegistrar, srv QueryServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetQuerySchemas", Handler: getQuerySchemasHandler},
		{MethodName: "SetConfiguration", Handler: setConfigurationHandler},
		{MethodName: "GetDefaultPolicyExpression", Handler: getDefaultPolicyExpressionHandler},
		{MethodName: "ExplainDefaultQuery", Handler: explainDefaultQueryHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "InitiateQueryProtocol",
			Handler:       initiateQueryProtocolHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "protocol/service.proto",
}

func getQuerySchemasHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in Empty
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).GetQuerySchemas(ctx, &in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetQuerySchemas"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServiceServer).GetQuerySchemas(ctx, req.(*Empty))
	}
	return interceptor(ctx, &in, info, handler)
}

func setConfigurationHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in SetConfigurationRequest
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).SetConfiguration(ctx, &in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/SetConfiguration"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServiceServer).SetConfiguration(ctx, req.(*SetConfigurationRequest))
	}
	return interceptor(ctx, &in, info, handler)
}

func getDefaultPolicyExpressionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in Empty
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).GetDefaultPolicyExpression(ctx, &in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetDefaultPolicyExpression"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServiceServer).GetDefaultPolicyExpression(ctx, req.(*Empty))
	}
	return interceptor(ctx, &in, info, handler)
}

func explainDefaultQueryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	var in Empty
	if err := dec(&in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).ExplainDefaultQuery(ctx, &in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/ExplainDefaultQuery"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(QueryServiceServer).ExplainDefaultQuery(ctx, req.(*Empty))
	}
	return interceptor(ctx, &in, info, handler)
}

func initiateQueryProtocolHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(QueryServiceServer).Query(&serverStreamAdapter{stream})
}

// serverStreamAdapter adapts a grpc.ServerStream to QueryServiceQueryServer.
type serverStreamAdapter struct {
	grpc.ServerStream
}

func (s *serverStreamAdapter) Send(f *Frame) error { return s.ServerStream.SendMsg(f) }
func (s *serverStreamAdapter) Recv() (*Frame, error) {
	var f Frame
	if err := s.ServerStream.RecvMsg(&f); err != nil {
		return nil, err
	}
	return &f, nil
}
