// Package otaapiv1alpha1 exposes the OTA agent over gRPC. Requests and
// responses use protobuf well-known types only, see ota.proto.
package otaapiv1alpha1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "ota.v1alpha1.OtaAgentService"

const (
	methodSetRobotInfo    = "/" + ServiceName + "/SetRobotInfo"
	methodSetOtaMode      = "/" + ServiceName + "/SetOtaMode"
	methodStartUpdate     = "/" + ServiceName + "/StartUpdate"
	methodGetUpdateStatus = "/" + ServiceName + "/GetUpdateStatus"
	methodSetActive       = "/" + ServiceName + "/SetActive"
	methodGetActive       = "/" + ServiceName + "/GetActive"
)

// OtaAgentServiceServer is the server API for OtaAgentService.
type OtaAgentServiceServer interface {
	SetRobotInfo(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	SetOtaMode(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
	StartUpdate(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	GetUpdateStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetActive(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetActive(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
	mustEmbedUnimplementedOtaAgentServiceServer()
}

// UnimplementedOtaAgentServiceServer must be embedded by implementations.
type UnimplementedOtaAgentServiceServer struct{}

func (UnimplementedOtaAgentServiceServer) SetRobotInfo(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetRobotInfo not implemented")
}

func (UnimplementedOtaAgentServiceServer) SetOtaMode(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetOtaMode not implemented")
}

func (UnimplementedOtaAgentServiceServer) StartUpdate(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method StartUpdate not implemented")
}

func (UnimplementedOtaAgentServiceServer) GetUpdateStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetUpdateStatus not implemented")
}

func (UnimplementedOtaAgentServiceServer) SetActive(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetActive not implemented")
}

func (UnimplementedOtaAgentServiceServer) GetActive(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetActive not implemented")
}

func (UnimplementedOtaAgentServiceServer) mustEmbedUnimplementedOtaAgentServiceServer() {}

func RegisterOtaAgentServiceServer(s grpc.ServiceRegistrar, srv OtaAgentServiceServer) {
	s.RegisterService(&OtaAgentService_ServiceDesc, srv)
}

// methodHandler has the signature of grpc.MethodDesc.Handler.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unaryHandler adapts a typed server method to a grpc.MethodDesc handler.
func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(OtaAgentServiceServer, context.Context, *Req) (*Resp, error),
) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(OtaAgentServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OtaAgentService_ServiceDesc is the grpc.ServiceDesc for OtaAgentService.
var OtaAgentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OtaAgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SetRobotInfo",
			Handler:    unaryHandler(methodSetRobotInfo, OtaAgentServiceServer.SetRobotInfo),
		},
		{
			MethodName: "SetOtaMode",
			Handler:    unaryHandler(methodSetOtaMode, OtaAgentServiceServer.SetOtaMode),
		},
		{
			MethodName: "StartUpdate",
			Handler:    unaryHandler(methodStartUpdate, OtaAgentServiceServer.StartUpdate),
		},
		{
			MethodName: "GetUpdateStatus",
			Handler:    unaryHandler(methodGetUpdateStatus, OtaAgentServiceServer.GetUpdateStatus),
		},
		{
			MethodName: "SetActive",
			Handler:    unaryHandler(methodSetActive, OtaAgentServiceServer.SetActive),
		},
		{
			MethodName: "GetActive",
			Handler:    unaryHandler(methodGetActive, OtaAgentServiceServer.GetActive),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "otaapi/v1alpha1/ota.proto",
}

// OtaAgentServiceClient is the client API for OtaAgentService.
type OtaAgentServiceClient interface {
	SetRobotInfo(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	SetOtaMode(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	StartUpdate(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetUpdateStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetActive(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetActive(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.UInt32Value, error)
}

type otaAgentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOtaAgentServiceClient(cc grpc.ClientConnInterface) OtaAgentServiceClient {
	return &otaAgentServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *otaAgentServiceClient) SetRobotInfo(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, methodSetRobotInfo, in, opts)
}

func (c *otaAgentServiceClient) SetOtaMode(ctx context.Context, in *wrapperspb.BoolValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, methodSetOtaMode, in, opts)
}

func (c *otaAgentServiceClient) StartUpdate(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, methodStartUpdate, in, opts)
}

func (c *otaAgentServiceClient) GetUpdateStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, methodGetUpdateStatus, in, opts)
}

func (c *otaAgentServiceClient) SetActive(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, methodSetActive, in, opts)
}

func (c *otaAgentServiceClient) GetActive(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.UInt32Value, error) {
	return invoke[wrapperspb.UInt32Value](ctx, c.cc, methodGetActive, in, opts)
}
