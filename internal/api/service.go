// Package api exposes the daemon over gRPC. The service is declared by hand
// on top of the protobuf well-known types, so no generated code is needed:
// requests are emptypb/wrapperspb values and responses are structpb
// documents holding the JSON form of the view types in views.go.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "healthchat.v1.Chat"

// ChatServer is the server API of the chat daemon.
type ChatServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SendText(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ClearHistory(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Reconnect(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	InvokeAction(context.Context, *structpb.Struct) (*structpb.Struct, error)

	ListSessions(context.Context, *wrapperspb.BoolValue) (*structpb.ListValue, error)
	SearchSessions(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	SearchMessages(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	NewSession(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	OpenSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ArchiveSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	DeleteSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)

	GetPreferences(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdatePreferences(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetConsent(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)

	WatchEvents(*emptypb.Empty, grpc.ServerStream) error
}

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ServiceDesc describes the Chat service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", ChatServer.GetState),
		unary("SendText", ChatServer.SendText),
		unary("ClearHistory", ChatServer.ClearHistory),
		unary("Reconnect", ChatServer.Reconnect),
		unary("InvokeAction", ChatServer.InvokeAction),
		unary("ListSessions", ChatServer.ListSessions),
		unary("SearchSessions", ChatServer.SearchSessions),
		unary("SearchMessages", ChatServer.SearchMessages),
		unary("NewSession", ChatServer.NewSession),
		unary("OpenSession", ChatServer.OpenSession),
		unary("ArchiveSession", ChatServer.ArchiveSession),
		unary("DeleteSession", ChatServer.DeleteSession),
		unary("GetPreferences", ChatServer.GetPreferences),
		unary("UpdatePreferences", ChatServer.UpdatePreferences),
		unary("SetConsent", ChatServer.SetConsent),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "healthchat/v1/chat.proto",
}

// WatchEventsDesc is the stream descriptor clients open for WatchEvents.
var WatchEventsDesc = &ServiceDesc.Streams[0]

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a ChatServer method expression into a grpc.MethodDesc.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(ChatServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServer).WatchEvents(in, stream)
}
