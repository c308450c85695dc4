package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "salon.scheduling.v1.SchedulingService"

// SchedulingServiceServer carries every RPC as a google.protobuf.Struct so the
// service needs no generated code.
type SchedulingServiceServer interface {
	ValidateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BookAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RescheduleAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueryAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpc func(SchedulingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call rpc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SchedulingServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ValidateAppointment", SchedulingServiceServer.ValidateAppointment),
		unary("BookAppointment", SchedulingServiceServer.BookAppointment),
		unary("TransitionAppointment", SchedulingServiceServer.TransitionAppointment),
		unary("RescheduleAppointment", SchedulingServiceServer.RescheduleAppointment),
		unary("DeleteAppointment", SchedulingServiceServer.DeleteAppointment),
		unary("GetAppointment", SchedulingServiceServer.GetAppointment),
		unary("ListAppointments", SchedulingServiceServer.ListAppointments),
		unary("QueryAudit", SchedulingServiceServer.QueryAudit),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "salon/scheduling/v1/scheduling.proto",
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

// SchedulingServiceClient invokes the service over any client connection.
type SchedulingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulingServiceClient(cc grpc.ClientConnInterface) *SchedulingServiceClient {
	return &SchedulingServiceClient{cc: cc}
}

func (c *SchedulingServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
