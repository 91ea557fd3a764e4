package visualiser

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName             = "gridmapper.Mapper"
	streamMapUpdatesMethod  = "/" + serviceName + "/StreamMapUpdates"
	setMappingEnabledMethod = "/" + serviceName + "/SetMappingEnabled"
)

// MappingToggle is the switch SetMappingEnabled flips. *mapper.Node
// satisfies it.
type MappingToggle interface {
	SetMappingEnabled(enabled bool) bool
	MappingEnabled() bool
}

// MapperServer is the server API of gridmapper.Mapper:
//
//	service Mapper {
//	  rpc StreamMapUpdates(google.protobuf.Empty) returns (stream google.protobuf.BytesValue);
//	  rpc SetMappingEnabled(google.protobuf.BoolValue) returns (google.protobuf.BoolValue);
//	}
//
// Each BytesValue carries one mapper.EncodeMapUpdate payload.
type MapperServer interface {
	StreamMapUpdates(*emptypb.Empty, grpc.ServerStream) error
	SetMappingEnabled(context.Context, *wrapperspb.BoolValue) (*wrapperspb.BoolValue, error)
}

var mapperServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MapperServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetMappingEnabled", Handler: setMappingEnabledHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamMapUpdates", Handler: streamMapUpdatesHandler, ServerStreams: true},
	},
	Metadata: "gridmapper/mapper.proto",
}

func setMappingEnabledHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BoolValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MapperServer).SetMappingEnabled(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: setMappingEnabledMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MapperServer).SetMappingEnabled(ctx, req.(*wrapperspb.BoolValue))
	}
	return interceptor(ctx, in, info, handler)
}

func streamMapUpdatesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MapperServer).StreamMapUpdates(in, stream)
}

// server binds the service to a Publisher.
type server struct {
	publisher *Publisher
	toggle    MappingToggle
}

func (s *server) StreamMapUpdates(_ *emptypb.Empty, stream grpc.ServerStream) error {
	client, err := s.publisher.addClient()
	if errors.Is(err, errTooManyClients) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	if err != nil {
		return err
	}
	defer s.publisher.removeClient(client.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return nil
		case data := <-client.updateCh:
			if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
				return err
			}
		}
	}
}

// SetMappingEnabled applies the request and returns the resulting state.
func (s *server) SetMappingEnabled(_ context.Context, req *wrapperspb.BoolValue) (*wrapperspb.BoolValue, error) {
	if s.toggle == nil {
		return nil, status.Error(codes.Unimplemented, "mapping toggle not available")
	}
	s.toggle.SetMappingEnabled(req.GetValue())
	return wrapperspb.Bool(s.toggle.MappingEnabled()), nil
}
