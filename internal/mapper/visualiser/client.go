package visualiser

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

// Client calls gridmapper.Mapper on an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// SetMappingEnabled switches mapping on the server and returns the state it
// reports afterwards.
func (c *Client) SetMappingEnabled(ctx context.Context, enabled bool, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, setMappingEnabledMethod, wrapperspb.Bool(enabled), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// UpdateStream yields decoded map updates.
type UpdateStream struct {
	stream grpc.ClientStream
}

// StreamMapUpdates opens an update stream. Cancel ctx to close it.
func (c *Client) StreamMapUpdates(ctx context.Context, opts ...grpc.CallOption) (*UpdateStream, error) {
	stream, err := c.cc.NewStream(ctx, &mapperServiceDesc.Streams[0], streamMapUpdatesMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &UpdateStream{stream: stream}, nil
}

// Recv blocks for the next update. io.EOF marks a clean server shutdown.
func (s *UpdateStream) Recv() (*mapper.MapUpdate, error) {
	msg := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	u, err := mapper.DecodeMapUpdate(msg.GetValue())
	if err != nil {
		return nil, fmt.Errorf("failed to decode map update: %w", err)
	}
	return u, nil
}
