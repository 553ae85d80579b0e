package grpcjournal

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// JournalServer is the server API for the Journal gRPC service.
//
// We intentionally use protobuf well-known wrapper types so this package does
// not require a protoc/codegen toolchain: requests and replies carry the
// canonical JSON documents defined by the journal package.
//
// Proto definition: journal.proto.
type JournalServer interface {
	// Publish appends a sealed envelope and returns the CID of the received
	// envelope bytes.
	Publish(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	// FetchAll returns the canonical history document for an identity.
	FetchAll(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// Subscribe streams canonical entry JSON, one message per entry, in
	// durable publish order, until the client goes away.
	Subscribe(*wrapperspb.StringValue, Journal_SubscribeServer) error
}

// UnimplementedJournalServer can be embedded to have forward compatible implementations.
type UnimplementedJournalServer struct{}

func (UnimplementedJournalServer) Publish(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Publish not implemented")
}
func (UnimplementedJournalServer) FetchAll(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method FetchAll not implemented")
}
func (UnimplementedJournalServer) Subscribe(*wrapperspb.StringValue, Journal_SubscribeServer) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

// RegisterJournalServer registers the Journal service on a gRPC server.
func RegisterJournalServer(s grpc.ServiceRegistrar, srv JournalServer) {
	s.RegisterService(&Journal_ServiceDesc, srv)
}

type Journal_SubscribeServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type journalSubscribeServer struct {
	grpc.ServerStream
}

func (x *journalSubscribeServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

// JournalClient is the client API for the Journal gRPC service.
type JournalClient interface {
	Publish(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	FetchAll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Subscribe(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (Journal_SubscribeClient, error)
}

type Journal_SubscribeClient interface {
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type journalClient struct{ cc grpc.ClientConnInterface }

func NewJournalClient(cc grpc.ClientConnInterface) JournalClient { return &journalClient{cc: cc} }

func (c *journalClient) Publish(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	err := c.cc.Invoke(ctx, "/xdao.consent.journal.v1.Journal/Publish", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *journalClient) FetchAll(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/xdao.consent.journal.v1.Journal/FetchAll", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *journalClient) Subscribe(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (Journal_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &Journal_ServiceDesc.Streams[0], "/xdao.consent.journal.v1.Journal/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	x := &journalSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type journalSubscribeClient struct {
	grpc.ClientStream
}

func (x *journalSubscribeClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Journal_Publish_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/xdao.consent.journal.v1.Journal/Publish"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(JournalServer).Publish(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_FetchAll_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).FetchAll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/xdao.consent.journal.v1.Journal/FetchAll"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(JournalServer).FetchAll(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(JournalServer).Subscribe(m, &journalSubscribeServer{stream})
}

// Journal_ServiceDesc is the grpc.ServiceDesc for the Journal service.
var Journal_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "xdao.consent.journal.v1.Journal",
	HandlerType: (*JournalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: _Journal_Publish_Handler},
		{MethodName: "FetchAll", Handler: _Journal_FetchAll_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _Journal_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "journal.proto",
}
