// Package ledger exposes the ledger over gRPC.
//
// Messages are google.protobuf.Struct documents, so clients need no generated
// stubs: any gRPC client that can send a Struct (grpcurl included) can call
// the service.
package ledger

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "supplytrace.ledger.v1.LedgerService"

// Method names.
const (
	MethodRegisterProduct  = "RegisterProduct"
	MethodTransitionStatus = "TransitionStatus"
	MethodRecordActivity   = "RecordActivity"
	MethodGetProduct       = "GetProduct"
	MethodListProducts     = "ListProducts"
	MethodGetHistory       = "GetHistory"
	MethodStreamHistory    = "StreamHistory"
	MethodVerifyProduct    = "VerifyProduct"
	MethodExportChain      = "ExportChain"
	MethodListEvents       = "ListEvents"
)

// FullMethod returns the wire path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// LedgerServiceServer is the server API for the ledger service.
type LedgerServiceServer interface {
	RegisterProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordActivity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamHistory(*structpb.Struct, grpc.ServerStream) error
	VerifyProduct(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportChain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func streamHistoryHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LedgerServiceServer).StreamHistory(in, stream)
}

// ServiceDesc describes the ledger service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodRegisterProduct, LedgerServiceServer.RegisterProduct),
		unaryHandler(MethodTransitionStatus, LedgerServiceServer.TransitionStatus),
		unaryHandler(MethodRecordActivity, LedgerServiceServer.RecordActivity),
		unaryHandler(MethodGetProduct, LedgerServiceServer.GetProduct),
		unaryHandler(MethodListProducts, LedgerServiceServer.ListProducts),
		unaryHandler(MethodGetHistory, LedgerServiceServer.GetHistory),
		unaryHandler(MethodVerifyProduct, LedgerServiceServer.VerifyProduct),
		unaryHandler(MethodExportChain, LedgerServiceServer.ExportChain),
		unaryHandler(MethodListEvents, LedgerServiceServer.ListEvents),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodStreamHistory,
			Handler:       streamHistoryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "supplytrace/ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer registers srv with s.
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the ledger service over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes a unary method.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamHistory reads a product's chain one record per message.
func (c *Client) StreamHistory(ctx context.Context, productID string, opts ...grpc.CallOption) ([]*structpb.Struct, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodStreamHistory), opts...)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{"product_id": productID})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var out []*structpb.Struct
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}
