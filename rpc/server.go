package rpc

import (
	"context"

	"github.com/spooky-finn/kucoin-book-mirror/usecase"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "bookmirror.v1.OrderBookService"

// OrderBookServiceServer is the query and admin surface over gRPC. Payloads
// use well-known types so no generated code is needed.
type OrderBookServiceServer interface {
	GetOrderBook(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetOfficialSnapshot(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Reconcile(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	StartFeed(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StopFeed(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RestartFeed(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type server struct {
	orderbookSnapshotUseCase *usecase.OrderBookSnapshotUseCase
	feedControlUseCase       *usecase.FeedControlUseCase
	validationService        *ValidationService
	logger                   *zap.Logger
}

func NewServer(
	snapshots *usecase.OrderBookSnapshotUseCase,
	feed *usecase.FeedControlUseCase,
	validation *ValidationService,
	logger *zap.Logger,
) OrderBookServiceServer {
	return &server{
		orderbookSnapshotUseCase: snapshots,
		feedControlUseCase:       feed,
		validationService:        validation,
		logger:                   logger.Named("rpc"),
	}
}

func RegisterOrderBookServiceServer(s grpc.ServiceRegistrar, srv OrderBookServiceServer) {
	s.RegisterService(&OrderBookService_ServiceDesc, srv)
}

type unaryCall[Req proto.Message] func(OrderBookServiceServer, context.Context, Req) (*structpb.Struct, error)

func unaryHandler[Req proto.Message](method string, newReq func() Req, call unaryCall[Req]) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(OrderBookServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OrderBookServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newSymbol() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }

var OrderBookService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderBookServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrderBook",
			Handler:    unaryHandler("GetOrderBook", newSymbol, OrderBookServiceServer.GetOrderBook),
		},
		{
			MethodName: "GetOfficialSnapshot",
			Handler:    unaryHandler("GetOfficialSnapshot", newSymbol, OrderBookServiceServer.GetOfficialSnapshot),
		},
		{
			MethodName: "Reconcile",
			Handler:    unaryHandler("Reconcile", newSymbol, OrderBookServiceServer.Reconcile),
		},
		{
			MethodName: "StartFeed",
			Handler:    unaryHandler("StartFeed", newEmpty, OrderBookServiceServer.StartFeed),
		},
		{
			MethodName: "StopFeed",
			Handler:    unaryHandler("StopFeed", newEmpty, OrderBookServiceServer.StopFeed),
		},
		{
			MethodName: "RestartFeed",
			Handler:    unaryHandler("RestartFeed", newEmpty, OrderBookServiceServer.RestartFeed),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookmirror/v1/orderbook.proto",
}

// OrderBookServiceClient calls OrderBookService over a client connection.
type OrderBookServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderBookServiceClient(cc grpc.ClientConnInterface) *OrderBookServiceClient {
	return &OrderBookServiceClient{cc: cc}
}

func (c *OrderBookServiceClient) invoke(ctx context.Context, method string, in proto.Message, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderBookServiceClient) GetOrderBook(ctx context.Context, symbol string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetOrderBook", wrapperspb.String(symbol), opts...)
}

func (c *OrderBookServiceClient) GetOfficialSnapshot(ctx context.Context, symbol string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetOfficialSnapshot", wrapperspb.String(symbol), opts...)
}

func (c *OrderBookServiceClient) Reconcile(ctx context.Context, symbol string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Reconcile", wrapperspb.String(symbol), opts...)
}

func (c *OrderBookServiceClient) StartFeed(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartFeed", &emptypb.Empty{}, opts...)
}

func (c *OrderBookServiceClient) StopFeed(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopFeed", &emptypb.Empty{}, opts...)
}

func (c *OrderBookServiceClient) RestartFeed(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "RestartFeed", &emptypb.Empty{}, opts...)
}
