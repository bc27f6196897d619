package quotifygrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const serviceName = "quotify.v1.QuoteService"

// QuoteServiceServer is the server-side interface for the quote
// gRPC service.
type QuoteServiceServer interface {
	State(context.Context, *Empty) (*StateResponse, error)
	Refresh(context.Context, *Empty) (*StateResponse, error)
	Initialize(context.Context, *Empty) (*ReceiptResponse, error)
	AddQuote(context.Context, *QuoteRequest) (*ReceiptResponse, error)
	RandomQuote(context.Context, *Empty) (*ReceiptResponse, error)
	SetPendingQuote(context.Context, *QuoteRequest) (*Empty, error)
	GenerateAIQuote(context.Context, *Empty) (*TextResponse, error)
	AcceptAIQuote(context.Context, *Empty) (*TextResponse, error)
	DiscardAIQuote(context.Context, *Empty) (*Empty, error)
	Watch(*Empty, grpc.ServerStream) error
}

// RegisterQuoteServiceServer registers srv on a gRPC server.
func RegisterQuoteServiceServer(s *grpc.Server, srv QuoteServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts a typed unary method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](call func(QuoteServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		return call(srv.(QuoteServiceServer), ctx, req)
	}
}

func handlerWatch(srv any, stream grpc.ServerStream) error {
	req := new(Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(QuoteServiceServer).Watch(req, stream)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*QuoteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "State", Handler: unary(QuoteServiceServer.State)},
		{MethodName: "Refresh", Handler: unary(QuoteServiceServer.Refresh)},
		{MethodName: "Initialize", Handler: unary(QuoteServiceServer.Initialize)},
		{MethodName: "AddQuote", Handler: unary(QuoteServiceServer.AddQuote)},
		{MethodName: "RandomQuote", Handler: unary(QuoteServiceServer.RandomQuote)},
		{MethodName: "SetPendingQuote", Handler: unary(QuoteServiceServer.SetPendingQuote)},
		{MethodName: "GenerateAIQuote", Handler: unary(QuoteServiceServer.GenerateAIQuote)},
		{MethodName: "AcceptAIQuote", Handler: unary(QuoteServiceServer.AcceptAIQuote)},
		{MethodName: "DiscardAIQuote", Handler: unary(QuoteServiceServer.DiscardAIQuote)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       handlerWatch,
			ServerStreams: true,
		},
	},
	Metadata: "quotify/v1/service.cram",
}
