package quotifygrpc

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface check.
var _ QuoteServiceServer = (*GRPCServer)(nil)

// Backend is a controller that can also stream its state.
type Backend interface {
	quotify.Controller
	Subscribe() (<-chan types.SyncState, func())
}

// GRPCServer exposes a Backend as a gRPC service. Errors are sent as
// status codes with trailer metadata so the client can rebuild the
// typed errors.
type GRPCServer struct {
	backend Backend
	log     *zap.Logger
}

// NewGRPCServer creates a server for backend. A nil logger disables
// logging.
func NewGRPCServer(backend Backend, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCServer{backend: backend, log: log}
}

// Register adds the quote service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterQuoteServiceServer(gs, s)
}

// Serve starts a gRPC server on lis and blocks until it stops.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

func (s *GRPCServer) fail(ctx context.Context, method string, err error) error {
	md, st := encodeError(err)
	if trErr := grpc.SetTrailer(ctx, md); trErr != nil {
		s.log.Debug("set trailer", zap.String("method", method), zap.Error(trErr))
	}
	s.log.Debug("call failed", zap.String("method", method), zap.Error(err))
	return st
}

// --- State ---

func (s *GRPCServer) State(ctx context.Context, _ *Empty) (*StateResponse, error) {
	st, err := s.backend.State(ctx)
	if err != nil {
		return nil, s.fail(ctx, "State", err)
	}
	return &StateResponse{State: st}, nil
}

func (s *GRPCServer) Refresh(ctx context.Context, _ *Empty) (*StateResponse, error) {
	st, err := s.backend.Refresh(ctx)
	if err != nil {
		return nil, s.fail(ctx, "Refresh", err)
	}
	return &StateResponse{State: st}, nil
}

func (s *GRPCServer) Watch(_ *Empty, stream grpc.ServerStream) error {
	ch, cancel := s.backend.Subscribe()
	defer cancel()
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case st, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&StateResponse{State: st}); err != nil {
				return err
			}
		}
	}
}

// --- Transactions ---

func (s *GRPCServer) Initialize(ctx context.Context, _ *Empty) (*ReceiptResponse, error) {
	r, err := s.backend.Initialize(ctx)
	if err != nil {
		return nil, s.fail(ctx, "Initialize", err)
	}
	return &ReceiptResponse{Receipt: r}, nil
}

func (s *GRPCServer) AddQuote(ctx context.Context, req *QuoteRequest) (*ReceiptResponse, error) {
	r, err := s.backend.AddQuote(ctx, req.Quote)
	if err != nil {
		return nil, s.fail(ctx, "AddQuote", err)
	}
	return &ReceiptResponse{Receipt: r}, nil
}

func (s *GRPCServer) RandomQuote(ctx context.Context, _ *Empty) (*ReceiptResponse, error) {
	r, err := s.backend.RandomQuote(ctx)
	if err != nil {
		return nil, s.fail(ctx, "RandomQuote", err)
	}
	return &ReceiptResponse{Receipt: r}, nil
}

func (s *GRPCServer) SetPendingQuote(ctx context.Context, req *QuoteRequest) (*Empty, error) {
	if err := s.backend.SetPendingQuote(ctx, req.Quote); err != nil {
		return nil, s.fail(ctx, "SetPendingQuote", err)
	}
	return &Empty{}, nil
}

// --- AI staging ---

func (s *GRPCServer) GenerateAIQuote(ctx context.Context, _ *Empty) (*TextResponse, error) {
	text, err := s.backend.GenerateAIQuote(ctx)
	if err != nil {
		return nil, s.fail(ctx, "GenerateAIQuote", err)
	}
	return &TextResponse{Text: text}, nil
}

func (s *GRPCServer) AcceptAIQuote(ctx context.Context, _ *Empty) (*TextResponse, error) {
	text, err := s.backend.AcceptAIQuote(ctx)
	if err != nil {
		return nil, s.fail(ctx, "AcceptAIQuote", err)
	}
	return &TextResponse{Text: text}, nil
}

func (s *GRPCServer) DiscardAIQuote(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.backend.DiscardAIQuote(ctx); err != nil {
		return nil, s.fail(ctx, "DiscardAIQuote", err)
	}
	return &Empty{}, nil
}
