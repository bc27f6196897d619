package quotifygrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface check.
var _ quotify.Controller = (*Client)(nil)

// Client implements quotify.Controller against a remote session.
// Typed errors raised by the session are rebuilt on this side, so
// errors.Is and errors.As behave as they would locally.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote quote service.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("quotify client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer metadata.MD
	if err := c.cc.Invoke(ctx, fullMethod(method), req, resp, grpc.Trailer(&trailer)); err != nil {
		return decodeError(err, trailer)
	}
	return nil
}

// --- State ---

func (c *Client) State(ctx context.Context) (types.SyncState, error) {
	resp := new(StateResponse)
	if err := c.invoke(ctx, "State", &Empty{}, resp); err != nil {
		return types.SyncState{}, err
	}
	return resp.State, nil
}

func (c *Client) Refresh(ctx context.Context) (types.SyncState, error) {
	resp := new(StateResponse)
	if err := c.invoke(ctx, "Refresh", &Empty{}, resp); err != nil {
		return types.SyncState{}, err
	}
	return resp.State, nil
}

// Watch streams state snapshots until ctx ends or the server goes
// away. The channel is closed when the stream ends.
func (c *Client) Watch(ctx context.Context) (<-chan types.SyncState, error) {
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Watch",
		ServerStreams: true,
	}, fullMethod("Watch"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	ch := make(chan types.SyncState)
	go func() {
		defer close(ch)
		for {
			msg := new(StateResponse)
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			select {
			case ch <- msg.State:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// --- Transactions ---

func (c *Client) receipt(ctx context.Context, method string, req any) (types.Receipt, error) {
	resp := new(ReceiptResponse)
	if err := c.invoke(ctx, method, req, resp); err != nil {
		return types.Receipt{}, err
	}
	return resp.Receipt, nil
}

func (c *Client) Initialize(ctx context.Context) (types.Receipt, error) {
	return c.receipt(ctx, "Initialize", &Empty{})
}

func (c *Client) AddQuote(ctx context.Context, quote string) (types.Receipt, error) {
	return c.receipt(ctx, "AddQuote", &QuoteRequest{Quote: quote})
}

func (c *Client) RandomQuote(ctx context.Context) (types.Receipt, error) {
	return c.receipt(ctx, "RandomQuote", &Empty{})
}

func (c *Client) SetPendingQuote(ctx context.Context, quote string) error {
	return c.invoke(ctx, "SetPendingQuote", &QuoteRequest{Quote: quote}, new(Empty))
}

// --- AI staging ---

func (c *Client) GenerateAIQuote(ctx context.Context) (string, error) {
	resp := new(TextResponse)
	if err := c.invoke(ctx, "GenerateAIQuote", &Empty{}, resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) AcceptAIQuote(ctx context.Context) (string, error) {
	resp := new(TextResponse)
	if err := c.invoke(ctx, "AcceptAIQuote", &Empty{}, resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) DiscardAIQuote(ctx context.Context) error {
	return c.invoke(ctx, "DiscardAIQuote", &Empty{}, new(Empty))
}
