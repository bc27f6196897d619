package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	quotifygrpc "github.com/blockberries/quotify/grpc"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bound session over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")

	return cmd
}

func serve(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	if opts.Remote != "" {
		return errors.New("serve runs a local session; --remote is not allowed")
	}
	addr := opts.Listen
	if addr == "" {
		addr = opts.cfg.Server.Listen
	}
	log := opts.log

	b, err := openLocal(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer b.Close()

	if b.node != nil {
		info, err := b.node.LedgerInfo(ctx)
		if err != nil {
			log.Warn("ledger info unavailable", zap.Error(err))
		} else {
			log.Info("connected to node",
				zap.Int("chain_id", info.ChainID),
				zap.String("ledger_version", info.LedgerVersion),
			)
		}
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	gs := grpc.NewServer()
	quotifygrpc.NewGRPCServer(b.session, log.Named("grpc")).Register(gs)

	fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", lis.Addr())
	log.Info("serving", zap.Stringer("addr", lis.Addr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		gs.GracefulStop()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	log.Info("server stopped")
	return nil
}
