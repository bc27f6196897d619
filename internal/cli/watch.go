package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	quotifygrpc "github.com/blockberries/quotify/grpc"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes from a running server",
		Long: `Stream state changes from a running server until interrupted.
Requires --remote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Remote == "" {
				return errors.New("watch requires --remote")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, opts, cmd)
		},
	}
}

func watch(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	client, err := quotifygrpc.Dial(ctx, opts.Remote,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ch, err := client.Watch(ctx)
	if err != nil {
		return err
	}
	for st := range ch {
		if err := renderState(cmd.OutOrStdout(), opts.Format, st); err != nil {
			return err
		}
	}
	return nil
}
