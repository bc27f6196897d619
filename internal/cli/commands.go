package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockberries/quotify"
)

// withController opens a controller for one command and closes it
// afterwards.
func withController(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, quotify.Controller) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctrl, err := openController(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer ctrl.Close()
	return fn(ctx, ctrl)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the holder state and the latest quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, opts, func(ctx context.Context, c quotify.Controller) error {
				st, err := c.Refresh(ctx)
				if err != nil {
					return err
				}
				return renderState(cmd.OutOrStdout(), opts.Format, st)
			})
		},
	}
}

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the quote holder for the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, opts, func(ctx context.Context, c quotify.Controller) error {
				r, err := c.Initialize(ctx)
				if err != nil {
					return err
				}
				return renderReceipt(cmd.OutOrStdout(), opts.Format, r)
			})
		},
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <quote>",
		Short: "Add a quote",
		Long: `Add a quote to the holder. Multiple arguments are joined with spaces.

Example:
  quotify add "Stay hungry, stay foolish."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quote := strings.Join(args, " ")
			return withController(cmd, opts, func(ctx context.Context, c quotify.Controller) error {
				r, err := c.AddQuote(ctx, quote)
				if err != nil {
					return err
				}
				return renderReceipt(cmd.OutOrStdout(), opts.Format, r)
			})
		},
	}
}

// NewRandomCommand creates the random command.
func NewRandomCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "random",
		Short: "Rotate to a random stored quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, opts, func(ctx context.Context, c quotify.Controller) error {
				r, err := c.RandomQuote(ctx)
				if err != nil {
					return err
				}
				return renderReceipt(cmd.OutOrStdout(), opts.Format, r)
			})
		},
	}
}

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Accept bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Draft a quote with Gemini",
		Long: `Draft a quote with Gemini. The draft is shown but not submitted.

With --accept the draft is accepted and submitted as a new quote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, opts.RootOptions, func(ctx context.Context, c quotify.Controller) error {
				text, err := c.GenerateAIQuote(ctx)
				if err != nil {
					return err
				}
				if !opts.Accept {
					return renderText(cmd.OutOrStdout(), opts.Format, "draft", text)
				}
				accepted, err := c.AcceptAIQuote(ctx)
				if err != nil {
					return err
				}
				r, err := c.AddQuote(ctx, accepted)
				if err != nil {
					return err
				}
				return renderReceipt(cmd.OutOrStdout(), opts.Format, r)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Accept, "accept", false, "submit the draft as a new quote")

	return cmd
}
