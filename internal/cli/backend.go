package cli

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/aptos"
	"github.com/blockberries/quotify/example/chainsim"
	"github.com/blockberries/quotify/gemini"
	quotifygrpc "github.com/blockberries/quotify/grpc"
	"github.com/blockberries/quotify/session"
	"github.com/blockberries/quotify/types"
	"github.com/blockberries/quotify/wallet"
)

// SimulatedAccount is bound in --simulate mode when no key or address
// is configured.
const SimulatedAccount types.Account = "0x5117"

// localBackend is a session bound to the configured wallet.
type localBackend struct {
	session *session.Session
	node    *aptos.Client // nil when simulating
}

func (b *localBackend) Close() error { return b.session.Close() }

// openController connects to --remote when set and otherwise builds a
// local session.
func openController(ctx context.Context, opts *RootOptions, notes io.Writer) (quotify.Controller, error) {
	if opts.Remote != "" {
		client, err := quotifygrpc.Dial(ctx, opts.Remote,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	b, err := openLocal(ctx, opts, notes)
	if err != nil {
		return nil, err
	}
	return b.session, nil
}

func openLocal(ctx context.Context, opts *RootOptions, notes io.Writer) (*localBackend, error) {
	cfg := opts.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	module := cfg.Module()
	log := opts.log

	sessOpts := []session.Option{
		session.WithLogger(log.Named("session")),
		session.WithFinalityTimeout(cfg.GetFinalityTimeout()),
		session.WithNotifier(&writerNotifier{w: notes, log: session.NewLogNotifier(log.Named("notify"))}),
	}
	if cfg.AI.Prompt != "" {
		sessOpts = append(sessOpts, session.WithPrompt(cfg.AI.Prompt))
	}
	if cfg.AIEnabled() {
		gen, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			BaseURL: cfg.AI.BaseURL,
			Timeout: cfg.GetAITimeout(),
		})
		if err != nil {
			return nil, err
		}
		sessOpts = append(sessOpts, session.WithGenerator(gen))
	}

	var (
		gw   quotify.ChainGateway
		w    quotify.Wallet
		node *aptos.Client
	)
	if cfg.Chain.Simulate {
		chain := chainsim.New(module)
		gw = chain
		w = chain.Wallet(simulatedAccount(cfg.Wallet.PrivateKey, cfg.Wallet.Address))
		log.Info("using simulated chain", zap.Stringer("module", module))
	} else {
		node = aptos.NewClient(aptos.Config{
			NodeURL:      cfg.Chain.NodeURL,
			Timeout:      cfg.GetRequestTimeout(),
			PollInterval: cfg.GetPollInterval(),
		}, aptos.WithLogger(log.Named("aptos")))
		kw, err := wallet.FromHex(node, cfg.Wallet.PrivateKey,
			wallet.WithAccount(types.Account(cfg.Wallet.Address)),
			wallet.WithGas(cfg.Wallet.MaxGasAmount, cfg.Wallet.GasUnitPrice),
			wallet.WithExpiration(cfg.GetExpiration()),
			wallet.WithLogger(log.Named("wallet")),
		)
		if err != nil {
			return nil, err
		}
		gw, w = node, kw
	}

	s := session.New(gw, module, sessOpts...)
	if err := bindSession(ctx, s, w, log); err != nil {
		_ = s.Close()
		return nil, err
	}
	return &localBackend{session: s, node: node}, nil
}

// bindSession binds w and runs the first refresh. A retryable read
// failure leaves the session bound in ProbeFailed so a later Refresh
// can recover; anything else is fatal.
func bindSession(ctx context.Context, s *session.Session, w quotify.Wallet, log *zap.Logger) error {
	_, err := s.Bind(ctx, w)
	switch {
	case err == nil:
		return nil
	case quotify.IsRetryable(err):
		log.Warn("initial refresh failed, continuing", zap.Stringer("account", w.Account()), zap.Error(err))
		return nil
	default:
		return fmt.Errorf("bind %s: %w", w.Account(), err)
	}
}

func simulatedAccount(keyHex, address string) types.Account {
	if address != "" {
		return types.Account(address).Normalize()
	}
	if keyHex != "" {
		if kw, err := wallet.FromHex(nil, keyHex); err == nil {
			return kw.Account()
		}
	}
	return SimulatedAccount
}

// writerNotifier prints notifications for the user and logs them.
type writerNotifier struct {
	w   io.Writer
	log quotify.Notifier
}

func (n *writerNotifier) Notify(note types.Notification) {
	if n.w != nil {
		fmt.Fprintf(n.w, "[%s] %s\n", note.Level, note.Message)
	}
	n.log.Notify(note)
}
