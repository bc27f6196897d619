// Package session implements the quote client's transaction pipeline.
//
// A Session binds one wallet at a time and drives the sync state
// machine: it probes for the account's quote holder, projects the
// current quote from the account's event stream, runs transactions
// through submit, finality and re-projection, and stages AI quote
// suggestions until the user accepts or discards them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/state"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface check.
var _ quotify.Controller = (*Session)(nil)

// DefaultFinalityTimeout bounds a single finality wait when no
// timeout is configured.
const DefaultFinalityTimeout = 2 * time.Minute

// Session is the in-process controller. It is safe for concurrent use;
// at most one transaction runs at a time.
type Session struct {
	gateway   quotify.ChainGateway
	module    types.ModuleID
	machine   *state.Machine
	probe     *ResourceProbe
	projector *EventProjector

	log             *zap.Logger
	notifier        quotify.Notifier
	generator       quotify.TextGenerator
	prompt          string
	finalityTimeout time.Duration
	now             func() time.Time
	newID           func() string

	aiGroup singleflight.Group

	mu     sync.Mutex
	wallet quotify.Wallet
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithNotifier sets the notification sink. Defaults to logging
// through the session logger.
func WithNotifier(n quotify.Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithGenerator enables AI quote generation.
func WithGenerator(g quotify.TextGenerator) Option {
	return func(s *Session) { s.generator = g }
}

// WithPrompt overrides DefaultPrompt.
func WithPrompt(prompt string) Option {
	return func(s *Session) {
		if prompt != "" {
			s.prompt = prompt
		}
	}
}

// WithFinalityTimeout bounds each finality wait. Zero leaves the wait
// bounded only by the caller's context.
func WithFinalityTimeout(d time.Duration) Option {
	return func(s *Session) { s.finalityTimeout = d }
}

// WithClock sets the notification time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator sets the source of notification and attempt IDs.
// Defaults to UUIDv7.
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) { s.newID = gen }
}

// New creates an unbound session over gw for module.
func New(gw quotify.ChainGateway, module types.ModuleID, opts ...Option) *Session {
	s := &Session{
		gateway:         gw,
		module:          module,
		machine:         state.New(),
		probe:           NewResourceProbe(gw, module),
		projector:       NewEventProjector(gw, module),
		log:             zap.NewNop(),
		prompt:          DefaultPrompt,
		finalityTimeout: DefaultFinalityTimeout,
		now:             time.Now,
		newID:           func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.log)
	}
	return s
}

// Machine returns the underlying state machine.
func (s *Session) Machine() *state.Machine {
	return s.machine
}

// Module returns the module the session targets.
func (s *Session) Module() types.ModuleID {
	return s.module
}

// Bind attaches w's account, resets the state and runs the holder
// probe followed by the event projection. Binding a new wallet
// replaces the previous one.
func (s *Session) Bind(ctx context.Context, w quotify.Wallet) (types.SyncState, error) {
	if w == nil || w.Account().Empty() {
		return s.machine.Snapshot(), quotify.ErrNotBound
	}
	s.mu.Lock()
	s.wallet = w
	s.mu.Unlock()

	s.machine.Bind(w.Account())
	s.log.Info("account bound", zap.Stringer("account", w.Account()))
	return s.Refresh(ctx)
}

// Unbind detaches the wallet and resets the state to Unbound.
func (s *Session) Unbind() {
	s.mu.Lock()
	s.wallet = nil
	s.mu.Unlock()
	s.machine.Unbind()
	s.log.Info("account unbound")
}

func (s *Session) bound() (types.Account, quotify.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil {
		return "", nil
	}
	return s.wallet.Account(), s.wallet
}

// State returns the current snapshot.
func (s *Session) State(_ context.Context) (types.SyncState, error) {
	return s.machine.Snapshot(), nil
}

// Subscribe streams state snapshots; see state.Machine.Subscribe.
func (s *Session) Subscribe() (<-chan types.SyncState, func()) {
	return s.machine.Subscribe()
}

// Refresh probes for the holder and, when it exists, projects the
// current quote. A probe transport failure returns a retryable
// *quotify.ProbeError and leaves holderExists as it was. An empty
// event stream is not an error.
func (s *Session) Refresh(ctx context.Context) (types.SyncState, error) {
	account, wallet := s.bound()
	if wallet == nil {
		return s.machine.Snapshot(), quotify.ErrNotBound
	}
	if err := s.machine.BeginProbe(account); err != nil {
		return s.machine.Snapshot(), err
	}

	exists, err := s.probe.Probe(ctx, account)
	if err != nil {
		s.machine.ProbeFailed(account)
		s.log.Warn("holder probe failed", zap.Stringer("account", account), zap.Error(err))
		s.notify(types.LevelError, "Failed to check quote holder")
		return s.machine.Snapshot(), err
	}
	if !exists {
		s.machine.ProbeNotFound(account)
		s.log.Debug("holder missing", zap.Stringer("account", account))
		return s.machine.Snapshot(), nil
	}

	s.machine.ProbeFound(account)
	if err := s.project(ctx, account); err != nil {
		return s.machine.Snapshot(), err
	}
	return s.machine.Snapshot(), nil
}

// project runs the event projector and applies its result. An empty
// stream returns nil; a fetch failure keeps the displayed quote.
func (s *Session) project(ctx context.Context, account types.Account) error {
	ev, err := s.projector.Project(ctx, account)
	switch {
	case errors.Is(err, quotify.ErrNoEvents):
		s.log.Debug("no quote events", zap.Stringer("account", account))
		return nil
	case err != nil:
		s.log.Warn("event projection failed", zap.Stringer("account", account), zap.Error(err))
		s.notify(types.LevelError, "Failed to fetch latest quote")
		return err
	}
	if s.machine.ObserveQuote(account, ev) {
		s.log.Debug("quote projected", zap.Uint64("sequence", ev.SequenceNumber))
	}
	return nil
}

// SetPendingQuote records the AddQuote input being edited.
func (s *Session) SetPendingQuote(_ context.Context, quote string) error {
	s.machine.SetPending(quote)
	return nil
}

// Close unbinds the session.
func (s *Session) Close() error {
	s.Unbind()
	return nil
}
