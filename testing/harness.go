package quotifytest

import (
	"context"
	"testing"

	"github.com/blockberries/quotify/example/chainsim"
	"github.com/blockberries/quotify/session"
	"github.com/blockberries/quotify/types"
)

// TestAccount is the account the harness binds.
const TestAccount types.Account = "0xa11ce"

// TestModule is the module the harness deploys.
var TestModule = types.ModuleID{Address: "0xc0ffee", Name: types.DefaultModuleName}

// Harness drives a session against an in-memory chain and fails the
// test on unexpected errors.
type Harness struct {
	t       *testing.T
	Chain   *chainsim.Chain
	Session *session.Session
	Notes   *RecordingNotifier
	Gen     *MockGenerator
	Wallet  *chainsim.Wallet
}

// NewHarness creates a session bound to TestAccount on a fresh chain.
// Extra options are applied after the harness defaults.
func NewHarness(t *testing.T, opts ...session.Option) *Harness {
	t.Helper()
	h := &Harness{
		t:     t,
		Chain: chainsim.New(TestModule, chainsim.WithSeed(7)),
		Notes: &RecordingNotifier{},
		Gen:   &MockGenerator{Text: "Stay the course."},
	}
	all := append([]session.Option{
		session.WithNotifier(h.Notes),
		session.WithGenerator(h.Gen),
	}, opts...)
	h.Session = session.New(h.Chain, TestModule, all...)
	h.Wallet = h.Chain.Wallet(TestAccount)
	t.Cleanup(func() { _ = h.Session.Close() })
	return h
}

// Bind binds the harness wallet and returns the resulting state.
func (h *Harness) Bind() types.SyncState {
	h.t.Helper()
	st, err := h.Session.Bind(context.Background(), h.Wallet)
	if err != nil {
		h.t.Fatalf("Bind failed: %v", err)
	}
	return st
}

// State returns the current snapshot.
func (h *Harness) State() types.SyncState {
	h.t.Helper()
	st, err := h.Session.State(context.Background())
	if err != nil {
		h.t.Fatalf("State failed: %v", err)
	}
	return st
}

// Initialize creates the holder.
func (h *Harness) Initialize() types.Receipt {
	h.t.Helper()
	r, err := h.Session.Initialize(context.Background())
	if err != nil {
		h.t.Fatalf("Initialize failed: %v", err)
	}
	return r
}

// AddQuote stores quote.
func (h *Harness) AddQuote(quote string) types.Receipt {
	h.t.Helper()
	r, err := h.Session.AddQuote(context.Background(), quote)
	if err != nil {
		h.t.Fatalf("AddQuote(%q) failed: %v", quote, err)
	}
	return r
}

// RandomQuote surfaces a stored quote.
func (h *Harness) RandomQuote() types.Receipt {
	h.t.Helper()
	r, err := h.Session.RandomQuote(context.Background())
	if err != nil {
		h.t.Fatalf("RandomQuote failed: %v", err)
	}
	return r
}

// Ready binds and initializes, leaving the holder in place.
func (h *Harness) Ready() types.SyncState {
	h.t.Helper()
	h.Bind()
	h.Initialize()
	return h.State()
}

// MustQuote asserts that the current quote is want.
func (h *Harness) MustQuote(want string) {
	h.t.Helper()
	st := h.State()
	got, ok := st.Quote()
	if !ok {
		h.t.Fatalf("expected quote %q, got none", want)
	}
	if got != want {
		h.t.Fatalf("expected quote %q, got %q", want, got)
	}
}

// MustIdle asserts that no transaction is in flight.
func (h *Harness) MustIdle() {
	h.t.Helper()
	if st := h.State(); st.TxInFlight {
		h.t.Fatalf("expected no transaction in flight, got kind=%s", st.InFlightKind)
	}
}
