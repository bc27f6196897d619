// Package quotifytest provides test utilities for code built on
// quotify: configurable mocks for the chain gateway, wallet and
// generator, a recording notifier, a session harness backed by the
// in-memory chain, and a compliance suite for Controller
// implementations.
package quotifytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface checks.
var (
	_ quotify.ChainGateway  = (*MockGateway)(nil)
	_ quotify.Wallet        = (*MockWallet)(nil)
	_ quotify.TextGenerator = (*MockGenerator)(nil)
	_ quotify.Notifier      = (*RecordingNotifier)(nil)
)

// MockGateway is a configurable chain gateway. Unconfigured methods
// serve the Holder and Events fields: the resource exists when
// Holder is true and the event stream is Events.
type MockGateway struct {
	mu     sync.Mutex
	Holder bool
	Events []types.QuoteAddedEvent

	AccountResourceFn    func(context.Context, types.Account, string) (json.RawMessage, error)
	AccountEventsFn      func(context.Context, types.Account, string, string) ([]types.RawEvent, error)
	WaitForTransactionFn func(context.Context, types.TxHash) (types.TxResult, error)

	// Call counters (atomic for concurrent access).
	ResourceCalls atomic.Int64
	EventCalls    atomic.Int64
	WaitCalls     atomic.Int64
}

// SetHolder sets whether the holder resource exists.
func (m *MockGateway) SetHolder(exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Holder = exists
}

// Emit appends an event with the next sequence number.
func (m *MockGateway) Emit(quote string) types.QuoteAddedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := types.QuoteAddedEvent{SequenceNumber: uint64(len(m.Events)) + 1, Quote: quote}
	m.Events = append(m.Events, ev)
	return ev
}

// Calls returns the total number of gateway calls.
func (m *MockGateway) Calls() int64 {
	return m.ResourceCalls.Load() + m.EventCalls.Load() + m.WaitCalls.Load()
}

func (m *MockGateway) AccountResource(ctx context.Context, account types.Account, resourceType string) (json.RawMessage, error) {
	m.ResourceCalls.Add(1)
	if m.AccountResourceFn != nil {
		return m.AccountResourceFn(ctx, account, resourceType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Holder {
		return nil, fmt.Errorf("%w: %s", quotify.ErrResourceNotFound, resourceType)
	}
	return json.RawMessage(`{}`), nil
}

func (m *MockGateway) AccountEvents(ctx context.Context, account types.Account, resourceType, field string) ([]types.RawEvent, error) {
	m.EventCalls.Add(1)
	if m.AccountEventsFn != nil {
		return m.AccountEventsFn(ctx, account, resourceType, field)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raws := make([]types.RawEvent, len(m.Events))
	for i, ev := range m.Events {
		raws[i] = types.NewRawEvent(resourceType+"::QuoteAddedEvent", ev)
	}
	return raws, nil
}

func (m *MockGateway) WaitForTransaction(ctx context.Context, hash types.TxHash) (types.TxResult, error) {
	m.WaitCalls.Add(1)
	if m.WaitForTransactionFn != nil {
		return m.WaitForTransactionFn(ctx, hash)
	}
	return types.TxResult{Hash: hash, Version: 1, Success: true, VMStatus: types.VMStatusSuccess}, nil
}

// MockWallet is a configurable wallet. Without SignAndSubmitFn every
// submission succeeds with a fresh hash.
type MockWallet struct {
	mu       sync.Mutex
	Addr     types.Account
	payloads []types.EntryFunctionPayload

	SignAndSubmitFn func(context.Context, types.EntryFunctionPayload) (types.TxHandle, error)

	SubmitCalls atomic.Int64
}

// NewMockWallet returns a wallet for addr.
func NewMockWallet(addr types.Account) *MockWallet {
	return &MockWallet{Addr: addr}
}

func (w *MockWallet) Account() types.Account { return w.Addr }

func (w *MockWallet) SignAndSubmit(ctx context.Context, payload types.EntryFunctionPayload) (types.TxHandle, error) {
	n := w.SubmitCalls.Add(1)
	w.mu.Lock()
	w.payloads = append(w.payloads, payload)
	w.mu.Unlock()
	if w.SignAndSubmitFn != nil {
		return w.SignAndSubmitFn(ctx, payload)
	}
	return types.TxHandle{Hash: types.TxHash(fmt.Sprintf("0x%064x", n))}, nil
}

// Payloads returns every payload handed to the wallet.
func (w *MockWallet) Payloads() []types.EntryFunctionPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]types.EntryFunctionPayload(nil), w.payloads...)
}

// MockGenerator returns Text, or the result of GenerateFn when set.
type MockGenerator struct {
	Text       string
	GenerateFn func(context.Context, string) (string, error)

	mu      sync.Mutex
	prompts []string
	Calls   atomic.Int64
}

func (g *MockGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	g.Calls.Add(1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.GenerateFn != nil {
		return g.GenerateFn(ctx, prompt)
	}
	return g.Text, nil
}

// Prompts returns every prompt received.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// RecordingNotifier keeps every notification it receives.
type RecordingNotifier struct {
	mu    sync.Mutex
	notes []types.Notification
}

func (r *RecordingNotifier) Notify(n types.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// All returns the recorded notifications in order.
func (r *RecordingNotifier) All() []types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Notification(nil), r.notes...)
}

// Last returns the most recent notification.
func (r *RecordingNotifier) Last() (types.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return types.Notification{}, false
	}
	return r.notes[len(r.notes)-1], true
}

// Messages returns "level: message" for every notification.
func (r *RecordingNotifier) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Level.String() + ": " + n.Message
	}
	return out
}
