// Package chainsim implements an in-memory chain that hosts the
// RandomQuote module. It serves the same calls a node would (holder
// resource, quote event stream, submission and finality) so the
// client pipeline can run end to end without a network.
//
// Module semantics:
//
//	initialize()          creates the holder; aborts if it exists
//	add_quote(quote)      appends quote and emits a QuoteAddedEvent
//	get_random_quotee()   re-emits a randomly chosen stored quote
//
// add_quote and get_random_quotee abort when the holder is missing;
// get_random_quotee also aborts when no quote is stored.
package chainsim

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface checks.
var (
	_ quotify.ChainGateway = (*Chain)(nil)
	_ quotify.Wallet       = (*Wallet)(nil)
)

// Abort statuses reported for failed executions.
const (
	StatusAlreadyInitialized = "Move abort in RandomQuote: E_ALREADY_INITIALIZED(0x1)"
	StatusNotInitialized     = "Move abort in RandomQuote: E_NOT_INITIALIZED(0x2)"
	StatusNoQuotes           = "Move abort in RandomQuote: E_NO_QUOTES(0x3)"
	StatusUnknownFunction    = "FUNCTION_RESOLUTION_FAILURE"
)

// Chain is a single-node in-memory ledger for one module.
type Chain struct {
	mu        sync.Mutex
	module    types.ModuleID
	holders   map[types.Account]*holder
	txs       map[types.TxHash]*tx
	version   uint64
	txCounter uint64
	rng       *rand.Rand

	finalityPolls int
	pollInterval  time.Duration
	rejectNext    error

	// Call counters (atomic for concurrent access).
	ResourceReads atomic.Int64
	EventReads    atomic.Int64
	Submits       atomic.Int64
	Waits         atomic.Int64
}

type holder struct {
	quotes []string
	events []types.QuoteAddedEvent
}

type tx struct {
	hash    types.TxHash
	sender  types.Account
	payload types.EntryFunctionPayload
	polls   int
	result  *types.TxResult
}

// Option configures a Chain.
type Option func(*Chain)

// WithSeed fixes the random quote selection.
func WithSeed(seed uint64) Option {
	return func(c *Chain) { c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithFinality makes each transaction stay pending for polls
// WaitForTransaction rounds, each lasting interval.
func WithFinality(polls int, interval time.Duration) Option {
	return func(c *Chain) {
		c.finalityPolls = polls
		c.pollInterval = interval
	}
}

// New creates an empty chain hosting module.
func New(module types.ModuleID, opts ...Option) *Chain {
	c := &Chain{
		module:  module,
		holders: make(map[types.Account]*holder),
		txs:     make(map[types.TxHash]*tx),
		rng:     rand.New(rand.NewPCG(1, 2)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Module returns the hosted module.
func (c *Chain) Module() types.ModuleID { return c.module }

// Seed creates a holder for account holding quotes, each with its
// QuoteAddedEvent, as if added by earlier transactions.
func (c *Chain) Seed(account types.Account, quotes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.holders[account]
	if h == nil {
		h = &holder{}
		c.holders[account] = h
	}
	for _, q := range quotes {
		h.quotes = append(h.quotes, q)
		h.emit(q)
	}
}

// RejectNextSubmit makes the next submission fail with err before it
// reaches the ledger, as a wallet refusal would.
func (c *Chain) RejectNextSubmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectNext = err
}

// Quotes returns the quotes stored for account.
func (c *Chain) Quotes(account types.Account) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.holders[account]
	if h == nil {
		return nil
	}
	return append([]string(nil), h.quotes...)
}

// Events returns the quote events emitted for account.
func (c *Chain) Events(account types.Account) []types.QuoteAddedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.holders[account]
	if h == nil {
		return nil
	}
	return append([]types.QuoteAddedEvent(nil), h.events...)
}

// --- ChainGateway ---

func (c *Chain) AccountResource(_ context.Context, account types.Account, resourceType string) (json.RawMessage, error) {
	c.ResourceReads.Add(1)
	if resourceType != c.module.HolderType() {
		return nil, fmt.Errorf("%w: %s", quotify.ErrResourceNotFound, resourceType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.holders[account]
	if h == nil {
		return nil, fmt.Errorf("%w: %s at %s", quotify.ErrResourceNotFound, resourceType, account)
	}
	return json.Marshal(map[string]any{
		"quotes": h.quotes,
		types.EventField: map[string]string{
			"counter": fmt.Sprintf("%d", len(h.events)),
		},
	})
}

func (c *Chain) AccountEvents(_ context.Context, account types.Account, resourceType, field string) ([]types.RawEvent, error) {
	c.EventReads.Add(1)
	if resourceType != c.module.HolderType() || field != types.EventField {
		return nil, fmt.Errorf("%w: %s/%s", quotify.ErrResourceNotFound, resourceType, field)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.holders[account]
	if h == nil {
		return nil, fmt.Errorf("%w: %s at %s", quotify.ErrResourceNotFound, resourceType, account)
	}
	eventType := c.module.String() + "::QuoteAddedEvent"
	raws := make([]types.RawEvent, len(h.events))
	for i, ev := range h.events {
		raws[i] = types.NewRawEvent(eventType, ev)
	}
	return raws, nil
}

// Submit queues a transaction from sender.
func (c *Chain) Submit(_ context.Context, sender types.Account, payload types.EntryFunctionPayload) (types.TxHandle, error) {
	c.Submits.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.rejectNext; err != nil {
		c.rejectNext = nil
		return types.TxHandle{}, err
	}
	c.txCounter++
	hash := types.TxHash(fmt.Sprintf("0x%064x", c.txCounter))
	c.txs[hash] = &tx{hash: hash, sender: sender, payload: payload, polls: c.finalityPolls}
	return types.TxHandle{Hash: hash}, nil
}

func (c *Chain) WaitForTransaction(ctx context.Context, hash types.TxHash) (types.TxResult, error) {
	c.Waits.Add(1)
	for {
		c.mu.Lock()
		t, ok := c.txs[hash]
		if !ok {
			c.mu.Unlock()
			return types.TxResult{}, fmt.Errorf("chainsim: unknown transaction %s", hash)
		}
		if t.result == nil && t.polls <= 0 {
			t.result = c.execute(t)
		}
		if t.result != nil {
			res := *t.result
			c.mu.Unlock()
			return res, nil
		}
		t.polls--
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.TxResult{}, fmt.Errorf("chainsim: waiting for %s: %w", hash, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// execute applies t to the ledger. Caller holds c.mu.
func (c *Chain) execute(t *tx) *types.TxResult {
	c.version++
	res := &types.TxResult{Hash: t.hash, Version: c.version}
	status := c.apply(t.sender, t.payload)
	res.Success = status == ""
	if res.Success {
		res.VMStatus = types.VMStatusSuccess
	} else {
		res.VMStatus = status
	}
	return res
}

func (c *Chain) apply(sender types.Account, p types.EntryFunctionPayload) string {
	h := c.holders[sender]
	switch p.Function {
	case c.module.Function(types.FnInitialize):
		if h != nil {
			return StatusAlreadyInitialized
		}
		c.holders[sender] = &holder{}
	case c.module.Function(types.FnAddQuote):
		if h == nil {
			return StatusNotInitialized
		}
		if len(p.Arguments) != 1 {
			return StatusUnknownFunction
		}
		h.quotes = append(h.quotes, p.Arguments[0])
		h.emit(p.Arguments[0])
	case c.module.Function(types.FnRandomQuote):
		if h == nil {
			return StatusNotInitialized
		}
		if len(h.quotes) == 0 {
			return StatusNoQuotes
		}
		h.emit(h.quotes[c.rng.IntN(len(h.quotes))])
	default:
		return StatusUnknownFunction
	}
	return ""
}

func (h *holder) emit(quote string) {
	h.events = append(h.events, types.QuoteAddedEvent{
		SequenceNumber: uint64(len(h.events)),
		Quote:          quote,
	})
}

// --- Wallet ---

// Wallet signs for one account on the simulated chain.
type Wallet struct {
	chain   *Chain
	account types.Account
}

// Wallet returns a wallet for account.
func (c *Chain) Wallet(account types.Account) *Wallet {
	return &Wallet{chain: c, account: account}
}

func (w *Wallet) Account() types.Account { return w.account }

func (w *Wallet) SignAndSubmit(ctx context.Context, payload types.EntryFunctionPayload) (types.TxHandle, error) {
	return w.chain.Submit(ctx, w.account, payload)
}
