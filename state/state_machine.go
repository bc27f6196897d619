// Package state owns the client's sync state: the account-level flow
// phase, the holder-existence flag, the transaction in-flight guard,
// the projected current quote and the AI staging slot.
//
// Every mutation goes through a named transition. Transitions that
// carry an account, including the AI staging ones, are ignored when
// that account is no longer bound, so results of work started before
// an unbind or rebind cannot leak into the next binding. The pending
// input and the accept/discard actions act on whatever is bound.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Machine is the single source of truth the presentation layer
// observes. It is safe for concurrent use.
type Machine struct {
	// inFlight is the transaction guard. It is only swapped while mu
	// is held so that snapshots see it together with the phase.
	inFlight atomic.Bool

	mu           sync.Mutex
	account      types.Account
	phase        types.Phase
	holderExists bool
	inFlightKind types.TxKind
	inFlightAcct types.Account

	hasQuote bool
	quote    string
	quoteSeq uint64

	hasStaged    bool
	staged       string
	pending      string
	aiLoading    bool
	aiDialogOpen bool

	subs    map[int]chan types.SyncState
	nextSub int
}

// New creates a machine in the Unbound phase.
func New() *Machine {
	return &Machine{subs: make(map[int]chan types.SyncState)}
}

// Phase returns the current flow phase.
func (m *Machine) Phase() types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Account returns the bound account, or "" when unbound.
func (m *Machine) Account() types.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account
}

// InFlight reports whether a transaction is in flight.
func (m *Machine) InFlight() bool {
	return m.inFlight.Load()
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() types.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() types.SyncState {
	s := types.SyncState{
		Account:         m.account,
		Phase:           m.phase,
		HolderExists:    m.holderExists,
		TxInFlight:      m.inFlight.Load(),
		HasQuote:        m.hasQuote,
		CurrentQuote:    m.quote,
		CurrentSequence: m.quoteSeq,
		HasStaged:       m.hasStaged,
		StagedAIQuote:   m.staged,
		PendingQuote:    m.pending,
		AILoading:       m.aiLoading,
		AIDialogOpen:    m.aiDialogOpen,
	}
	if s.TxInFlight {
		s.InFlightKind = m.inFlightKind
	}
	return s
}

// --- Account binding ---

// Bind attaches account and resets every account-derived field.
// Post: phase Unbound with Account set; a probe is expected next.
func (m *Machine) Bind(account types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.account = account
	m.publishLocked()
}

// Unbind detaches the account and resets to Unbound. A transaction
// still in flight keeps the guard until it releases it.
func (m *Machine) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.publishLocked()
}

func (m *Machine) resetLocked() {
	m.account = ""
	m.phase = types.PhaseUnbound
	m.holderExists = false
	m.hasQuote, m.quote, m.quoteSeq = false, "", 0
	m.hasStaged, m.staged = false, ""
	m.pending = ""
	m.aiLoading, m.aiDialogOpen = false, false
}

func (m *Machine) boundLocked(account types.Account) bool {
	return account != "" && m.account == account
}

// --- Holder probe ---

// BeginProbe enters Probing.
// Pre: account is bound and no transaction is in flight.
func (m *Machine) BeginProbe(account types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) {
		return quotify.ErrNotBound
	}
	if m.inFlight.Load() {
		return quotify.ErrTxInFlight
	}
	m.phase = types.PhaseProbing
	m.publishLocked()
	return nil
}

// ProbeFound records that the holder exists. Post: HolderReady.
func (m *Machine) ProbeFound(account types.Account) {
	m.setProbeResult(account, types.PhaseHolderReady, true)
}

// ProbeNotFound records that the holder is absent. Post: HolderMissing.
func (m *Machine) ProbeNotFound(account types.Account) {
	m.setProbeResult(account, types.PhaseHolderMissing, false)
}

// ProbeFailed records a transport failure. holderExists keeps its
// previous value. Post: ProbeFailed.
func (m *Machine) ProbeFailed(account types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) || m.phase != types.PhaseProbing {
		return
	}
	m.phase = types.PhaseProbeFailed
	m.publishLocked()
}

func (m *Machine) setProbeResult(account types.Account, phase types.Phase, exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) || m.phase != types.PhaseProbing {
		return
	}
	m.phase = phase
	m.holderExists = exists
	m.publishLocked()
}

// --- Projection ---

// ObserveQuote applies a projected event. The current quote only
// moves to an equal or higher sequence number than the one already
// observed. Returns whether the event was applied.
func (m *Machine) ObserveQuote(account types.Account, ev types.QuoteAddedEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) {
		return false
	}
	if m.hasQuote && ev.SequenceNumber < m.quoteSeq {
		return false
	}
	changed := !m.hasQuote || m.quote != ev.Quote || m.quoteSeq != ev.SequenceNumber
	m.hasQuote, m.quote, m.quoteSeq = true, ev.Quote, ev.SequenceNumber
	if changed {
		m.publishLocked()
	}
	return true
}

// --- Transactions ---

// AcquireTx takes the in-flight guard for kind.
//
// Pre: account bound (ErrNotBound); no transaction in flight
// (ErrTxInFlight); the probe has settled on HolderReady or
// HolderMissing (ErrProbing while it runs or before it starts,
// ErrHolderUnknown after it failed); holder present for AddQuote and
// RandomQuote (ErrHolderMissing); holder absent for Initialize
// (ErrHolderExists).
// Post: TxInFlight, phase Submitting.
func (m *Machine) AcquireTx(account types.Account, kind types.TxKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) {
		return quotify.ErrNotBound
	}
	if !kind.Valid() {
		return quotify.ErrUnknownKind
	}
	if m.inFlight.Load() {
		return quotify.ErrTxInFlight
	}
	switch m.phase {
	case types.PhaseHolderReady, types.PhaseHolderMissing:
	case types.PhaseProbeFailed:
		return quotify.ErrHolderUnknown
	default:
		return quotify.ErrProbing
	}
	switch kind {
	case types.TxInitialize:
		if m.holderExists {
			return quotify.ErrHolderExists
		}
	default:
		if !m.holderExists {
			return quotify.ErrHolderMissing
		}
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return quotify.ErrTxInFlight
	}
	m.inFlightKind = kind
	m.inFlightAcct = account
	m.phase = types.PhaseSubmitting
	m.publishLocked()
	return nil
}

// HolderCreated records a confirmed Initialize.
func (m *Machine) HolderCreated(account types.Account) {
	m.setHolder(account, true)
}

// HolderReverted records a rejected Initialize, undoing any
// assumption that the holder exists.
func (m *Machine) HolderReverted(account types.Account) {
	m.setHolder(account, false)
}

func (m *Machine) setHolder(account types.Account, exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) || m.holderExists == exists {
		return
	}
	m.holderExists = exists
	m.publishLocked()
}

// ReleaseTx drops the in-flight guard taken for account. The phase
// returns to HolderReady or HolderMissing according to holderExists.
// Safe to call after an unbind; the phase is then left alone.
func (m *Machine) ReleaseTx(account types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inFlight.Load() || m.inFlightAcct != account {
		return
	}
	m.inFlight.Store(false)
	m.inFlightKind = 0
	m.inFlightAcct = ""
	if m.boundLocked(account) && m.phase == types.PhaseSubmitting {
		if m.holderExists {
			m.phase = types.PhaseHolderReady
		} else {
			m.phase = types.PhaseHolderMissing
		}
	}
	m.publishLocked()
}

// --- Pending AddQuote input ---

// SetPending records the AddQuote input being edited.
func (m *Machine) SetPending(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == text {
		return
	}
	m.pending = text
	m.publishLocked()
}

// Pending returns the AddQuote input being edited.
func (m *Machine) Pending() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// ClearPendingIf clears the input after a confirmed AddQuote, unless
// the user has already edited it to something else.
func (m *Machine) ClearPendingIf(account types.Account, submitted string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.boundLocked(account) || m.pending != submitted {
		return
	}
	m.pending = ""
	m.publishLocked()
}

// --- AI staging ---

// BeginGeneration opens the confirmation surface and marks loading
// for a generation requested while account was bound ("" when none).
func (m *Machine) BeginGeneration(account types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account != account {
		return
	}
	m.aiLoading = true
	m.aiDialogOpen = true
	m.publishLocked()
}

// StageAIQuote stores a generated suggestion and ends loading. The
// text is dropped when the surface was closed while generating or the
// binding changed. Returns whether the text was staged.
func (m *Machine) StageAIQuote(account types.Account, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account != account {
		return false
	}
	m.aiLoading = false
	staged := m.aiDialogOpen
	if staged {
		m.hasStaged, m.staged = true, text
	}
	m.publishLocked()
	return staged
}

// GenerationFailed ends loading and leaves the staging slot as it was.
func (m *Machine) GenerationFailed(account types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account != account {
		return
	}
	m.aiLoading = false
	m.publishLocked()
}

// AcceptStaged copies the staged suggestion into the pending AddQuote
// input, clears the stage and closes the confirmation surface.
// Returns ErrNothingStaged when the slot is empty.
func (m *Machine) AcceptStaged() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasStaged {
		return "", quotify.ErrNothingStaged
	}
	text := m.staged
	m.pending = text
	m.hasStaged, m.staged = false, ""
	m.aiDialogOpen = false
	m.publishLocked()
	return text, nil
}

// DiscardStaged clears the stage and closes the confirmation surface.
func (m *Machine) DiscardStaged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasStaged, m.staged = false, ""
	m.aiDialogOpen = false
	m.publishLocked()
}

// --- Subscriptions ---

// Subscribe returns a channel that receives the latest snapshot after
// every transition, starting with the current one. Slow readers only
// see the most recent state. The returned func unsubscribes and
// closes the channel.
func (m *Machine) Subscribe() (<-chan types.SyncState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan types.SyncState, 1)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

func (m *Machine) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	s := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			// Replace the unread snapshot.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
