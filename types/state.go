package types

import "fmt"

// Phase is the account-level flow state.
type Phase uint8

const (
	// PhaseUnbound: no account is bound.
	PhaseUnbound Phase = iota
	// PhaseProbing: the holder resource lookup is running.
	PhaseProbing
	// PhaseHolderMissing: the account has no QuoteHolder yet. Only
	// Initialize may be submitted.
	PhaseHolderMissing
	// PhaseHolderReady: the holder exists; AddQuote and RandomQuote
	// may be submitted.
	PhaseHolderReady
	// PhaseProbeFailed: the lookup failed for a transport reason.
	// The holder's existence is unknown and a refresh is needed.
	PhaseProbeFailed
	// PhaseSubmitting: a transaction is in flight.
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseUnbound:
		return "Unbound"
	case PhaseProbing:
		return "Probing"
	case PhaseHolderMissing:
		return "HolderMissing"
	case PhaseHolderReady:
		return "HolderReady"
	case PhaseProbeFailed:
		return "ProbeFailed"
	case PhaseSubmitting:
		return "Submitting"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// SyncState is the observable client state. It is a value snapshot;
// the live state is owned by the state machine.
type SyncState struct {
	Account      Account `cramberry:"1"`
	Phase        Phase   `cramberry:"2"`
	HolderExists bool    `cramberry:"3"`
	TxInFlight   bool    `cramberry:"4"`
	InFlightKind TxKind  `cramberry:"5"`

	// CurrentQuote is defined only when HasQuote is set.
	HasQuote        bool   `cramberry:"6"`
	CurrentQuote    string `cramberry:"7"`
	CurrentSequence uint64 `cramberry:"8"`

	// StagedAIQuote is defined only when HasStaged is set.
	HasStaged     bool   `cramberry:"9"`
	StagedAIQuote string `cramberry:"10"`

	// PendingQuote is the AddQuote input the user is editing.
	PendingQuote string `cramberry:"11"`
	AILoading    bool   `cramberry:"12"`
	AIDialogOpen bool   `cramberry:"13"`
}

// Quote returns the current quote and whether it is defined.
func (s SyncState) Quote() (string, bool) {
	return s.CurrentQuote, s.HasQuote
}

// Staged returns the staged AI quote and whether one is staged.
func (s SyncState) Staged() (string, bool) {
	return s.StagedAIQuote, s.HasStaged
}
