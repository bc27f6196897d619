package state

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

const acct = types.Account("0xa11ce")

func readyMachine(t *testing.T) *Machine {
	t.Helper()
	m := New()
	m.Bind(acct)
	if err := m.BeginProbe(acct); err != nil {
		t.Fatalf("BeginProbe: %v", err)
	}
	m.ProbeFound(acct)
	return m
}

func TestMachine_HappyPath(t *testing.T) {
	m := New()
	if m.Phase() != types.PhaseUnbound {
		t.Fatalf("expected Unbound, got %s", m.Phase())
	}

	m.Bind(acct)
	if err := m.BeginProbe(acct); err != nil {
		t.Fatalf("BeginProbe: %v", err)
	}
	if m.Phase() != types.PhaseProbing {
		t.Fatalf("expected Probing, got %s", m.Phase())
	}
	m.ProbeNotFound(acct)
	if m.Phase() != types.PhaseHolderMissing {
		t.Fatalf("expected HolderMissing, got %s", m.Phase())
	}

	// HolderMissing -> Submitting(Initialize) -> HolderReady
	if err := m.AcquireTx(acct, types.TxInitialize); err != nil {
		t.Fatalf("AcquireTx: %v", err)
	}
	if m.Phase() != types.PhaseSubmitting || !m.InFlight() {
		t.Fatalf("expected Submitting with tx in flight, got %s", m.Phase())
	}
	m.HolderCreated(acct)
	m.ReleaseTx(acct)

	if m.Phase() != types.PhaseHolderReady {
		t.Fatalf("expected HolderReady after initialize, got %s", m.Phase())
	}
	if m.InFlight() {
		t.Fatal("expected guard released")
	}

	// Should be able to cycle again.
	for i := 0; i < 2; i++ {
		if err := m.AcquireTx(acct, types.TxAddQuote); err != nil {
			t.Fatalf("AcquireTx #%d: %v", i, err)
		}
		m.ReleaseTx(acct)
	}
	if m.Phase() != types.PhaseHolderReady {
		t.Fatalf("expected HolderReady, got %s", m.Phase())
	}
}

func TestMachine_SecondAcquireRejected(t *testing.T) {
	m := readyMachine(t)
	if err := m.AcquireTx(acct, types.TxRandomQuote); err != nil {
		t.Fatalf("AcquireTx: %v", err)
	}
	if err := m.AcquireTx(acct, types.TxAddQuote); !errors.Is(err, quotify.ErrTxInFlight) {
		t.Fatalf("expected ErrTxInFlight, got %v", err)
	}
	if err := m.BeginProbe(acct); !errors.Is(err, quotify.ErrTxInFlight) {
		t.Fatalf("expected probe to be refused while in flight, got %v", err)
	}
	m.ReleaseTx(acct)
	if err := m.AcquireTx(acct, types.TxAddQuote); err != nil {
		t.Fatalf("expected acquire after release, got %v", err)
	}
}

func TestMachine_Preconditions(t *testing.T) {
	m := New()
	if err := m.AcquireTx(acct, types.TxInitialize); !errors.Is(err, quotify.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}

	m = readyMachine(t)
	if err := m.AcquireTx(acct, types.TxInitialize); !errors.Is(err, quotify.ErrHolderExists) {
		t.Fatalf("expected ErrHolderExists, got %v", err)
	}
	if err := m.AcquireTx(acct, types.TxKind(9)); !errors.Is(err, quotify.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	m.Bind(acct)
	if err := m.BeginProbe(acct); err != nil {
		t.Fatal(err)
	}
	m.ProbeNotFound(acct)
	if err := m.AcquireTx(acct, types.TxAddQuote); !errors.Is(err, quotify.ErrHolderMissing) {
		t.Fatalf("expected ErrHolderMissing, got %v", err)
	}
	if m.InFlight() {
		t.Fatal("a failed precondition must not hold the guard")
	}
}

func TestMachine_SubmitWaitsForProbe(t *testing.T) {
	m := New()
	m.Bind(acct)
	if err := m.AcquireTx(acct, types.TxInitialize); !errors.Is(err, quotify.ErrProbing) {
		t.Fatalf("before the probe: expected ErrProbing, got %v", err)
	}

	if err := m.BeginProbe(acct); err != nil {
		t.Fatal(err)
	}
	for _, kind := range []types.TxKind{types.TxInitialize, types.TxAddQuote, types.TxRandomQuote} {
		if err := m.AcquireTx(acct, kind); !errors.Is(err, quotify.ErrProbing) {
			t.Fatalf("%s during the probe: expected ErrProbing, got %v", kind, err)
		}
	}
	if m.InFlight() {
		t.Fatal("a refused submission must not hold the guard")
	}

	m.ProbeFound(acct)
	s := m.Snapshot()
	if s.Phase != types.PhaseHolderReady || !s.HolderExists {
		t.Fatalf("probe result must still apply, got %+v", s)
	}
}

func TestMachine_SubmitAfterFailedProbe(t *testing.T) {
	m := readyMachine(t)
	if err := m.BeginProbe(acct); err != nil {
		t.Fatal(err)
	}
	m.ProbeFailed(acct)

	if err := m.AcquireTx(acct, types.TxAddQuote); !errors.Is(err, quotify.ErrHolderUnknown) {
		t.Fatalf("expected ErrHolderUnknown, got %v", err)
	}

	if err := m.BeginProbe(acct); err != nil {
		t.Fatal(err)
	}
	m.ProbeFound(acct)
	if err := m.AcquireTx(acct, types.TxAddQuote); err != nil {
		t.Fatalf("expected acquire after a successful refresh, got %v", err)
	}
}

func TestMachine_InitializeRejectedReverts(t *testing.T) {
	m := New()
	m.Bind(acct)
	_ = m.BeginProbe(acct)
	m.ProbeNotFound(acct)

	if err := m.AcquireTx(acct, types.TxInitialize); err != nil {
		t.Fatal(err)
	}
	m.HolderReverted(acct)
	m.ReleaseTx(acct)

	s := m.Snapshot()
	if s.HolderExists || s.TxInFlight || s.Phase != types.PhaseHolderMissing {
		t.Fatalf("unexpected state after rejected initialize: %+v", s)
	}
}

func TestMachine_ProbeFailedKeepsHolder(t *testing.T) {
	m := readyMachine(t)
	if err := m.BeginProbe(acct); err != nil {
		t.Fatal(err)
	}
	m.ProbeFailed(acct)

	s := m.Snapshot()
	if s.Phase != types.PhaseProbeFailed {
		t.Fatalf("expected ProbeFailed, got %s", s.Phase)
	}
	if !s.HolderExists {
		t.Fatal("a transport failure must not clear holderExists")
	}
}

func TestMachine_ObserveQuoteMonotonic(t *testing.T) {
	m := readyMachine(t)

	if !m.ObserveQuote(acct, types.QuoteAddedEvent{SequenceNumber: 2, Quote: "B"}) {
		t.Fatal("expected first observation to apply")
	}
	if m.ObserveQuote(acct, types.QuoteAddedEvent{SequenceNumber: 1, Quote: "A"}) {
		t.Fatal("a lower sequence must not regress the quote")
	}
	if !m.ObserveQuote(acct, types.QuoteAddedEvent{SequenceNumber: 2, Quote: "B"}) {
		t.Fatal("re-observing the same event is idempotent")
	}
	s := m.Snapshot()
	if q, ok := s.Quote(); !ok || q != "B" || s.CurrentSequence != 2 {
		t.Fatalf("expected B@2, got %q@%d (ok=%v)", q, s.CurrentSequence, ok)
	}

	if m.ObserveQuote("0xother", types.QuoteAddedEvent{SequenceNumber: 9, Quote: "X"}) {
		t.Fatal("events for an unbound account must be ignored")
	}
}

func TestMachine_StagingIsolation(t *testing.T) {
	m := readyMachine(t)
	m.ObserveQuote(acct, types.QuoteAddedEvent{SequenceNumber: 1, Quote: "current"})

	m.BeginGeneration(acct)
	if s := m.Snapshot(); !s.AILoading || !s.AIDialogOpen {
		t.Fatalf("expected loading with dialog open, got %+v", s)
	}
	if !m.StageAIQuote(acct, "Stay the course.") {
		t.Fatal("expected the suggestion to be staged")
	}

	text, err := m.AcceptStaged()
	if err != nil {
		t.Fatalf("AcceptStaged: %v", err)
	}
	if text != "Stay the course." {
		t.Fatalf("unexpected accepted text %q", text)
	}

	want := types.SyncState{
		Account:         acct,
		Phase:           types.PhaseHolderReady,
		HolderExists:    true,
		HasQuote:        true,
		CurrentQuote:    "current",
		CurrentSequence: 1,
		PendingQuote:    "Stay the course.",
	}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	if _, err := m.AcceptStaged(); !errors.Is(err, quotify.ErrNothingStaged) {
		t.Fatalf("expected ErrNothingStaged, got %v", err)
	}
}

func TestMachine_GenerationFailedKeepsStage(t *testing.T) {
	m := New()
	m.BeginGeneration("")
	m.StageAIQuote("", "first")
	m.BeginGeneration("")
	m.GenerationFailed("")

	s := m.Snapshot()
	if staged, ok := s.Staged(); !ok || staged != "first" {
		t.Fatalf("expected previous stage kept, got %q (ok=%v)", staged, ok)
	}
	if s.AILoading {
		t.Fatal("expected loading cleared")
	}

	m.DiscardStaged()
	s = m.Snapshot()
	if s.HasStaged || s.AIDialogOpen {
		t.Fatalf("expected discarded stage and closed dialog, got %+v", s)
	}
}

func TestMachine_DiscardDuringGeneration(t *testing.T) {
	m := readyMachine(t)
	m.BeginGeneration(acct)
	m.DiscardStaged()

	if m.StageAIQuote(acct, "late") {
		t.Fatal("a suggestion arriving after discard must be dropped")
	}
	s := m.Snapshot()
	if s.HasStaged || s.AIDialogOpen || s.AILoading {
		t.Fatalf("expected empty closed stage, got %+v", s)
	}
	if _, err := m.AcceptStaged(); !errors.Is(err, quotify.ErrNothingStaged) {
		t.Fatalf("expected ErrNothingStaged, got %v", err)
	}
}

func TestMachine_GenerationScopedToAccount(t *testing.T) {
	m := readyMachine(t)
	m.BeginGeneration(acct)

	const other = types.Account("0xb0b")
	m.Bind(other)
	_ = m.BeginProbe(other)
	m.ProbeFound(other)
	m.BeginGeneration(other)

	if m.StageAIQuote(acct, "for alice") {
		t.Fatal("a generation for the previous account must not stage")
	}
	m.GenerationFailed(acct)
	if s := m.Snapshot(); s.HasStaged || !s.AILoading {
		t.Fatalf("the new binding's generation must be untouched, got %+v", s)
	}

	if !m.StageAIQuote(other, "for bob") {
		t.Fatal("expected the current account's suggestion to stage")
	}
	if staged, _ := m.Snapshot().Staged(); staged != "for bob" {
		t.Fatalf("unexpected stage %q", staged)
	}
}

func TestMachine_UnbindDuringTx(t *testing.T) {
	m := readyMachine(t)
	if err := m.AcquireTx(acct, types.TxAddQuote); err != nil {
		t.Fatal(err)
	}
	m.Unbind()
	if m.Phase() != types.PhaseUnbound {
		t.Fatalf("expected Unbound, got %s", m.Phase())
	}

	// Late results of the old binding are dropped.
	m.ObserveQuote(acct, types.QuoteAddedEvent{SequenceNumber: 5, Quote: "late"})
	m.ReleaseTx(acct)

	s := m.Snapshot()
	if s.HasQuote || s.TxInFlight || s.Phase != types.PhaseUnbound {
		t.Fatalf("unexpected state after unbind: %+v", s)
	}
}

func TestMachine_ClearPendingIf(t *testing.T) {
	m := readyMachine(t)
	m.SetPending("Hello")
	m.ClearPendingIf(acct, "Hello")
	if m.Pending() != "" {
		t.Fatal("expected pending cleared after matching submit")
	}

	m.SetPending("edited")
	m.ClearPendingIf(acct, "Hello")
	if m.Pending() != "edited" {
		t.Fatal("an edited input must survive")
	}
}

func TestMachine_Subscribe(t *testing.T) {
	m := New()
	ch, cancel := m.Subscribe()

	first := <-ch
	if first.Phase != types.PhaseUnbound {
		t.Fatalf("expected initial Unbound snapshot, got %s", first.Phase)
	}

	// Several transitions without reading: only the latest survives.
	m.Bind(acct)
	_ = m.BeginProbe(acct)
	m.ProbeFound(acct)

	latest := <-ch
	if latest.Phase != types.PhaseHolderReady {
		t.Fatalf("expected latest snapshot HolderReady, got %s", latest.Phase)
	}
	select {
	case s := <-ch:
		t.Fatalf("expected no further snapshot, got %+v", s)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}
