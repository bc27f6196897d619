package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/session"
	quotifytest "github.com/blockberries/quotify/testing"
	"github.com/blockberries/quotify/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var module = types.ModuleID{Address: "0xc0ffee", Name: types.DefaultModuleName}

const account types.Account = "0xa11ce"

type fixture struct {
	gw     *quotifytest.MockGateway
	wallet *quotifytest.MockWallet
	notes  *quotifytest.RecordingNotifier
	s      *session.Session
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	f := &fixture{
		gw:     &quotifytest.MockGateway{},
		wallet: quotifytest.NewMockWallet(account),
		notes:  &quotifytest.RecordingNotifier{},
	}
	all := append([]session.Option{session.WithNotifier(f.notes)}, opts...)
	f.s = session.New(f.gw, module, all...)
	t.Cleanup(func() { _ = f.s.Close() })
	return f
}

func (f *fixture) bind(t *testing.T) types.SyncState {
	t.Helper()
	st, err := f.s.Bind(context.Background(), f.wallet)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return st
}

func TestSession_EmptyStreamHasNoQuote(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)

	st := f.bind(t)
	if st.Phase != types.PhaseHolderReady || !st.HolderExists {
		t.Fatalf("expected ready holder, got phase=%s", st.Phase)
	}
	if st.HasQuote {
		t.Errorf("expected no quote, got %q", st.CurrentQuote)
	}
	if n := len(f.notes.All()); n != 0 {
		t.Errorf("empty stream must not notify, got %v", f.notes.Messages())
	}
}

func TestSession_ProjectsLatestEvent(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.gw.Emit("A")
	f.gw.Emit("B")

	st := f.bind(t)
	if q, _ := st.Quote(); q != "B" {
		t.Errorf("expected B, got %q", q)
	}
	if st.CurrentSequence != 2 {
		t.Errorf("expected sequence 2, got %d", st.CurrentSequence)
	}
}

func TestSession_ProjectsBySequenceNotPosition(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.gw.AccountEventsFn = func(_ context.Context, _ types.Account, rt, _ string) ([]types.RawEvent, error) {
		return []types.RawEvent{
			types.NewRawEvent(rt, types.QuoteAddedEvent{SequenceNumber: 2, Quote: "newest"}),
			types.NewRawEvent(rt, types.QuoteAddedEvent{SequenceNumber: 1, Quote: "older"}),
		}, nil
	}

	st := f.bind(t)
	if q, _ := st.Quote(); q != "newest" {
		t.Errorf("expected newest, got %q", q)
	}
}

func TestSession_MissingHolderSkipsEvents(t *testing.T) {
	f := newFixture(t)

	st := f.bind(t)
	if st.Phase != types.PhaseHolderMissing || st.HolderExists {
		t.Fatalf("expected missing holder, got phase=%s", st.Phase)
	}
	if n := f.gw.EventCalls.Load(); n != 0 {
		t.Errorf("expected no event reads without a holder, got %d", n)
	}
}

func TestSession_ProbeTransportErrorKeepsHolder(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.bind(t)

	f.gw.AccountResourceFn = func(context.Context, types.Account, string) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	}
	st, err := f.s.Refresh(context.Background())

	var probeErr *quotify.ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected ProbeError, got %v", err)
	}
	if !quotify.IsRetryable(err) {
		t.Error("probe transport errors must be retryable")
	}
	if errors.Is(err, quotify.ErrResourceNotFound) {
		t.Error("transport error must not look like a missing holder")
	}
	if st.Phase != types.PhaseProbeFailed || !st.HolderExists {
		t.Errorf("expected ProbeFailed with holder kept, got phase=%s exists=%v", st.Phase, st.HolderExists)
	}
	last, _ := f.notes.Last()
	if last.Level != types.LevelError || last.Message != "Failed to check quote holder" {
		t.Errorf("unexpected notification %+v", last)
	}
}

func TestSession_FetchErrorKeepsQuote(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.gw.Emit("kept")
	f.bind(t)

	f.gw.AccountEventsFn = func(context.Context, types.Account, string, string) ([]types.RawEvent, error) {
		return nil, errors.New("502 bad gateway")
	}
	st, err := f.s.Refresh(context.Background())

	var fetchErr *quotify.EventFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected EventFetchError, got %v", err)
	}
	if q, _ := st.Quote(); q != "kept" {
		t.Errorf("expected stale quote kept, got %q", q)
	}
}

func TestSession_AddQuoteUpdatesQuote(t *testing.T) {
	h := quotifytest.NewHarness(t)
	h.Ready()

	h.AddQuote("Hello")
	h.MustQuote("Hello")
	h.MustIdle()

	got := h.Notes.Messages()
	want := []string{
		"success: Quote holder initialized successfully!",
		"success: Quote added successfully!",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestSession_RejectedInitializeReverts(t *testing.T) {
	f := newFixture(t)
	f.bind(t)
	f.wallet.SignAndSubmitFn = func(context.Context, types.EntryFunctionPayload) (types.TxHandle, error) {
		return types.TxHandle{}, errors.New("user rejected the request")
	}

	_, err := f.s.Initialize(context.Background())
	rej, ok := quotify.IsRejected(err)
	if !ok {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Hash != "" {
		t.Errorf("wallet refusal has no hash, got %s", rej.Hash)
	}

	st, _ := f.s.State(context.Background())
	if st.HolderExists || st.TxInFlight {
		t.Errorf("expected clean state, got exists=%v inFlight=%v", st.HolderExists, st.TxInFlight)
	}
	last, _ := f.notes.Last()
	if last.Level != types.LevelError || last.Message != "Failed to initialize quote holder" {
		t.Errorf("unexpected notification %+v", last)
	}
	if n := f.gw.WaitCalls.Load(); n != 0 {
		t.Errorf("refused submission must not be awaited, got %d waits", n)
	}
}

func TestSession_AbortedTransactionIsRejected(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.bind(t)
	f.gw.WaitForTransactionFn = func(_ context.Context, h types.TxHash) (types.TxResult, error) {
		return types.TxResult{Hash: h, Success: false, VMStatus: "Move abort: E_NO_QUOTES"}, nil
	}

	_, err := f.s.RandomQuote(context.Background())
	rej, ok := quotify.IsRejected(err)
	if !ok {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if !errors.Is(err, quotify.ErrTxAborted) || rej.Reason == "" {
		t.Errorf("expected aborted reason, got %+v", rej)
	}
	if st, _ := f.s.State(context.Background()); st.Phase != types.PhaseHolderReady {
		t.Errorf("expected HolderReady after rejection, got %s", st.Phase)
	}
}

func TestSession_FinalityTimeout(t *testing.T) {
	f := newFixture(t, session.WithFinalityTimeout(20*time.Millisecond))
	f.gw.SetHolder(true)
	f.bind(t)
	f.gw.WaitForTransactionFn = func(ctx context.Context, _ types.TxHash) (types.TxResult, error) {
		<-ctx.Done()
		return types.TxResult{}, ctx.Err()
	}

	_, err := f.s.AddQuote(context.Background(), "late")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if st, _ := f.s.State(context.Background()); st.TxInFlight {
		t.Error("guard not released after timeout")
	}
}

func TestSession_ConcurrentSubmitRefused(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.bind(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.wallet.SignAndSubmitFn = func(context.Context, types.EntryFunctionPayload) (types.TxHandle, error) {
		close(entered)
		<-release
		return types.TxHandle{Hash: "0x1"}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.s.AddQuote(context.Background(), "first")
	}()
	<-entered

	resourceBefore, eventsBefore := f.gw.ResourceCalls.Load(), f.gw.EventCalls.Load()
	_, err := f.s.RandomQuote(context.Background())
	if !errors.Is(err, quotify.ErrTxInFlight) {
		t.Errorf("expected ErrTxInFlight, got %v", err)
	}
	if f.gw.ResourceCalls.Load() != resourceBefore || f.gw.EventCalls.Load() != eventsBefore {
		t.Error("refused submission touched the gateway")
	}
	if n := f.wallet.SubmitCalls.Load(); n != 1 {
		t.Errorf("expected one wallet call, got %d", n)
	}
	st, _ := f.s.State(context.Background())
	if !st.TxInFlight || st.InFlightKind != types.TxAddQuote {
		t.Errorf("expected add_quote in flight, got %+v", st)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first submission: %v", firstErr)
	}
}

func TestSession_SubmitDuringProbeRefused(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.gw.Emit("A")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.gw.AccountResourceFn = func(context.Context, types.Account, string) (json.RawMessage, error) {
		once.Do(func() { close(entered) })
		<-release
		return json.RawMessage(`{"quotes":["A"]}`), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var bindErr error
	go func() {
		defer wg.Done()
		_, bindErr = f.s.Bind(context.Background(), f.wallet)
	}()
	<-entered

	ctx := context.Background()
	if _, err := f.s.Initialize(ctx); !errors.Is(err, quotify.ErrProbing) {
		t.Errorf("Initialize: expected ErrProbing, got %v", err)
	}
	if _, err := f.s.AddQuote(ctx, "x"); !errors.Is(err, quotify.ErrProbing) {
		t.Errorf("AddQuote: expected ErrProbing, got %v", err)
	}
	if _, err := f.s.RandomQuote(ctx); !errors.Is(err, quotify.ErrProbing) {
		t.Errorf("RandomQuote: expected ErrProbing, got %v", err)
	}
	if n := f.wallet.SubmitCalls.Load(); n != 0 {
		t.Errorf("expected no wallet calls during the probe, got %d", n)
	}

	close(release)
	wg.Wait()
	if bindErr != nil {
		t.Fatalf("Bind: %v", bindErr)
	}
	st, _ := f.s.State(ctx)
	if st.Phase != types.PhaseHolderReady || !st.HolderExists || st.TxInFlight {
		t.Fatalf("expected ready holder after the probe, got %+v", st)
	}
	if q, _ := st.Quote(); q != "A" {
		t.Errorf("expected quote A, got %q", q)
	}
	if _, err := f.s.Initialize(ctx); !errors.Is(err, quotify.ErrHolderExists) {
		t.Errorf("expected ErrHolderExists once probed, got %v", err)
	}
}

func TestSession_SubmitAfterFailedProbeNeedsRefresh(t *testing.T) {
	f := newFixture(t)
	f.gw.SetHolder(true)
	f.bind(t)

	f.gw.AccountResourceFn = func(context.Context, types.Account, string) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	}
	_, _ = f.s.Refresh(context.Background())
	if _, err := f.s.AddQuote(context.Background(), "x"); !errors.Is(err, quotify.ErrHolderUnknown) {
		t.Fatalf("expected ErrHolderUnknown, got %v", err)
	}

	f.gw.AccountResourceFn = nil
	if _, err := f.s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := f.s.AddQuote(context.Background(), "x"); err != nil {
		t.Fatalf("AddQuote after refresh: %v", err)
	}
}

func TestSession_PreconditionsBeforeWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.s.Initialize(ctx); !errors.Is(err, quotify.ErrNotBound) {
		t.Errorf("unbound: expected ErrNotBound, got %v", err)
	}
	f.bind(t)
	if _, err := f.s.AddQuote(ctx, "x"); !errors.Is(err, quotify.ErrHolderMissing) {
		t.Errorf("expected ErrHolderMissing, got %v", err)
	}
	if _, err := f.s.RandomQuote(ctx); !errors.Is(err, quotify.ErrHolderMissing) {
		t.Errorf("expected ErrHolderMissing, got %v", err)
	}
	if _, err := f.s.AddQuote(ctx, ""); !errors.Is(err, quotify.ErrEmptyQuote) {
		t.Errorf("expected ErrEmptyQuote, got %v", err)
	}
	if n := f.wallet.SubmitCalls.Load(); n != 0 {
		t.Errorf("expected no wallet calls, got %d", n)
	}
}

func TestSession_PayloadShapes(t *testing.T) {
	f := newFixture(t)
	f.bind(t)
	ctx := context.Background()

	if _, err := f.s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := f.s.AddQuote(ctx, "Hello"); err != nil {
		t.Fatalf("AddQuote: %v", err)
	}
	if _, err := f.s.RandomQuote(ctx); err != nil {
		t.Fatalf("RandomQuote: %v", err)
	}

	want := []types.EntryFunctionPayload{
		{Function: "0xc0ffee::RandomQuote::initialize", TypeArguments: []string{}, Arguments: []string{}},
		{Function: "0xc0ffee::RandomQuote::add_quote", TypeArguments: []string{}, Arguments: []string{"Hello"}},
		{Function: "0xc0ffee::RandomQuote::get_random_quotee", TypeArguments: []string{}, Arguments: []string{}},
	}
	if diff := cmp.Diff(want, f.wallet.Payloads()); diff != "" {
		t.Errorf("payloads (-want +got):\n%s", diff)
	}
}

func TestSession_AIStaging(t *testing.T) {
	h := quotifytest.NewHarness(t)
	h.Ready()
	h.AddQuote("Hello")
	ctx := context.Background()

	text, err := h.Session.GenerateAIQuote(ctx)
	if err != nil {
		t.Fatalf("GenerateAIQuote: %v", err)
	}
	if text != "Stay the course." {
		t.Errorf("unexpected text %q", text)
	}
	if prompts := h.Gen.Prompts(); len(prompts) != 1 || prompts[0] != session.DefaultPrompt {
		t.Errorf("unexpected prompts %q", prompts)
	}

	accepted, err := h.Session.AcceptAIQuote(ctx)
	if err != nil {
		t.Fatalf("AcceptAIQuote: %v", err)
	}
	st := h.State()
	if st.PendingQuote != accepted || st.HasStaged || st.AIDialogOpen {
		t.Errorf("unexpected state after accept: %+v", st)
	}
	h.MustQuote("Hello")
	if n := h.Chain.Submits.Load(); n != 2 {
		t.Errorf("accept must not submit, got %d submissions", n)
	}
}

func TestSession_GenerateWithoutGenerator(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.GenerateAIQuote(context.Background())
	if !errors.Is(err, quotify.ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
}

func TestSession_GenerationIsShared(t *testing.T) {
	release := make(chan struct{})
	gen := &quotifytest.MockGenerator{GenerateFn: func(context.Context, string) (string, error) {
		<-release
		return "  Together.  ", nil
	}}
	f := newFixture(t, session.WithGenerator(gen))

	const callers = 4
	results := make([]string, callers)
	var started, done sync.WaitGroup
	for i := range callers {
		started.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			started.Done()
			results[i], _ = f.s.GenerateAIQuote(context.Background())
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	if n := gen.Calls.Load(); n > 2 {
		t.Errorf("expected generations to be shared, got %d calls", n)
	}
	for i, r := range results {
		if r != "Together." {
			t.Errorf("caller %d got %q", i, r)
		}
	}
}

func TestSession_GenerationFailureNotifies(t *testing.T) {
	gen := &quotifytest.MockGenerator{GenerateFn: func(context.Context, string) (string, error) {
		return "   ", nil
	}}
	f := newFixture(t, session.WithGenerator(gen))

	_, err := f.s.GenerateAIQuote(context.Background())
	var genErr *quotify.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	last, _ := f.notes.Last()
	if last.Message != "Failed to generate AI quote" {
		t.Errorf("unexpected notification %+v", last)
	}
}

func TestSession_DiscardDuringGeneration(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gen := &quotifytest.MockGenerator{GenerateFn: func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return "late", nil
	}}
	f := newFixture(t, session.WithGenerator(gen))
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := f.s.GenerateAIQuote(ctx)
		errc <- err
	}()
	<-entered
	if err := f.s.DiscardAIQuote(ctx); err != nil {
		t.Fatalf("DiscardAIQuote: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, quotify.ErrGenerationDiscarded) {
		t.Fatalf("expected ErrGenerationDiscarded, got %v", err)
	}
	st, _ := f.s.State(ctx)
	if st.HasStaged || st.AIDialogOpen || st.AILoading {
		t.Errorf("expected nothing staged after discard, got %+v", st)
	}
	if _, err := f.s.AcceptAIQuote(ctx); !errors.Is(err, quotify.ErrNothingStaged) {
		t.Errorf("expected ErrNothingStaged, got %v", err)
	}
	if n := len(f.notes.All()); n != 0 {
		t.Errorf("a discarded suggestion must not notify, got %v", f.notes.Messages())
	}
}

func TestSession_Subscribe(t *testing.T) {
	h := quotifytest.NewHarness(t)
	ch, cancel := h.Session.Subscribe()
	defer cancel()

	h.Ready()
	h.AddQuote("Watched")

	deadline := time.After(time.Second)
	for {
		select {
		case st := <-ch:
			if q, _ := st.Quote(); q == "Watched" && !st.TxInFlight {
				return
			}
		case <-deadline:
			t.Fatal("never observed the confirmed quote")
		}
	}
}

func TestSession_UnbindResets(t *testing.T) {
	h := quotifytest.NewHarness(t)
	h.Ready()
	h.AddQuote("Hello")

	h.Session.Unbind()
	st := h.State()
	if diff := cmp.Diff(types.SyncState{}, st); diff != "" {
		t.Errorf("state after unbind (-want +got):\n%s", diff)
	}
	if _, err := h.Session.Refresh(context.Background()); !errors.Is(err, quotify.ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
}

func TestSession_ControllerCompliance(t *testing.T) {
	quotifytest.RunControllerSuite(t, func(t *testing.T, gen quotify.TextGenerator) quotifytest.Env {
		h := quotifytest.NewHarness(t, session.WithGenerator(gen))
		h.Bind()
		return quotifytest.Env{Controller: h.Session, Chain: h.Chain, Account: quotifytest.TestAccount}
	})
}
