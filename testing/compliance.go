package quotifytest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/example/chainsim"
	"github.com/blockberries/quotify/types"
)

// Env is one controller under test together with the chain backing
// it. The controller must already be bound to Account.
type Env struct {
	Controller quotify.Controller
	Chain      *chainsim.Chain
	Account    types.Account
}

// ControllerFactory builds a fresh Env whose controller uses gen for
// AI quotes.
type ControllerFactory func(t *testing.T, gen quotify.TextGenerator) Env

// RunControllerSuite checks that a Controller implementation honors
// the quote lifecycle: preconditions are enforced before submission,
// confirmed transactions are reflected in the projected quote,
// rejected ones leave no trace, and AI staging never touches the
// on-chain quote.
func RunControllerSuite(t *testing.T, factory ControllerFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("fresh_account_has_no_holder", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		st, err := env.Controller.State(ctx)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if st.HolderExists || st.Phase != types.PhaseHolderMissing {
			t.Errorf("expected missing holder, got phase=%s exists=%v", st.Phase, st.HolderExists)
		}
		if st.HasQuote {
			t.Errorf("expected no quote, got %q", st.CurrentQuote)
		}
	})

	t.Run("add_requires_holder", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		_, err := env.Controller.AddQuote(ctx, "Hello")
		if !errors.Is(err, quotify.ErrHolderMissing) {
			t.Fatalf("expected ErrHolderMissing, got %v", err)
		}
		if n := env.Chain.Submits.Load(); n != 0 {
			t.Errorf("expected no submissions, got %d", n)
		}
	})

	t.Run("empty_quote_refused", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)
		_, err := env.Controller.AddQuote(ctx, "")
		if !errors.Is(err, quotify.ErrEmptyQuote) {
			t.Fatalf("expected ErrEmptyQuote, got %v", err)
		}
	})

	t.Run("initialize_then_add", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)

		r, err := env.Controller.AddQuote(ctx, "Hello")
		if err != nil {
			t.Fatalf("AddQuote: %v", err)
		}
		if r.Kind != types.TxAddQuote || r.Hash == "" {
			t.Errorf("unexpected receipt %+v", r)
		}
		st := mustState(t, env)
		if q, _ := st.Quote(); q != "Hello" {
			t.Errorf("expected quote Hello, got %q", q)
		}
		if st.TxInFlight {
			t.Error("transaction still in flight after confirmation")
		}
	})

	t.Run("initialize_twice_refused", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)
		_, err := env.Controller.Initialize(ctx)
		if !errors.Is(err, quotify.ErrHolderExists) {
			t.Fatalf("expected ErrHolderExists, got %v", err)
		}
	})

	t.Run("rejected_initialize_reverts", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		env.Chain.RejectNextSubmit(errors.New("user rejected the request"))

		_, err := env.Controller.Initialize(ctx)
		rej, ok := quotify.IsRejected(err)
		if !ok {
			t.Fatalf("expected rejection, got %v", err)
		}
		if rej.Kind != types.TxInitialize {
			t.Errorf("expected initialize rejection, got %s", rej.Kind)
		}
		st := mustState(t, env)
		if st.HolderExists || st.TxInFlight {
			t.Errorf("rejected initialize left exists=%v inFlight=%v", st.HolderExists, st.TxInFlight)
		}
	})

	t.Run("random_quote_surfaces_stored", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)
		for _, q := range []string{"A", "B"} {
			if _, err := env.Controller.AddQuote(ctx, q); err != nil {
				t.Fatalf("AddQuote(%s): %v", q, err)
			}
		}
		before := mustState(t, env)
		if _, err := env.Controller.RandomQuote(ctx); err != nil {
			t.Fatalf("RandomQuote: %v", err)
		}
		st := mustState(t, env)
		if q, _ := st.Quote(); q != "A" && q != "B" {
			t.Errorf("random quote %q is not a stored quote", q)
		}
		if st.CurrentSequence <= before.CurrentSequence {
			t.Errorf("sequence did not advance: %d -> %d", before.CurrentSequence, st.CurrentSequence)
		}
	})

	t.Run("random_without_quotes_aborts", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)
		_, err := env.Controller.RandomQuote(ctx)
		if _, ok := quotify.IsRejected(err); !ok {
			t.Fatalf("expected rejection, got %v", err)
		}
		if st := mustState(t, env); !st.HolderExists {
			t.Error("aborted random quote must not clear the holder")
		}
	})

	t.Run("ai_staging_is_isolated", func(t *testing.T) {
		env := factory(t, &MockGenerator{Text: "Stay the course."})
		mustInitialize(t, env)
		if _, err := env.Controller.AddQuote(ctx, "Hello"); err != nil {
			t.Fatalf("AddQuote: %v", err)
		}

		text, err := env.Controller.GenerateAIQuote(ctx)
		if err != nil {
			t.Fatalf("GenerateAIQuote: %v", err)
		}
		if text != "Stay the course." {
			t.Errorf("unexpected generated text %q", text)
		}
		st := mustState(t, env)
		if staged, _ := st.Staged(); staged != text {
			t.Errorf("expected staged %q, got %q", text, staged)
		}
		if q, _ := st.Quote(); q != "Hello" {
			t.Errorf("generation changed the on-chain quote to %q", q)
		}

		accepted, err := env.Controller.AcceptAIQuote(ctx)
		if err != nil {
			t.Fatalf("AcceptAIQuote: %v", err)
		}
		after := mustState(t, env)
		want := st
		want.HasStaged, want.StagedAIQuote, want.AIDialogOpen = false, "", false
		want.PendingQuote = accepted
		if diff := cmp.Diff(want, after); diff != "" {
			t.Errorf("state after accept (-want +got):\n%s", diff)
		}
	})

	t.Run("discard_clears_stage", func(t *testing.T) {
		env := factory(t, &MockGenerator{Text: "Keep going."})
		mustInitialize(t, env)
		if _, err := env.Controller.GenerateAIQuote(ctx); err != nil {
			t.Fatalf("GenerateAIQuote: %v", err)
		}
		if err := env.Controller.DiscardAIQuote(ctx); err != nil {
			t.Fatalf("DiscardAIQuote: %v", err)
		}
		if st := mustState(t, env); st.HasStaged {
			t.Errorf("stage survived discard: %q", st.StagedAIQuote)
		}
		if _, err := env.Controller.AcceptAIQuote(ctx); !errors.Is(err, quotify.ErrNothingStaged) {
			t.Errorf("expected ErrNothingStaged, got %v", err)
		}
	})

	t.Run("generation_failure_keeps_stage", func(t *testing.T) {
		calls := 0
		gen := &MockGenerator{GenerateFn: func(context.Context, string) (string, error) {
			calls++
			if calls == 1 {
				return "First.", nil
			}
			return "", errors.New("quota exceeded")
		}}
		env := factory(t, gen)
		if _, err := env.Controller.GenerateAIQuote(ctx); err != nil {
			t.Fatalf("first GenerateAIQuote: %v", err)
		}
		_, err := env.Controller.GenerateAIQuote(ctx)
		var genErr *quotify.GenerationError
		if !errors.As(err, &genErr) {
			t.Fatalf("expected GenerationError, got %v", err)
		}
		st := mustState(t, env)
		if staged, _ := st.Staged(); staged != "First." {
			t.Errorf("expected previous stage kept, got %q", staged)
		}
		if st.AILoading {
			t.Error("loading flag left set after failure")
		}
	})

	t.Run("refresh_is_stable", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)
		if _, err := env.Controller.AddQuote(ctx, "Hello"); err != nil {
			t.Fatalf("AddQuote: %v", err)
		}
		first, err := env.Controller.Refresh(ctx)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		second, err := env.Controller.Refresh(ctx)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("refresh not stable (-first +second):\n%s", diff)
		}
	})

	t.Run("pending_quote_cleared_on_confirm", func(t *testing.T) {
		env := factory(t, &MockGenerator{})
		mustInitialize(t, env)
		if err := env.Controller.SetPendingQuote(ctx, "Draft"); err != nil {
			t.Fatalf("SetPendingQuote: %v", err)
		}
		if _, err := env.Controller.AddQuote(ctx, "Draft"); err != nil {
			t.Fatalf("AddQuote: %v", err)
		}
		if st := mustState(t, env); st.PendingQuote != "" {
			t.Errorf("pending quote %q survived confirmation", st.PendingQuote)
		}
	})
}

func mustInitialize(t *testing.T, env Env) {
	t.Helper()
	if _, err := env.Controller.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if st := mustState(t, env); !st.HolderExists {
		t.Fatal("holder missing after initialize")
	}
}

func mustState(t *testing.T, env Env) types.SyncState {
	t.Helper()
	st, err := env.Controller.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return st
}
