package chainsim_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/example/chainsim"
	"github.com/blockberries/quotify/session"
	quotifytest "github.com/blockberries/quotify/testing"
	"github.com/blockberries/quotify/types"
)

var testModule = types.ModuleID{Address: "0xc0ffee", Name: types.DefaultModuleName}

const alice types.Account = "0xa11ce"

func submit(t *testing.T, c *chainsim.Chain, req types.TxRequest) types.TxResult {
	t.Helper()
	ctx := context.Background()
	h, err := c.Wallet(alice).SignAndSubmit(ctx, req.Payload(c.Module()))
	if err != nil {
		t.Fatalf("submit %s: %v", req.Kind, err)
	}
	res, err := c.WaitForTransaction(ctx, h.Hash)
	if err != nil {
		t.Fatalf("wait %s: %v", req.Kind, err)
	}
	return res
}

func TestChain_Compliance(t *testing.T) {
	quotifytest.RunControllerSuite(t, func(t *testing.T, gen quotify.TextGenerator) quotifytest.Env {
		c := chainsim.New(testModule, chainsim.WithSeed(3))
		s := session.New(c, testModule, session.WithGenerator(gen))
		t.Cleanup(func() { _ = s.Close() })
		if _, err := s.Bind(context.Background(), c.Wallet(alice)); err != nil {
			t.Fatalf("Bind: %v", err)
		}
		return quotifytest.Env{Controller: s, Chain: c, Account: alice}
	})
}

func TestChain_ResourceLifecycle(t *testing.T) {
	c := chainsim.New(testModule)
	ctx := context.Background()

	_, err := c.AccountResource(ctx, alice, testModule.HolderType())
	if !errors.Is(err, quotify.ErrResourceNotFound) {
		t.Fatalf("expected not found before initialize, got %v", err)
	}

	if res := submit(t, c, types.Initialize()); !res.Success {
		t.Fatalf("initialize failed: %s", res.VMStatus)
	}
	if _, err := c.AccountResource(ctx, alice, testModule.HolderType()); err != nil {
		t.Fatalf("expected holder after initialize, got %v", err)
	}

	res := submit(t, c, types.Initialize())
	if res.Success || res.VMStatus != chainsim.StatusAlreadyInitialized {
		t.Errorf("expected second initialize to abort, got %+v", res)
	}
}

func TestChain_AddQuoteEmitsEvents(t *testing.T) {
	c := chainsim.New(testModule)
	submit(t, c, types.Initialize())
	submit(t, c, types.AddQuote("A"))
	submit(t, c, types.AddQuote("B"))

	raws, err := c.AccountEvents(context.Background(), alice, testModule.HolderType(), types.EventField)
	if err != nil {
		t.Fatalf("AccountEvents: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 events, got %d", len(raws))
	}
	for i, want := range []string{"A", "B"} {
		ev, err := raws[i].Decode()
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if ev.Quote != want || ev.SequenceNumber != uint64(i) {
			t.Errorf("event %d: got %+v", i, ev)
		}
	}
}

func TestChain_RandomQuoteAborts(t *testing.T) {
	c := chainsim.New(testModule)

	if res := submit(t, c, types.RandomQuote()); res.VMStatus != chainsim.StatusNotInitialized {
		t.Errorf("expected not initialized abort, got %q", res.VMStatus)
	}
	submit(t, c, types.Initialize())
	if res := submit(t, c, types.RandomQuote()); res.VMStatus != chainsim.StatusNoQuotes {
		t.Errorf("expected no quotes abort, got %q", res.VMStatus)
	}
}

func TestChain_RandomQuoteIsDeterministicPerSeed(t *testing.T) {
	pick := func() string {
		c := chainsim.New(testModule, chainsim.WithSeed(42))
		c.Seed(alice, "one", "two", "three", "four")
		submit(t, c, types.RandomQuote())
		evs := c.Events(alice)
		return evs[len(evs)-1].Quote
	}
	first := pick()
	for i := 0; i < 3; i++ {
		if got := pick(); got != first {
			t.Fatalf("same seed picked %q then %q", first, got)
		}
	}
}

func TestChain_RejectNextSubmit(t *testing.T) {
	c := chainsim.New(testModule)
	refusal := errors.New("user rejected")
	c.RejectNextSubmit(refusal)

	_, err := c.Wallet(alice).SignAndSubmit(context.Background(), types.Initialize().Payload(testModule))
	if !errors.Is(err, refusal) {
		t.Fatalf("expected refusal, got %v", err)
	}
	if res := submit(t, c, types.Initialize()); !res.Success {
		t.Errorf("refusal should apply once, got %+v", res)
	}
}

func TestChain_FinalityDelay(t *testing.T) {
	c := chainsim.New(testModule, chainsim.WithFinality(3, time.Millisecond))
	h, err := c.Submit(context.Background(), alice, types.Initialize().Payload(testModule))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.WaitForTransaction(ctx, h.Hash); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation while pending, got %v", err)
	}

	res, err := c.WaitForTransaction(context.Background(), h.Hash)
	if err != nil || !res.Success {
		t.Fatalf("expected eventual success, got %+v %v", res, err)
	}
	if res.Version != 1 {
		t.Errorf("expected version 1, got %d", res.Version)
	}
}
