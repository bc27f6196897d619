package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Submit runs one transaction through its whole lifecycle: take the
// in-flight guard, build the payload, sign and submit through the
// bound wallet, wait for finality, re-project the current quote and
// release the guard.
//
// Precondition failures (quotify.ErrNotBound, ErrEmptyQuote,
// ErrTxInFlight, ErrProbing, ErrHolderUnknown, ErrHolderMissing,
// ErrHolderExists) are returned before the wallet or gateway is
// contacted. Every later failure is a
// *quotify.RejectedError and is terminal for the attempt.
func (s *Session) Submit(ctx context.Context, req types.TxRequest) (types.Receipt, error) {
	account, wallet := s.bound()
	if wallet == nil {
		return types.Receipt{}, quotify.ErrNotBound
	}
	if req.Kind == types.TxAddQuote && req.Quote == "" {
		return types.Receipt{}, quotify.ErrEmptyQuote
	}
	if err := s.machine.AcquireTx(account, req.Kind); err != nil {
		s.log.Debug("submit refused", zap.Stringer("kind", req.Kind), zap.Error(err))
		return types.Receipt{}, err
	}
	defer s.machine.ReleaseTx(account)

	log := s.log.With(
		zap.String("attempt", s.newID()),
		zap.Stringer("kind", req.Kind),
		zap.Stringer("account", account),
	)

	payload := req.Payload(s.module)
	log.Debug("submitting", zap.String("function", payload.Function))

	handle, err := wallet.SignAndSubmit(ctx, payload)
	if err != nil {
		return types.Receipt{}, s.reject(log, account, req.Kind, "", err)
	}
	log = log.With(zap.String("hash", string(handle.Hash)))

	waitCtx, cancel := s.finalityContext(ctx)
	result, err := s.gateway.WaitForTransaction(waitCtx, handle.Hash)
	cancel()
	if err != nil {
		return types.Receipt{}, s.reject(log, account, req.Kind, handle.Hash, err)
	}
	if !result.Success {
		err := fmt.Errorf("%w: %s", quotify.ErrTxAborted, result.VMStatus)
		return types.Receipt{}, s.reject(log, account, req.Kind, handle.Hash, err)
	}

	if req.Kind == types.TxInitialize {
		s.machine.HolderCreated(account)
	}
	_ = s.project(ctx, account)
	if req.Kind == types.TxAddQuote {
		s.machine.ClearPendingIf(account, req.Quote)
	}

	log.Info("transaction confirmed", zap.Uint64("version", result.Version))
	s.notify(types.LevelSuccess, successMessage(req.Kind))
	return types.Receipt{Kind: req.Kind, Hash: handle.Hash, Version: result.Version}, nil
}

// Initialize submits the holder initialization.
func (s *Session) Initialize(ctx context.Context) (types.Receipt, error) {
	return s.Submit(ctx, types.Initialize())
}

// AddQuote submits quote.
func (s *Session) AddQuote(ctx context.Context, quote string) (types.Receipt, error) {
	return s.Submit(ctx, types.AddQuote(quote))
}

// RandomQuote asks the chain to rotate to a random stored quote.
func (s *Session) RandomQuote(ctx context.Context) (types.Receipt, error) {
	return s.Submit(ctx, types.RandomQuote())
}

func (s *Session) reject(log *zap.Logger, account types.Account, kind types.TxKind, hash types.TxHash, err error) error {
	if kind == types.TxInitialize {
		s.machine.HolderReverted(account)
	}
	log.Warn("transaction rejected", zap.Error(err))
	s.notify(types.LevelError, failureMessage(kind))
	return quotify.NewRejectedError(kind, hash, err)
}

func (s *Session) finalityContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.finalityTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.finalityTimeout)
}

func successMessage(kind types.TxKind) string {
	switch kind {
	case types.TxInitialize:
		return "Quote holder initialized successfully!"
	case types.TxAddQuote:
		return "Quote added successfully!"
	default:
		return "Random quote fetched successfully!"
	}
}

func failureMessage(kind types.TxKind) string {
	switch kind {
	case types.TxInitialize:
		return "Failed to initialize quote holder"
	case types.TxAddQuote:
		return "Failed to add quote"
	default:
		return "Failed to get random quote"
	}
}
