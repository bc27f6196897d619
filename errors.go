package quotify

import (
	"errors"
	"fmt"

	"github.com/blockberries/quotify/types"
)

// Precondition and outcome sentinels.
var (
	// ErrResourceNotFound is returned by a gateway when the account
	// does not hold the requested resource.
	ErrResourceNotFound = errors.New("quotify: resource not found")

	// ErrNoEvents reports an empty event stream. It is not a failure.
	ErrNoEvents = errors.New("quotify: no quote events")

	ErrNotBound      = errors.New("quotify: no account bound")
	ErrTxInFlight    = errors.New("quotify: a transaction is already in flight")
	ErrEmptyQuote    = errors.New("quotify: quote must not be empty")
	ErrHolderMissing = errors.New("quotify: quote holder not initialized")
	ErrHolderExists  = errors.New("quotify: quote holder already initialized")
	ErrUnknownKind   = errors.New("quotify: unknown transaction kind")
	ErrNothingStaged = errors.New("quotify: no AI quote staged")
	ErrNoGenerator   = errors.New("quotify: no text generator configured")

	// ErrProbing refuses a submission while the holder lookup has not
	// finished.
	ErrProbing = errors.New("quotify: holder probe in progress")

	// ErrHolderUnknown refuses a submission after a failed probe. A
	// refresh must succeed first.
	ErrHolderUnknown = errors.New("quotify: holder state unknown, refresh first")

	// ErrGenerationDiscarded reports a suggestion that arrived after
	// the confirmation surface was closed.
	ErrGenerationDiscarded = errors.New("quotify: AI quote discarded before it arrived")

	// ErrTxAborted reports a transaction the chain committed as failed.
	ErrTxAborted = errors.New("quotify: transaction aborted on chain")
)

// ProbeError reports a holder lookup that failed for a reason other
// than the resource being absent. The holder's existence is unknown
// and the probe may be retried.
type ProbeError struct {
	Account types.Account
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Account, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Retryable is always true for probe failures.
func (e *ProbeError) Retryable() bool { return true }

// EventFetchError reports a failed or undecodable event read. The
// displayed quote is kept as it was.
type EventFetchError struct {
	Account types.Account
	Err     error
}

func (e *EventFetchError) Error() string {
	return fmt.Sprintf("fetch events for %s: %v", e.Account, e.Err)
}

func (e *EventFetchError) Unwrap() error { return e.Err }

// Retryable is always true for fetch failures.
func (e *EventFetchError) Retryable() bool { return true }

// RejectedError is the terminal outcome of a failed submission:
// signing refused, submission failed, finality wait failed or the
// transaction aborted on chain. The caller may submit again.
type RejectedError struct {
	Kind   types.TxKind
	Hash   types.TxHash
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s rejected (tx %s): %s", e.Kind, e.Hash, e.Reason)
	}
	return fmt.Sprintf("%s rejected: %s", e.Kind, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// NewRejectedError creates a RejectedError whose reason is err's text.
func NewRejectedError(kind types.TxKind, hash types.TxHash, err error) *RejectedError {
	return &RejectedError{Kind: kind, Hash: hash, Reason: err.Error(), Err: err}
}

// IsRejected checks whether an error is a RejectedError and returns it.
func IsRejected(err error) (*RejectedError, bool) {
	var r *RejectedError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// GenerationError reports a failed AI quote generation. The staging
// slot is left unchanged.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate quote: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient read failure that a
// refresh may clear.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
