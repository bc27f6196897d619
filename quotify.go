// Package quotify defines the boundary between the quote client's
// transaction pipeline and its collaborators: the chain node, the
// wallet that signs for the bound account, the generative text
// endpoint and whatever presentation layer renders the state.
//
// Collaborators are plain interfaces so they can be substituted in
// tests. The pipeline itself lives in package session.
package quotify

import (
	"context"
	"encoding/json"

	"github.com/blockberries/quotify/types"
)

// ChainGateway is the client's view of a chain node.
//
// Implementations must be safe for concurrent use.
type ChainGateway interface {
	// AccountResource reads a typed resource stored under account.
	// It returns ErrResourceNotFound (possibly wrapped) when the
	// account holds no resource of that type; any other error is a
	// transport or decoding failure.
	AccountResource(ctx context.Context, account types.Account, resourceType string) (json.RawMessage, error)

	// AccountEvents reads the full event stream identified by the
	// resource type and field name. No cursor is kept; every call
	// returns the whole stream the node serves.
	AccountEvents(ctx context.Context, account types.Account, resourceType, field string) ([]types.RawEvent, error)

	// WaitForTransaction blocks until the transaction is committed or
	// ctx is done. A committed but aborted transaction is returned
	// with Success=false and a nil error.
	WaitForTransaction(ctx context.Context, hash types.TxHash) (types.TxResult, error)
}

// Submitter is implemented by gateways that accept signed
// transactions. Wallets use it; the pipeline never calls it directly.
type Submitter interface {
	SubmitTransaction(ctx context.Context, signed types.SignedTransaction) (types.TxHandle, error)
}

// Wallet signs and submits transactions for a single account.
type Wallet interface {
	// Account returns the address the wallet signs for.
	Account() types.Account

	// SignAndSubmit signs the payload and submits it. A user or
	// signer refusal is reported as an error; the caller treats any
	// error as a rejection of the attempt.
	SignAndSubmit(ctx context.Context, payload types.EntryFunctionPayload) (types.TxHandle, error)
}

// TextGenerator produces free text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Notifier receives the transient messages emitted at operation
// boundaries. Notify must not block.
type Notifier interface {
	Notify(n types.Notification)
}

// Controller is the operation set a presentation layer invokes. The
// in-process session and the gRPC client both implement it.
type Controller interface {
	// State returns the current sync state snapshot.
	State(ctx context.Context) (types.SyncState, error)

	// Refresh re-runs the holder probe and, if the holder exists,
	// the event projection.
	Refresh(ctx context.Context) (types.SyncState, error)

	// Initialize creates the account's quote holder.
	Initialize(ctx context.Context) (types.Receipt, error)

	// AddQuote appends quote to the account's holder.
	AddQuote(ctx context.Context, quote string) (types.Receipt, error)

	// RandomQuote asks the chain to surface a random stored quote.
	RandomQuote(ctx context.Context) (types.Receipt, error)

	// SetPendingQuote records the AddQuote input being edited.
	SetPendingQuote(ctx context.Context, quote string) error

	// GenerateAIQuote produces and stages a suggestion.
	GenerateAIQuote(ctx context.Context) (string, error)

	// AcceptAIQuote moves the staged suggestion into the pending
	// AddQuote input and returns it.
	AcceptAIQuote(ctx context.Context) (string, error)

	// DiscardAIQuote drops the staged suggestion.
	DiscardAIQuote(ctx context.Context) error

	// Close releases the controller's resources.
	Close() error
}
