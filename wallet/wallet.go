// Package wallet signs and submits transactions with a local ed25519
// key. The node encodes the signing message, so no BCS encoder is
// needed on this side.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/sha3"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

var _ quotify.Wallet = (*KeyWallet)(nil)

// Node is the subset of the fullnode API the wallet needs.
type Node interface {
	AccountSequenceNumber(ctx context.Context, account types.Account) (uint64, error)
	EncodeSubmission(ctx context.Context, raw types.RawTransaction) ([]byte, error)
	quotify.Submitter
}

// Defaults for transaction parameters.
const (
	DefaultMaxGasAmount = 2000
	DefaultGasUnitPrice = 100
	DefaultExpiration   = 60 * time.Second
)

// singleKeyScheme is appended to the public key to derive the
// authentication key of a single-signer account.
const singleKeyScheme = 0x00

// ErrInvalidKey is returned for keys that are not hex or have the wrong length.
var ErrInvalidKey = errors.New("wallet: invalid ed25519 private key")

// KeyWallet holds one private key.
type KeyWallet struct {
	node    Node
	key     ed25519.PrivateKey
	account types.Account

	maxGas     uint64
	gasPrice   uint64
	expiration time.Duration
	now        func() time.Time
	log        *zap.Logger

	// Serializes sequence number reads with submission.
	mu sync.Mutex
}

// Option configures a KeyWallet.
type Option func(*KeyWallet)

// WithAccount overrides the derived address, for accounts whose key
// has been rotated.
func WithAccount(account types.Account) Option {
	return func(w *KeyWallet) {
		if !account.Empty() {
			w.account = account.Normalize()
		}
	}
}

// WithGas sets the gas limit and unit price.
func WithGas(maxGas, unitPrice uint64) Option {
	return func(w *KeyWallet) {
		if maxGas > 0 {
			w.maxGas = maxGas
		}
		if unitPrice > 0 {
			w.gasPrice = unitPrice
		}
	}
}

// WithExpiration sets how long a signed transaction stays valid.
func WithExpiration(d time.Duration) Option {
	return func(w *KeyWallet) {
		if d > 0 {
			w.expiration = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *KeyWallet) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(w *KeyWallet) { w.log = log }
}

// New creates a wallet for key submitting through node.
func New(node Node, key ed25519.PrivateKey, opts ...Option) *KeyWallet {
	w := &KeyWallet{
		node:       node,
		key:        key,
		account:    DeriveAccount(key.Public().(ed25519.PublicKey)),
		maxGas:     DefaultMaxGasAmount,
		gasPrice:   DefaultGasUnitPrice,
		expiration: DefaultExpiration,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// FromHex parses a hex private key, either a 32-byte seed or a 64-byte
// expanded key, with or without a 0x prefix.
func FromHex(node Node, keyHex string, opts ...Option) (*KeyWallet, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
	}
	return New(node, key, opts...), nil
}

// DeriveAccount returns the address of a single-key account:
// sha3-256(public key || 0x00).
func DeriveAccount(pub ed25519.PublicKey) types.Account {
	buf := make([]byte, 0, len(pub)+1)
	buf = append(buf, pub...)
	buf = append(buf, singleKeyScheme)
	sum := sha3.Sum256(buf)
	return types.Account("0x" + hex.EncodeToString(sum[:]))
}

func (w *KeyWallet) Account() types.Account { return w.account }

// PublicKey returns the hex public key with a 0x prefix.
func (w *KeyWallet) PublicKey() string {
	return "0x" + hex.EncodeToString(w.key.Public().(ed25519.PublicKey))
}

// SignAndSubmit builds a raw transaction for payload at the account's
// next sequence number, signs the node-encoded message and submits it.
func (w *KeyWallet) SignAndSubmit(ctx context.Context, payload types.EntryFunctionPayload) (types.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq, err := w.node.AccountSequenceNumber(ctx, w.account)
	if err != nil {
		return types.TxHandle{}, fmt.Errorf("wallet: sequence number: %w", err)
	}
	raw := types.RawTransaction{
		Sender:                  w.account,
		SequenceNumber:          strconv.FormatUint(seq, 10),
		MaxGasAmount:            strconv.FormatUint(w.maxGas, 10),
		GasUnitPrice:            strconv.FormatUint(w.gasPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(w.now().Add(w.expiration).Unix(), 10),
		Payload: types.TransactionPayload{
			Type:                 types.PayloadTypeEntryFunction,
			EntryFunctionPayload: payload,
		},
	}

	msg, err := w.node.EncodeSubmission(ctx, raw)
	if err != nil {
		return types.TxHandle{}, fmt.Errorf("wallet: encode: %w", err)
	}
	sig := ed25519.Sign(w.key, msg)

	handle, err := w.node.SubmitTransaction(ctx, types.SignedTransaction{
		RawTransaction: raw,
		Signature: types.Signature{
			Type:      types.SignatureTypeEd25519,
			PublicKey: w.PublicKey(),
			Signature: "0x" + hex.EncodeToString(sig),
		},
	})
	if err != nil {
		return types.TxHandle{}, fmt.Errorf("wallet: submit: %w", err)
	}
	w.log.Debug("signed and submitted",
		zap.String("function", payload.Function),
		zap.Uint64("sequence", seq),
		zap.String("hash", string(handle.Hash)),
	)
	return handle, nil
}
