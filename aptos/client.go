// Package aptos is a REST client for an Aptos fullnode. It reads
// account resources and event streams, encodes and submits signed
// transactions and waits for them to commit.
package aptos

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface checks.
var (
	_ quotify.ChainGateway = (*Client)(nil)
	_ quotify.Submitter    = (*Client)(nil)
)

// Defaults for Config fields left zero.
const (
	DefaultNodeURL      = "https://fullnode.devnet.aptoslabs.com/v1"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Error codes the node returns for missing state.
const (
	CodeResourceNotFound = "resource_not_found"
	CodeAccountNotFound  = "account_not_found"
	CodeTxNotFound       = "transaction_not_found"
)

const pendingTransaction = "pending_transaction"

// APIError is a non-2xx response from the node.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error_code"`
	Message     string `json:"message"`
	VMErrorCode int    `json:"vm_error_code"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("aptos: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("aptos: %d: %s", e.Status, e.Message)
}

// NotFound reports whether the node said the requested state does
// not exist.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound &&
		(e.Code == CodeResourceNotFound || e.Code == CodeAccountNotFound)
}

// Unwrap maps missing resources and accounts to
// quotify.ErrResourceNotFound.
func (e *APIError) Unwrap() error {
	if e.NotFound() {
		return quotify.ErrResourceNotFound
	}
	return nil
}

// Config configures a Client.
type Config struct {
	NodeURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Client talks to one fullnode.
type Client struct {
	base         string
	http         *http.Client
	pollInterval time.Duration
	log          *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for cfg.NodeURL.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.NodeURL == "" {
		cfg.NodeURL = DefaultNodeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	c := &Client{
		base:         strings.TrimRight(cfg.NodeURL, "/"),
		http:         &http.Client{Timeout: cfg.Timeout},
		pollInterval: cfg.PollInterval,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LedgerInfo is the node's view of the chain head.
type LedgerInfo struct {
	ChainID       int    `json:"chain_id"`
	LedgerVersion string `json:"ledger_version"`
	BlockHeight   string `json:"block_height"`
	NodeRole      string `json:"node_role"`
}

// LedgerInfo returns the node's chain id and latest version.
func (c *Client) LedgerInfo(ctx context.Context) (LedgerInfo, error) {
	var info LedgerInfo
	err := c.do(ctx, http.MethodGet, "/", nil, &info)
	return info, err
}

// AccountResource returns the raw JSON of one resource. A missing
// resource or account yields an error wrapping
// quotify.ErrResourceNotFound.
func (c *Client) AccountResource(ctx context.Context, account types.Account, resourceType string) (json.RawMessage, error) {
	var res struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	path := "/accounts/" + url.PathEscape(account.String()) + "/resource/" + url.PathEscape(resourceType)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// AccountEvents returns the full event stream stored in field of the
// resource resourceType under account.
func (c *Client) AccountEvents(ctx context.Context, account types.Account, resourceType, field string) ([]types.RawEvent, error) {
	var events []types.RawEvent
	path := "/accounts/" + url.PathEscape(account.String()) +
		"/events/" + url.PathEscape(resourceType) + "/" + url.PathEscape(field)
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// AccountSequenceNumber returns the next sequence number for account.
func (c *Client) AccountSequenceNumber(ctx context.Context, account types.Account) (uint64, error) {
	var info struct {
		SequenceNumber    string `json:"sequence_number"`
		AuthenticationKey string `json:"authentication_key"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(account.String()), nil, &info); err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(info.SequenceNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("aptos: bad sequence number %q: %w", info.SequenceNumber, err)
	}
	return seq, nil
}

// EncodeSubmission asks the node for the signing message of raw.
func (c *Client) EncodeSubmission(ctx context.Context, raw types.RawTransaction) ([]byte, error) {
	var encoded string
	if err := c.do(ctx, http.MethodPost, "/transactions/encode_submission", raw, &encoded); err != nil {
		return nil, err
	}
	msg, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil {
		return nil, fmt.Errorf("aptos: bad signing message: %w", err)
	}
	return msg, nil
}

// SubmitTransaction posts a signed transaction and returns its hash.
func (c *Client) SubmitTransaction(ctx context.Context, tx types.SignedTransaction) (types.TxHandle, error) {
	var pending struct {
		Hash string `json:"hash"`
	}
	if err := c.do(ctx, http.MethodPost, "/transactions", tx, &pending); err != nil {
		return types.TxHandle{}, err
	}
	if pending.Hash == "" {
		return types.TxHandle{}, errors.New("aptos: submission returned no hash")
	}
	c.log.Debug("transaction submitted", zap.String("hash", pending.Hash))
	return types.TxHandle{Hash: types.TxHash(pending.Hash)}, nil
}

type transaction struct {
	Type     string `json:"type"`
	Hash     string `json:"hash"`
	Version  string `json:"version"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

// TransactionByHash fetches a transaction. pending is true while the
// node has not committed it, including when the node has not seen
// it yet.
func (c *Client) TransactionByHash(ctx context.Context, hash types.TxHash) (result types.TxResult, pending bool, err error) {
	var tx transaction
	err = c.do(ctx, http.MethodGet, "/transactions/by_hash/"+url.PathEscape(string(hash)), nil, &tx)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		return types.TxResult{Hash: hash}, true, nil
	case err != nil:
		return types.TxResult{}, false, err
	case tx.Type == pendingTransaction:
		return types.TxResult{Hash: hash}, true, nil
	}
	version, err := strconv.ParseUint(tx.Version, 10, 64)
	if err != nil {
		return types.TxResult{}, false, fmt.Errorf("aptos: bad version %q: %w", tx.Version, err)
	}
	return types.TxResult{
		Hash:     hash,
		Version:  version,
		Success:  tx.Success,
		VMStatus: tx.VMStatus,
	}, false, nil
}

// WaitForTransaction polls until hash is committed or ctx ends.
func (c *Client) WaitForTransaction(ctx context.Context, hash types.TxHash) (types.TxResult, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		res, pending, err := c.TransactionByHash(ctx, hash)
		if err != nil {
			return types.TxResult{}, err
		}
		if !pending {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return types.TxResult{}, fmt.Errorf("aptos: waiting for %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("aptos: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("aptos: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("aptos: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("aptos: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		c.log.Debug("node error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("aptos: decode %s: %w", path, err)
	}
	return nil
}
