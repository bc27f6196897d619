package quotifygrpc

import "github.com/blockberries/quotify/types"

// Request and response wrappers for RPCs whose Controller signatures
// don't map to a single struct.

// Empty is the request or response of RPCs that carry nothing.
type Empty struct{}

// QuoteRequest carries the quote for AddQuote and SetPendingQuote.
type QuoteRequest struct {
	Quote string `cramberry:"1"`
}

// TextResponse carries generated or accepted quote text.
type TextResponse struct {
	Text string `cramberry:"1"`
}

// StateResponse wraps a snapshot.
type StateResponse struct {
	State types.SyncState `cramberry:"1"`
}

// ReceiptResponse wraps the receipt of a confirmed transaction.
type ReceiptResponse struct {
	Receipt types.Receipt `cramberry:"1"`
}
