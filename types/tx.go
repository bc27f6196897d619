package types

import "fmt"

// TxKind selects one of the three transactions the client can submit.
type TxKind uint8

const (
	TxInitialize TxKind = iota + 1
	TxAddQuote
	TxRandomQuote
)

func (k TxKind) String() string {
	switch k {
	case TxInitialize:
		return "Initialize"
	case TxAddQuote:
		return "AddQuote"
	case TxRandomQuote:
		return "RandomQuote"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Valid reports whether k is one of the defined kinds.
func (k TxKind) Valid() bool {
	return k >= TxInitialize && k <= TxRandomQuote
}

// entry function names on the quote module.
const (
	FnInitialize  = "initialize"
	FnAddQuote    = "add_quote"
	FnRandomQuote = "get_random_quotee"
)

// FunctionName returns the module entry function for the kind.
func (k TxKind) FunctionName() string {
	switch k {
	case TxInitialize:
		return FnInitialize
	case TxAddQuote:
		return FnAddQuote
	case TxRandomQuote:
		return FnRandomQuote
	default:
		return ""
	}
}

// TxRequest is an ephemeral user intent: constructed, submitted,
// discarded. Only AddQuote carries a quote argument.
type TxRequest struct {
	Kind  TxKind `cramberry:"1"`
	Quote string `cramberry:"2"`
}

// Initialize builds an Initialize request.
func Initialize() TxRequest { return TxRequest{Kind: TxInitialize} }

// AddQuote builds an AddQuote request for the given text.
func AddQuote(quote string) TxRequest { return TxRequest{Kind: TxAddQuote, Quote: quote} }

// RandomQuote builds a RandomQuote request.
func RandomQuote() TxRequest { return TxRequest{Kind: TxRandomQuote} }

// EntryFunctionPayload is the chain-level call built from a TxRequest.
type EntryFunctionPayload struct {
	Function      string   `cramberry:"1" json:"function"`
	TypeArguments []string `cramberry:"2" json:"type_arguments"`
	Arguments     []string `cramberry:"3" json:"arguments"`
}

// Payload builds the entry function payload for req against module.
func (req TxRequest) Payload(module ModuleID) EntryFunctionPayload {
	p := EntryFunctionPayload{
		Function:      module.Function(req.Kind.FunctionName()),
		TypeArguments: []string{},
		Arguments:     []string{},
	}
	if req.Kind == TxAddQuote {
		p.Arguments = []string{req.Quote}
	}
	return p
}

// TxHandle is what a wallet returns after submitting a transaction.
type TxHandle struct {
	Hash TxHash `cramberry:"1"`
}

// VMStatusSuccess is the status string the chain reports for a
// successfully executed transaction.
const VMStatusSuccess = "Executed successfully"

// TxResult is the committed outcome of a transaction.
type TxResult struct {
	Hash     TxHash `cramberry:"1"`
	Version  uint64 `cramberry:"2"`
	Success  bool   `cramberry:"3"`
	VMStatus string `cramberry:"4"`
}

// Receipt is returned to the caller of a confirmed submission.
type Receipt struct {
	Kind    TxKind `cramberry:"1"`
	Hash    TxHash `cramberry:"2"`
	Version uint64 `cramberry:"3"`
}

// PayloadTypeEntryFunction tags an entry function payload on the
// node's JSON submission API.
const PayloadTypeEntryFunction = "entry_function_payload"

// TransactionPayload is the tagged JSON form of an entry function call.
type TransactionPayload struct {
	Type string `json:"type"`
	EntryFunctionPayload
}

// RawTransaction is an unsigned transaction in the node's JSON form.
// Numeric fields are decimal strings, as the node expects.
type RawTransaction struct {
	Sender                  Account            `json:"sender"`
	SequenceNumber          string             `json:"sequence_number"`
	MaxGasAmount            string             `json:"max_gas_amount"`
	GasUnitPrice            string             `json:"gas_unit_price"`
	ExpirationTimestampSecs string             `json:"expiration_timestamp_secs"`
	Payload                 TransactionPayload `json:"payload"`
}

// SignatureTypeEd25519 tags a single-key ed25519 authenticator.
const SignatureTypeEd25519 = "ed25519_signature"

// Signature is a transaction authenticator.
type Signature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// SignedTransaction is a raw transaction plus its authenticator.
type SignedTransaction struct {
	RawTransaction
	Signature Signature `json:"signature"`
}
