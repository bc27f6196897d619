package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/blockberries/quotify/types"
)

// stateView is the JSON form of a snapshot.
type stateView struct {
	Account      string `json:"account"`
	Phase        string `json:"phase"`
	HolderExists bool   `json:"holder_exists"`
	TxInFlight   bool   `json:"tx_in_flight"`
	InFlightKind string `json:"in_flight_kind,omitempty"`
	Quote        string `json:"quote,omitempty"`
	Sequence     uint64 `json:"sequence,omitempty"`
	Staged       string `json:"staged_ai_quote,omitempty"`
	Pending      string `json:"pending_quote,omitempty"`
	AILoading    bool   `json:"ai_loading,omitempty"`
}

func newStateView(st types.SyncState) stateView {
	v := stateView{
		Account:      st.Account.String(),
		Phase:        st.Phase.String(),
		HolderExists: st.HolderExists,
		TxInFlight:   st.TxInFlight,
		Pending:      st.PendingQuote,
		AILoading:    st.AILoading,
	}
	if st.TxInFlight {
		v.InFlightKind = st.InFlightKind.String()
	}
	if q, ok := st.Quote(); ok {
		v.Quote, v.Sequence = q, st.CurrentSequence
	}
	if s, ok := st.Staged(); ok {
		v.Staged = s
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderState(w io.Writer, format string, st types.SyncState) error {
	v := newStateView(st)
	if format == "json" {
		return writeJSON(w, v)
	}

	holder := "missing"
	if v.HolderExists {
		holder = "ready"
	}
	fmt.Fprintf(w, "account:  %s\n", v.Account)
	fmt.Fprintf(w, "phase:    %s\n", v.Phase)
	fmt.Fprintf(w, "holder:   %s\n", holder)
	if v.TxInFlight {
		fmt.Fprintf(w, "pending:  %s transaction\n", v.InFlightKind)
	}
	switch {
	case v.Quote != "":
		fmt.Fprintf(w, "quote:    %q (#%d)\n", v.Quote, v.Sequence)
	case v.HolderExists:
		fmt.Fprintln(w, "quote:    (none yet)")
	}
	if v.Staged != "" {
		fmt.Fprintf(w, "draft:    %q\n", v.Staged)
	}
	if v.Pending != "" {
		fmt.Fprintf(w, "input:    %q\n", v.Pending)
	}
	return nil
}

type receiptView struct {
	Kind    string `json:"kind"`
	Hash    string `json:"hash"`
	Version uint64 `json:"version"`
}

func renderReceipt(w io.Writer, format string, r types.Receipt) error {
	v := receiptView{Kind: r.Kind.String(), Hash: string(r.Hash), Version: r.Version}
	if format == "json" {
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintf(w, "%s confirmed: %s (version %d)\n", v.Kind, v.Hash, v.Version)
	return err
}

func renderText(w io.Writer, format, label, text string) error {
	if format == "json" {
		return writeJSON(w, map[string]string{label: text})
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", label, text)
	return err
}
