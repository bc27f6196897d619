// Package types defines the core data types shared by the quote
// client: accounts, transaction requests, quote events and the
// observable sync state.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns
// (gRPC codec registration) are handled in the transport packages.
package types

import "strings"

// Account is an opaque chain address (0x-prefixed hex). It is owned
// by the wallet and never modified by the client.
type Account string

// String returns the address as given.
func (a Account) String() string { return string(a) }

// Empty reports whether no account is set.
func (a Account) Empty() bool { return a == "" }

// Normalize lower-cases the address and ensures a 0x prefix.
func (a Account) Normalize() Account {
	s := strings.ToLower(strings.TrimSpace(string(a)))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return Account(s)
}

// TxHash identifies a submitted transaction.
type TxHash string

// ModuleID names the on-chain module backing the quote calls,
// e.g. "0x7dbd...81e3::RandomQuote".
type ModuleID struct {
	Address Account `cramberry:"1"`
	Name    string  `cramberry:"2"`
}

// DefaultModuleName is the module name used by the quote program.
const DefaultModuleName = "RandomQuote"

// String returns "<address>::<name>".
func (m ModuleID) String() string {
	return m.Address.String() + "::" + m.Name
}

// HolderType returns the fully qualified QuoteHolder resource type.
func (m ModuleID) HolderType() string {
	return m.String() + "::QuoteHolder"
}

// Function returns the fully qualified entry function identifier.
func (m ModuleID) Function(name string) string {
	return m.String() + "::" + name
}

// EventField is the QuoteHolder field holding the quote event handle.
const EventField = "quote_added_events"
