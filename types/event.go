package types

import (
	"fmt"
	"strconv"
)

// QuoteAddedEvent is an immutable record emitted each time a quote is
// added or randomly rotated. Events are totally ordered by
// SequenceNumber.
type QuoteAddedEvent struct {
	SequenceNumber uint64 `cramberry:"1"`
	Quote          string `cramberry:"2"`
}

// RawEvent is the wire shape of an event as served by the node's
// event stream endpoint.
type RawEvent struct {
	SequenceNumber string `json:"sequence_number"`
	Type           string `json:"type"`
	Data           struct {
		Quote string `json:"quote"`
	} `json:"data"`
}

// Decode parses the sequence number as an ordinal.
func (e RawEvent) Decode() (QuoteAddedEvent, error) {
	seq, err := strconv.ParseUint(e.SequenceNumber, 10, 64)
	if err != nil {
		return QuoteAddedEvent{}, fmt.Errorf("invalid sequence_number %q: %w", e.SequenceNumber, err)
	}
	return QuoteAddedEvent{SequenceNumber: seq, Quote: e.Data.Quote}, nil
}

// NewRawEvent builds the wire form of an event.
func NewRawEvent(eventType string, ev QuoteAddedEvent) RawEvent {
	var raw RawEvent
	raw.SequenceNumber = strconv.FormatUint(ev.SequenceNumber, 10)
	raw.Type = eventType
	raw.Data.Quote = ev.Quote
	return raw
}

// Latest returns the event with the strictly greatest sequence number.
// On a duplicate maximum the first occurrence wins. ok is false for an
// empty slice.
func Latest(events []QuoteAddedEvent) (latest QuoteAddedEvent, ok bool) {
	for i, ev := range events {
		if i == 0 || ev.SequenceNumber > latest.SequenceNumber {
			latest = ev
			ok = true
		}
	}
	return latest, ok
}
