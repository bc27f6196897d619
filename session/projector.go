package session

import (
	"context"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// EventProjector reads an account's quote event stream and selects
// the latest entry. It refetches the whole stream on every call.
type EventProjector struct {
	gateway quotify.ChainGateway
	module  types.ModuleID
}

// NewEventProjector creates a projector over module's quote events.
func NewEventProjector(gw quotify.ChainGateway, module types.ModuleID) *EventProjector {
	return &EventProjector{gateway: gw, module: module}
}

// Project returns the event with the greatest sequence number.
// It returns quotify.ErrNoEvents for an empty stream and a
// *quotify.EventFetchError when the stream cannot be read or decoded.
func (p *EventProjector) Project(ctx context.Context, account types.Account) (types.QuoteAddedEvent, error) {
	raws, err := p.gateway.AccountEvents(ctx, account, p.module.HolderType(), types.EventField)
	if err != nil {
		return types.QuoteAddedEvent{}, &quotify.EventFetchError{Account: account, Err: err}
	}

	events := make([]types.QuoteAddedEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := raw.Decode()
		if err != nil {
			return types.QuoteAddedEvent{}, &quotify.EventFetchError{Account: account, Err: err}
		}
		events = append(events, ev)
	}

	latest, ok := types.Latest(events)
	if !ok {
		return types.QuoteAddedEvent{}, quotify.ErrNoEvents
	}
	return latest, nil
}
