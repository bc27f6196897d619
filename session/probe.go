package session

import (
	"context"
	"errors"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// ResourceProbe determines whether an account holds the quote holder
// resource. It does not touch the sync state.
type ResourceProbe struct {
	gateway quotify.ChainGateway
	module  types.ModuleID
}

// NewResourceProbe creates a probe for module's QuoteHolder.
func NewResourceProbe(gw quotify.ChainGateway, module types.ModuleID) *ResourceProbe {
	return &ResourceProbe{gateway: gw, module: module}
}

// Probe reports whether the holder exists. A missing resource is
// (false, nil); any other failure is a *quotify.ProbeError and says
// nothing about existence.
func (p *ResourceProbe) Probe(ctx context.Context, account types.Account) (bool, error) {
	_, err := p.gateway.AccountResource(ctx, account, p.module.HolderType())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, quotify.ErrResourceNotFound):
		return false, nil
	default:
		return false, &quotify.ProbeError{Account: account, Err: err}
	}
}
