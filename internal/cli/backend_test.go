package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/session"
	quotifytest "github.com/blockberries/quotify/testing"
	"github.com/blockberries/quotify/types"
)

func TestBindSession_ToleratesNodeOutage(t *testing.T) {
	gw := &quotifytest.MockGateway{}
	gw.AccountResourceFn = func(context.Context, types.Account, string) (json.RawMessage, error) {
		return nil, errors.New("connection refused")
	}
	s := session.New(gw, quotifytest.TestModule)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, bindSession(context.Background(), s, quotifytest.NewMockWallet(quotifytest.TestAccount), zap.NewNop()))

	st, err := s.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseProbeFailed, st.Phase)
	assert.Equal(t, quotifytest.TestAccount, st.Account)

	gw.AccountResourceFn = nil
	gw.SetHolder(true)
	st, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseHolderReady, st.Phase)
}

func TestBindSession_FatalErrors(t *testing.T) {
	s := session.New(&quotifytest.MockGateway{}, quotifytest.TestModule)
	t.Cleanup(func() { _ = s.Close() })

	err := bindSession(context.Background(), s, quotifytest.NewMockWallet(""), zap.NewNop())
	assert.ErrorIs(t, err, quotify.ErrNotBound)
}
