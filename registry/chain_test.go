package registry

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers owner() calls from a map of contract owners.
type fakeCaller struct {
	resolver *ChainOwnerResolver
	owners   map[common.Address]common.Address
	err      error
	calls    int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	owner, ok := f.owners[*msg.To]
	if !ok {
		// Calls to accounts without code return no data.
		return nil, nil
	}
	return f.resolver.abi.Methods["owner"].Outputs.Pack(owner)
}

func TestChainOwnerResolver(t *testing.T) {
	app := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	developer := common.HexToAddress("0x00000000000000000000000000000000DeaDBeeF")
	orphan := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	caller := &fakeCaller{owners: map[common.Address]common.Address{
		app:    developer,
		orphan: {},
	}}
	resolver, err := NewChainOwnerResolver(caller)
	require.NoError(t, err)
	caller.resolver = resolver

	ctx := context.Background()

	owner, err := resolver.OwnerOf(ctx, strings.ToUpper(app.Hex()[2:]))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(developer.Hex()), owner)

	_, err = resolver.OwnerOf(ctx, orphan.Hex())
	assert.ErrorIs(t, err, interfaces.ErrOwnerNotFound)

	_, err = resolver.OwnerOf(ctx, "0x00000000000000000000000000000000000000cc")
	assert.ErrorIs(t, err, interfaces.ErrOwnerNotFound)

	calls := caller.calls
	_, err = resolver.OwnerOf(ctx, "not-an-address")
	assert.ErrorIs(t, err, interfaces.ErrOwnerNotFound)
	assert.Equal(t, calls, caller.calls, "malformed addresses are not sent to the chain")

	caller.err = errors.New("connection refused")
	_, err = resolver.OwnerOf(ctx, app.Hex())
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
