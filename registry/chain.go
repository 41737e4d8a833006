package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// ownableABI is the part of the application and dataset contracts the
// resolver needs.
const ownableABI = `[{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`

// ChainOwnerResolver implements interfaces.OwnerResolver by calling owner()
// on the object's contract.
type ChainOwnerResolver struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
}

// NewChainOwnerResolver creates a resolver reading through caller, usually
// an *ethclient.Client.
func NewChainOwnerResolver(caller ethereum.ContractCaller) (*ChainOwnerResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(ownableABI))
	if err != nil {
		return nil, err
	}
	return &ChainOwnerResolver{caller: caller, abi: parsed}, nil
}

// OwnerOf returns the lower-cased owner of the contract at objectAddress.
// Malformed addresses and contracts without an owner yield ErrOwnerNotFound.
func (r *ChainOwnerResolver) OwnerOf(ctx context.Context, objectAddress string) (string, error) {
	if !common.IsHexAddress(objectAddress) {
		return "", fmt.Errorf("%w: invalid address %q", interfaces.ErrOwnerNotFound, objectAddress)
	}
	contract := common.HexToAddress(objectAddress)

	input, err := r.abi.Pack("owner")
	if err != nil {
		return "", err
	}

	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: owner() of %s: %v", interfaces.ErrBackendUnavailable, contract.Hex(), err)
	}
	if len(output) == 0 {
		return "", fmt.Errorf("%w: %s has no owner()", interfaces.ErrOwnerNotFound, contract.Hex())
	}

	values, err := r.abi.Unpack("owner", output)
	if err != nil || len(values) != 1 {
		return "", fmt.Errorf("%w: could not decode owner() of %s", interfaces.ErrOwnerNotFound, contract.Hex())
	}
	owner, ok := values[0].(common.Address)
	if !ok || owner == (common.Address{}) {
		return "", fmt.Errorf("%w: %s", interfaces.ErrOwnerNotFound, contract.Hex())
	}
	return strings.ToLower(owner.Hex()), nil
}
