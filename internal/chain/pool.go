package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"axalportal/internal/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// liquidityRateIndex is the position of currentLiquidityRate in getReserveData.
const liquidityRateIndex = 2

// PoolReader queries an Aave-style lending pool. It needs no signing key.
type PoolReader struct {
	pool *bind.BoundContract
}

// NewPoolReader binds the lending pool at address using caller, usually an
// *ethclient.Client.
func NewPoolReader(caller bind.ContractCaller, address string) (*PoolReader, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid lending pool address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(contracts.LendingPoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	bound := bind.NewBoundContract(common.HexToAddress(address), parsed, caller, nil, nil)
	return &PoolReader{pool: bound}, nil
}

// LiquidityRate returns the asset's current liquidity rate in ray units.
func (p *PoolReader) LiquidityRate(ctx context.Context, asset string) (*big.Int, error) {
	if !common.IsHexAddress(asset) {
		return nil, fmt.Errorf("invalid asset address %q", asset)
	}
	var out []interface{}
	if err := p.pool.Call(&bind.CallOpts{Context: ctx}, &out, "getReserveData", common.HexToAddress(asset)); err != nil {
		return nil, &RemoteCallError{Op: "get reserve data", Reason: decodeRevert(err), Err: err}
	}
	if len(out) <= liquidityRateIndex {
		return nil, &RemoteCallError{Op: "get reserve data", Err: fmt.Errorf("unexpected output count %d", len(out))}
	}
	rate, ok := out[liquidityRateIndex].(*big.Int)
	if !ok {
		return nil, &RemoteCallError{Op: "get reserve data", Err: fmt.Errorf("unexpected rate type %T", out[liquidityRateIndex])}
	}
	return rate, nil
}

// Reserves lists the assets registered with the pool.
func (p *PoolReader) Reserves(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := p.pool.Call(&bind.CallOpts{Context: ctx}, &out, "getReservesList"); err != nil {
		return nil, &RemoteCallError{Op: "get reserves list", Reason: decodeRevert(err), Err: err}
	}
	if len(out) != 1 {
		return nil, &RemoteCallError{Op: "get reserves list", Err: fmt.Errorf("unexpected output count %d", len(out))}
	}
	assets, ok := out[0].([]common.Address)
	if !ok {
		return nil, &RemoteCallError{Op: "get reserves list", Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return assets, nil
}
