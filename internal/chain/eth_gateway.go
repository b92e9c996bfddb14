package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"axalportal/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultPollInterval = 2 * time.Second

// Backend is the RPC surface the gateway uses. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	ReceiptFetcher
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Backend = (*ethclient.Client)(nil)

// EthGateway reads balances from the balance contract and submits claims to
// the claim contract, both over one RPC connection and one signing key.
type EthGateway struct {
	client       Backend
	balance      *bind.BoundContract
	claim        *bind.BoundContract
	claimMethod  string
	chainID      *big.Int
	transacts    *bind.TransactOpts
	pollInterval time.Duration
}

type EthGatewayConfig struct {
	RPCURL          string
	PrivateKeyHex   string
	BalanceContract string
	ClaimContract   string
	ClaimMethod     string
	// ChainID skips the eth_chainId lookup when non-zero.
	ChainID      int64
	PollInterval time.Duration
}

func (cfg *EthGatewayConfig) normalize() error {
	if cfg.ClaimContract == "" {
		return fmt.Errorf("claim contract address is required")
	}
	if cfg.PrivateKeyHex == "" {
		return fmt.Errorf("private key is required for submitting claims")
	}
	if cfg.BalanceContract == "" {
		cfg.BalanceContract = cfg.ClaimContract
	}
	for _, addr := range []string{cfg.BalanceContract, cfg.ClaimContract} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid contract address %q", addr)
		}
	}
	if cfg.ClaimMethod == "" {
		cfg.ClaimMethod = contracts.MethodClaimReward
	}
	if cfg.ClaimMethod != contracts.MethodClaimReward && cfg.ClaimMethod != contracts.MethodVerifyAndClaim {
		return fmt.Errorf("unsupported claim method %q", cfg.ClaimMethod)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return nil
}

// NewEthGateway dials cfg.RPCURL and builds a gateway over the connection.
func NewEthGateway(ctx context.Context, cfg EthGatewayConfig) (*EthGateway, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	if cfg.ChainID == 0 {
		id, err := cli.ChainID(ctx)
		if err != nil {
			cli.Close()
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
		cfg.ChainID = id.Int64()
	}

	gw, err := NewEthGatewayWithBackend(cli, cfg)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return gw, nil
}

// NewEthGatewayWithBackend builds a gateway over an existing backend. The
// chain ID must be set; cfg.RPCURL is ignored.
func NewEthGatewayWithBackend(backend Backend, cfg EthGatewayConfig) (*EthGateway, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain id is required")
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(contracts.RewardABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate

	return &EthGateway{
		client:       backend,
		balance:      bind.NewBoundContract(common.HexToAddress(cfg.BalanceContract), parsedABI, backend, backend, backend),
		claim:        bind.NewBoundContract(common.HexToAddress(cfg.ClaimContract), parsedABI, backend, backend, backend),
		claimMethod:  cfg.ClaimMethod,
		chainID:      chainID,
		transacts:    txOpts,
		pollInterval: cfg.PollInterval,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Signer is the address that pays for and signs claim transactions.
func (g *EthGateway) Signer() common.Address {
	return g.transacts.From
}

func (g *EthGateway) Balance(ctx context.Context, customer string) (*big.Int, error) {
	if !common.IsHexAddress(customer) {
		return nil, &RemoteCallError{Op: "get balance", Err: fmt.Errorf("invalid customer address %q", customer)}
	}

	var out []interface{}
	err := g.balance.Call(&bind.CallOpts{Context: ctx}, &out, "getBalance", common.HexToAddress(customer))
	if err != nil {
		return nil, &RemoteCallError{Op: "get balance", Reason: decodeRevert(err), Err: err}
	}
	if len(out) != 1 {
		return nil, &RemoteCallError{Op: "get balance", Err: fmt.Errorf("unexpected output count %d", len(out))}
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, &RemoteCallError{Op: "get balance", Err: fmt.Errorf("unexpected output type %T", out[0])}
	}
	return amount, nil
}

func (g *EthGateway) Claim(ctx context.Context, req ClaimRequest) (ClaimReceipt, error) {
	if !common.IsHexAddress(req.Customer) {
		return ClaimReceipt{}, &RemoteCallError{Op: "submit claim", Err: fmt.Errorf("invalid customer address %q", req.Customer)}
	}

	opts := *g.transacts
	opts.Context = ctx

	tx, err := g.claim.Transact(&opts, g.claimMethod,
		common.HexToAddress(req.Customer),
		new(big.Int).SetUint64(req.APYThreshold),
		new(big.Int).SetUint64(req.TVLThreshold),
	)
	if err != nil {
		return ClaimReceipt{}, &RemoteCallError{Op: "submit claim", Reason: decodeRevert(err), Err: err}
	}
	log.Printf("claim tx %s submitted (%s)", tx.Hash().Hex(), g.claimMethod)

	receipt, err := WaitForReceipt(ctx, g.client, tx.Hash(), g.pollInterval)
	if err != nil {
		return ClaimReceipt{}, &RemoteCallError{Op: "await confirmation", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ClaimReceipt{}, &RemoteCallError{
			Op:     "claim",
			Reason: g.replayRevert(ctx, tx, receipt),
			Err:    ErrReverted,
		}
	}

	return ClaimReceipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// replayRevert re-executes a reverted transaction as a call at its block to
// recover the revert string, which receipts do not carry.
func (g *EthGateway) replayRevert(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:  g.transacts.From,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := g.client.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	return decodeRevert(err)
}

func (g *EthGateway) Ping(ctx context.Context) error {
	if g.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := g.client.BlockNumber(ctx)
	return err
}

func (g *EthGateway) Close() {
	if c, ok := g.client.(interface{ Close() }); ok {
		c.Close()
	}
}

func (g *EthGateway) ChainID() *big.Int {
	return new(big.Int).Set(g.chainID)
}
