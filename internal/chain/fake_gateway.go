package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// FakeGateway keeps balances in memory. Each successful claim credits Reward
// base units to the customer. It backs local runs without a signing key and
// the tests of the packages above it.
type FakeGateway struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	nonce    uint64

	// Reward is credited per claim; nil means nothing is credited.
	Reward *big.Int
	// BalanceErr and ClaimErr, when set, are returned instead of results.
	BalanceErr error
	ClaimErr   error
	// Confirm, when non-nil, holds every claim until a value is received,
	// standing in for block inclusion.
	Confirm chan struct{}

	BalanceCalls int
	ClaimCalls   int
	LastClaim    ClaimRequest
}

func NewFakeGateway(reward *big.Int) *FakeGateway {
	return &FakeGateway{
		balances: make(map[string]*big.Int),
		Reward:   reward,
	}
}

// SetBalance overwrites the stored balance for customer.
func (f *FakeGateway) SetBalance(customer string, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[strings.ToLower(customer)] = new(big.Int).Set(amount)
}

func (f *FakeGateway) Balance(_ context.Context, customer string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BalanceCalls++
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if bal, ok := f.balances[strings.ToLower(customer)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (f *FakeGateway) Claim(ctx context.Context, req ClaimRequest) (ClaimReceipt, error) {
	f.mu.Lock()
	f.ClaimCalls++
	f.LastClaim = req
	confirm := f.Confirm
	f.mu.Unlock()

	if req.Customer == "" {
		return ClaimReceipt{}, &RemoteCallError{Op: "submit claim", Err: fmt.Errorf("missing customer address")}
	}
	if confirm != nil {
		select {
		case <-confirm:
		case <-ctx.Done():
			return ClaimReceipt{}, &RemoteCallError{Op: "await confirmation", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClaimErr != nil {
		return ClaimReceipt{}, f.ClaimErr
	}
	f.nonce++
	key := strings.ToLower(req.Customer)
	bal, ok := f.balances[key]
	if !ok {
		bal = new(big.Int)
	}
	if f.Reward != nil {
		bal = new(big.Int).Add(bal, f.Reward)
	}
	f.balances[key] = bal

	return ClaimReceipt{
		TxHash:      fakeHash(fmt.Sprintf("%s:%d:%d:%d", key, req.APYThreshold, req.TVLThreshold, f.nonce)),
		BlockNumber: f.nonce,
	}, nil
}

func (f *FakeGateway) Ping(context.Context) error { return nil }

func fakeHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return "0x" + hex.EncodeToString(sum[:])
}

// Fail swaps the scripted errors; nil clears them.
func (f *FakeGateway) Fail(balanceErr, claimErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BalanceErr = balanceErr
	f.ClaimErr = claimErr
}

// Calls reports how many balance reads and claims were served.
func (f *FakeGateway) Calls() (balance, claim int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BalanceCalls, f.ClaimCalls
}
