package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Gateway abstracts the two remote contracts the portal talks to.
type Gateway interface {
	Balance(ctx context.Context, customer string) (*big.Int, error)
	// Claim submits the claim transaction and blocks until it is mined.
	Claim(ctx context.Context, req ClaimRequest) (ClaimReceipt, error)
}

// HealthChecker is implemented by gateways that can check the RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type ClaimRequest struct {
	Customer     string
	APYThreshold uint64
	TVLThreshold uint64
}

type ClaimReceipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// ErrReverted marks a transaction that was mined with a failed status.
var ErrReverted = errors.New("transaction reverted")

// RemoteCallError wraps any failure of a read or write call. Reason carries
// the contract-provided revert string when one could be decoded.
type RemoteCallError struct {
	Op     string
	Reason string
	Err    error
}

func (e *RemoteCallError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// RevertReason returns the decoded revert string carried by err, if any.
func RevertReason(err error) string {
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		return rce.Reason
	}
	return ""
}
