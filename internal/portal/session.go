// Package portal holds the state behind the reward page: the customer's
// balance, the two claim thresholds, and the single in-flight claim.
package portal

import (
	"context"
	"log"
	"sync"
	"time"

	"axalportal/internal/chain"
	"axalportal/internal/units"
)

// Slider bounds for the two thresholds. Zero means unset.
const (
	MinAPY  = 1
	MaxAPY  = 20
	MinTVL  = 1000
	MaxTVL  = 100000
	StepTVL = 500
)

// Phase tells whether the displayed balance came from the chain or from the
// optimistic bump applied after a confirmed claim.
type Phase string

const (
	PhaseUnknown    Phase = "unknown"
	PhaseOptimistic Phase = "optimistic"
	PhaseConfirmed  Phase = "confirmed"
)

// Observer receives workflow events, typically for metrics.
type Observer interface {
	BalanceQueried(ok bool)
	ClaimFinished(status string)
	ClaimInFlight(inFlight bool)
	Reconciled(ok bool)
}

type noopObserver struct{}

func (noopObserver) BalanceQueried(bool)  {}
func (noopObserver) ClaimFinished(string) {}
func (noopObserver) ClaimInFlight(bool)   {}
func (noopObserver) Reconciled(bool)      {}

type Options struct {
	Customer       string
	ExplorerTxURL  string
	TokenSymbol    string
	ReconcileDelay time.Duration
	// Increment is added to the displayed balance once a claim confirms.
	// It is cosmetic and not read from the contract.
	Increment int64
	APY       uint64
	TVL       uint64
	Observer  Observer
}

// State is a snapshot of the session.
type State struct {
	Balance       string
	Phase         Phase
	Status        string
	StatusIsError bool
	APY           uint64
	TVL           uint64
	Busy          bool
	TxHash        string
}

// Session serialises the claim workflow for one customer. Claims never run
// concurrently; a second attempt while one is outstanding returns ErrBusy.
type Session struct {
	gw   chain.Gateway
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	closed    bool
	reconcile *time.Timer
	gen       uint64
	pending   sync.WaitGroup
}

func NewSession(gw chain.Gateway, opts Options) *Session {
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.ReconcileDelay <= 0 {
		opts.ReconcileDelay = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		gw:     gw,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state: State{
			Phase: PhaseUnknown,
			APY:   opts.APY,
			TVL:   opts.TVL,
		},
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconcileDelay is how long after a confirmed claim the balance is re-read.
func (s *Session) ReconcileDelay() time.Duration {
	return s.opts.ReconcileDelay
}

// Refresh re-reads the customer's balance. On failure the balance becomes
// BalanceError and the remote error is returned.
func (s *Session) Refresh(ctx context.Context) error {
	amount, err := s.gw.Balance(ctx, s.opts.Customer)
	s.opts.Observer.BalanceQueried(err == nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	s.state.Phase = PhaseConfirmed
	if err != nil {
		log.Printf("fetch balance error: %v", err)
		s.state.Balance = BalanceError
		return err
	}
	s.state.Balance = units.FormatUnits(amount, units.TokenDecimals)
	return nil
}

// SetThresholds updates the claim thresholds. Zero leaves a threshold unset;
// non-zero values must be within the slider bounds.
func (s *Session) SetThresholds(apy, tvl uint64) error {
	if apy != 0 && (apy < MinAPY || apy > MaxAPY) {
		return &ValidationError{Message: MsgOutOfBounds}
	}
	if tvl != 0 && (tvl < MinTVL || tvl > MaxTVL) {
		return &ValidationError{Message: MsgOutOfBounds}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.APY = apy
	s.state.TVL = tvl
	return nil
}

// Claim runs the claim workflow: submit, wait for inclusion, bump the
// displayed balance, then schedule a reconciliation read. The call is not
// bounded by any timeout beyond ctx.
func (s *Session) Claim(ctx context.Context) (chain.ClaimReceipt, error) {
	s.mu.Lock()
	if s.state.Busy {
		s.mu.Unlock()
		s.opts.Observer.ClaimFinished("busy")
		return chain.ClaimReceipt{}, ErrBusy
	}
	if s.state.APY == 0 || s.state.TVL == 0 {
		s.state.Status = MsgSetThresholds
		s.state.StatusIsError = true
		s.mu.Unlock()
		s.opts.Observer.ClaimFinished("invalid")
		return chain.ClaimReceipt{}, &ValidationError{Message: MsgSetThresholds}
	}
	s.state.Busy = true
	req := chain.ClaimRequest{
		Customer:     s.opts.Customer,
		APYThreshold: s.state.APY,
		TVLThreshold: s.state.TVL,
	}
	s.mu.Unlock()
	s.opts.Observer.ClaimInFlight(true)

	receipt, err := s.gw.Claim(ctx, req)

	s.mu.Lock()
	if err != nil {
		log.Printf("claim error: %v", err)
		s.state.Status = FailureMessage(err)
		s.state.StatusIsError = true
	} else {
		s.state.TxHash = receipt.TxHash
		s.state.Status = MsgClaimed
		s.state.StatusIsError = false
		if bumped, ok := units.AddDisplay(s.state.Balance, s.opts.Increment); ok {
			s.state.Balance = bumped
			s.state.Phase = PhaseOptimistic
		}
		s.scheduleReconcileLocked()
	}
	s.state.Busy = false
	s.mu.Unlock()

	s.opts.Observer.ClaimInFlight(false)
	if err != nil {
		s.opts.Observer.ClaimFinished("failed")
		return chain.ClaimReceipt{}, err
	}
	s.opts.Observer.ClaimFinished("claimed")
	return receipt, nil
}

// FailureMessage is the status shown for a failed claim: the contract's
// revert reason when one was recovered, the generic message otherwise.
func FailureMessage(err error) string {
	if reason := chain.RevertReason(err); reason != "" {
		return reason
	}
	return MsgClaimFailed
}

// scheduleReconcileLocked arms the reconciliation read, replacing any read
// still pending from an earlier claim. Callers hold s.mu.
func (s *Session) scheduleReconcileLocked() {
	if s.closed {
		return
	}
	s.stopReconcileLocked()
	s.gen++
	gen := s.gen
	s.pending.Add(1)
	s.reconcile = time.AfterFunc(s.opts.ReconcileDelay, func() {
		defer s.pending.Done()
		s.runReconcile(gen)
	})
}

func (s *Session) stopReconcileLocked() {
	if s.reconcile != nil && s.reconcile.Stop() {
		s.pending.Done()
	}
	s.reconcile = nil
}

// runReconcile overwrites the balance with chain state. The reconciled value
// always wins over the optimistic one, including when it is BalanceError.
func (s *Session) runReconcile(gen uint64) {
	s.mu.Lock()
	stale := s.closed || gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	err := s.Refresh(s.ctx)
	s.opts.Observer.Reconciled(err == nil)
}

// Close cancels any pending reconciliation and waits for a running one to
// return. An in-flight claim is not interrupted.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopReconcileLocked()
	s.mu.Unlock()

	s.cancel()
	s.pending.Wait()
}
