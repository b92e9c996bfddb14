package portal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"axalportal/internal/chain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customer = "0x1422CF65ee6918eADF2C43a0835e155faed7d707"

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type recorder struct {
	mu       sync.Mutex
	claims   []string
	inFlight []bool
	recon    []bool
}

func (r *recorder) BalanceQueried(bool) {}

func (r *recorder) ClaimFinished(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = append(r.claims, status)
}

func (r *recorder) ClaimInFlight(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight = append(r.inFlight, v)
}

func (r *recorder) Reconciled(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recon = append(r.recon, ok)
}

func newTestSession(t *testing.T, gw chain.Gateway, delay time.Duration) *Session {
	t.Helper()
	s := NewSession(gw, Options{
		Customer:       customer,
		ExplorerTxURL:  "https://sepolia.etherscan.io/tx/{txHash}",
		TokenSymbol:    "AXAL",
		ReconcileDelay: delay,
		Increment:      10,
		APY:            5,
		TVL:            5000,
	})
	t.Cleanup(s.Close)
	return s
}

func TestRefreshFormatsBalance(t *testing.T) {
	gw := chain.NewFakeGateway(nil)
	gw.SetBalance(customer, tokens(1))
	s := newTestSession(t, gw, time.Hour)

	require.NoError(t, s.Refresh(context.Background()))
	st := s.State()
	assert.Equal(t, "1.0", st.Balance)
	assert.Equal(t, PhaseConfirmed, st.Phase)
}

func TestRefreshFailureSetsSentinel(t *testing.T) {
	gw := chain.NewFakeGateway(nil)
	gw.Fail(errors.New("rpc unreachable"), nil)
	s := newTestSession(t, gw, time.Hour)

	assert.Error(t, s.Refresh(context.Background()))
	assert.Equal(t, BalanceError, s.State().Balance)
}

func TestClaimRequiresThresholds(t *testing.T) {
	gw := chain.NewFakeGateway(nil)
	s := newTestSession(t, gw, time.Hour)
	require.NoError(t, s.SetThresholds(0, 5000))

	_, err := s.Claim(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgSetThresholds, verr.Message)
	assert.Equal(t, MsgSetThresholds, s.State().Status)
	assert.True(t, s.State().StatusIsError)
	_, claims := gw.Calls()
	assert.Zero(t, claims, "no network call without thresholds")

	require.NoError(t, s.SetThresholds(5, 0))
	_, err = s.Claim(context.Background())
	assert.ErrorAs(t, err, &verr)
}

func TestSetThresholdsBounds(t *testing.T) {
	s := newTestSession(t, chain.NewFakeGateway(nil), time.Hour)

	assert.NoError(t, s.SetThresholds(MinAPY, MinTVL))
	assert.NoError(t, s.SetThresholds(MaxAPY, MaxTVL))
	assert.Error(t, s.SetThresholds(21, 5000))
	assert.Error(t, s.SetThresholds(5, 999))
	assert.Error(t, s.SetThresholds(5, 100500))

	st := s.State()
	assert.Equal(t, uint64(MaxAPY), st.APY, "rejected values leave thresholds untouched")
	assert.Equal(t, uint64(MaxTVL), st.TVL)
}

func TestClaimSuccessBumpsBalanceOptimistically(t *testing.T) {
	gw := chain.NewFakeGateway(tokens(10))
	gw.SetBalance(customer, tokens(1))
	s := newTestSession(t, gw, time.Hour)
	require.NoError(t, s.Refresh(context.Background()))

	receipt, err := s.Claim(context.Background())
	require.NoError(t, err)

	st := s.State()
	assert.Equal(t, "11.00", st.Balance)
	assert.Equal(t, PhaseOptimistic, st.Phase)
	assert.Equal(t, MsgClaimed, st.Status)
	assert.False(t, st.StatusIsError)
	assert.Equal(t, receipt.TxHash, st.TxHash)
	assert.False(t, st.Busy)

	v := s.View()
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+receipt.TxHash, v.ExplorerURL)
	assert.Equal(t, "Wallet Balance: 11.00 AXAL", v.BalanceLabel)

	last := gw.LastClaim
	assert.Equal(t, customer, last.Customer)
	assert.Equal(t, uint64(5), last.APYThreshold)
	assert.Equal(t, uint64(5000), last.TVLThreshold)
}

func TestClaimFailureSurfacesRevertReason(t *testing.T) {
	gw := chain.NewFakeGateway(nil)
	gw.SetBalance(customer, tokens(2))
	s := newTestSession(t, gw, time.Hour)
	require.NoError(t, s.Refresh(context.Background()))

	gw.Fail(nil, &chain.RemoteCallError{Op: "submit claim", Reason: "APY below threshold", Err: errors.New("execution reverted")})
	_, err := s.Claim(context.Background())
	require.Error(t, err)

	st := s.State()
	assert.Equal(t, "APY below threshold", st.Status)
	assert.True(t, st.StatusIsError)
	assert.Equal(t, "2.0", st.Balance, "prior balance untouched")
	assert.False(t, st.Busy)
	assert.Empty(t, st.TxHash)
}

func TestClaimFailureWithoutReasonUsesFallback(t *testing.T) {
	gw := chain.NewFakeGateway(nil)
	gw.Fail(nil, errors.New("dial tcp: connection refused"))
	s := newTestSession(t, gw, time.Hour)

	_, err := s.Claim(context.Background())
	require.Error(t, err)
	assert.Equal(t, MsgClaimFailed, s.State().Status)
}

func TestFailureMessageDependsOnlyOnError(t *testing.T) {
	reverted := &chain.RemoteCallError{Op: "claim", Reason: "X", Err: chain.ErrReverted}
	assert.Equal(t, "X", FailureMessage(reverted))
	assert.Equal(t, "X", FailureMessage(fmt.Errorf("wrapped: %w", reverted)))
	assert.Equal(t, MsgClaimFailed, FailureMessage(errors.New("connection reset")))
	assert.Equal(t, MsgClaimFailed, FailureMessage(&chain.RemoteCallError{Op: "claim", Err: chain.ErrReverted}))
}

func TestReconciledBalanceWins(t *testing.T) {
	gw := chain.NewFakeGateway(tokens(3))
	gw.SetBalance(customer, tokens(1))
	rec := &recorder{}
	s := NewSession(gw, Options{Customer: customer, ReconcileDelay: 20 * time.Millisecond, Increment: 10, APY: 5, TVL: 5000, Observer: rec})
	t.Cleanup(s.Close)
	require.NoError(t, s.Refresh(context.Background()))

	_, err := s.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "11.00", s.State().Balance)

	require.Eventually(t, func() bool {
		return s.State().Phase == PhaseConfirmed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "4.0", s.State().Balance)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []bool{true}, rec.recon)
	assert.Equal(t, []string{"claimed"}, rec.claims)
	assert.Equal(t, []bool{true, false}, rec.inFlight)
}

func TestReconcileFailureOverwritesOptimisticValue(t *testing.T) {
	gw := chain.NewFakeGateway(tokens(10))
	gw.SetBalance(customer, tokens(1))
	s := newTestSession(t, gw, 20*time.Millisecond)
	require.NoError(t, s.Refresh(context.Background()))

	_, err := s.Claim(context.Background())
	require.NoError(t, err)
	gw.Fail(errors.New("rpc unreachable"), nil)

	require.Eventually(t, func() bool {
		return s.State().Balance == BalanceError
	}, time.Second, 5*time.Millisecond)
}

func TestClaimWhileBusyIsNoop(t *testing.T) {
	gw := chain.NewFakeGateway(tokens(10))
	gw.Confirm = make(chan struct{})
	s := newTestSession(t, gw, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := s.Claim(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State().Busy }, time.Second, time.Millisecond)
	assert.Equal(t, "Processing...", s.View().ButtonLabel)

	_, err := s.Claim(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, claims := gw.Calls()
	assert.Equal(t, 1, claims)

	gw.Confirm <- struct{}{}
	require.NoError(t, <-done)
	assert.False(t, s.State().Busy)
	assert.Equal(t, "Claim Ticket", s.View().ButtonLabel)
}

func TestCloseCancelsPendingReconcile(t *testing.T) {
	gw := chain.NewFakeGateway(tokens(10))
	gw.SetBalance(customer, tokens(1))
	s := NewSession(gw, Options{Customer: customer, ReconcileDelay: 30 * time.Millisecond, Increment: 10, APY: 5, TVL: 5000})
	require.NoError(t, s.Refresh(context.Background()))

	_, err := s.Claim(context.Background())
	require.NoError(t, err)
	s.Close()

	time.Sleep(80 * time.Millisecond)
	balanceReads, _ := gw.Calls()
	assert.Equal(t, 1, balanceReads, "reconcile must not run after Close")
	assert.Equal(t, "11.00", s.State().Balance)

	s.Close()
}

func TestNewClaimSupersedesPendingReconcile(t *testing.T) {
	gw := chain.NewFakeGateway(tokens(10))
	gw.SetBalance(customer, tokens(1))
	s := newTestSession(t, gw, 40*time.Millisecond)
	require.NoError(t, s.Refresh(context.Background()))

	_, err := s.Claim(context.Background())
	require.NoError(t, err)
	_, err = s.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "21.00", s.State().Balance)

	require.Eventually(t, func() bool {
		return s.State().Phase == PhaseConfirmed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "21.0", s.State().Balance)

	time.Sleep(60 * time.Millisecond)
	balanceReads, _ := gw.Calls()
	assert.Equal(t, 2, balanceReads, "only one reconcile read for two quick claims")
}
