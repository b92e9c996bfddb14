package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"axalportal/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataError struct {
	msg  string
	data interface{}
}

func (e dataError) Error() string          { return e.msg }
func (e dataError) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return hexutil.Encode(append(selector, packed...))
}

func TestDecodeRevert(t *testing.T) {
	t.Run("structured data", func(t *testing.T) {
		err := dataError{msg: "execution reverted", data: encodeRevert(t, "APY below threshold")}
		assert.Equal(t, "APY below threshold", decodeRevert(err))
	})
	t.Run("wrapped structured data", func(t *testing.T) {
		err := dataError{msg: "execution reverted", data: encodeRevert(t, "TVL too low")}
		assert.Equal(t, "TVL too low", decodeRevert(errors.Join(errors.New("estimate gas"), err)))
	})
	t.Run("message text", func(t *testing.T) {
		assert.Equal(t, "already claimed", decodeRevert(errors.New("execution reverted: already claimed")))
	})
	t.Run("no reason", func(t *testing.T) {
		assert.Empty(t, decodeRevert(errors.New("connection refused")))
		assert.Empty(t, decodeRevert(dataError{msg: "execution reverted", data: "0x"}))
		assert.Empty(t, decodeRevert(nil))
	})
}

func TestRemoteCallError(t *testing.T) {
	base := errors.New("boom")
	err := error(&RemoteCallError{Op: "submit claim", Reason: "not eligible", Err: base})
	assert.Equal(t, "submit claim: not eligible", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "not eligible", RevertReason(err))
	assert.Empty(t, RevertReason(base))

	plain := &RemoteCallError{Op: "get balance", Err: base}
	assert.Equal(t, "get balance: boom", plain.Error())
}

type scriptedReceipts struct {
	mu      sync.Mutex
	misses  int
	calls   int
	receipt *types.Receipt
	err     error
}

func (s *scriptedReceipts) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.calls <= s.misses {
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func TestWaitForReceiptPollsUntilMined(t *testing.T) {
	want := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}
	fetcher := &scriptedReceipts{misses: 2, receipt: want}

	got, err := WaitForReceipt(context.Background(), fetcher, common.Hash{}, time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 3, fetcher.calls)
}

func TestWaitForReceiptStopsOnError(t *testing.T) {
	fetcher := &scriptedReceipts{err: errors.New("rpc down")}
	_, err := WaitForReceipt(context.Background(), fetcher, common.Hash{}, time.Millisecond)
	assert.EqualError(t, err, "rpc down")
}

func TestWaitForReceiptHonoursCancellation(t *testing.T) {
	fetcher := &scriptedReceipts{misses: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WaitForReceipt(ctx, fetcher, common.Hash{}, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFakeGatewayCreditsReward(t *testing.T) {
	reward := big.NewInt(10)
	gw := NewFakeGateway(reward)
	customer := "0x1422CF65ee6918eADF2C43a0835e155faed7d707"
	gw.SetBalance(customer, big.NewInt(5))

	receipt, err := gw.Claim(context.Background(), ClaimRequest{Customer: customer, APYThreshold: 5, TVLThreshold: 5000})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt.TxHash, "0x"))
	assert.Len(t, receipt.TxHash, 66)

	bal, err := gw.Balance(context.Background(), strings.ToLower(customer))
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal.Int64())
	assert.Equal(t, uint64(5000), gw.LastClaim.TVLThreshold)
}

type poolCaller struct {
	output []byte
	err    error
}

func (p poolCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (p poolCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return p.output, p.err
}

func TestPoolReaderLiquidityRate(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(contracts.LendingPoolABI))
	require.NoError(t, err)

	rate, _ := new(big.Int).SetString("35000000000000000000000000", 10)
	zero := big.NewInt(0)
	packed, err := parsed.Methods["getReserveData"].Outputs.Pack(
		zero, zero, rate, zero, zero, zero, big.NewInt(1700000000), uint16(3), zero, zero, zero,
		common.HexToAddress("0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb"),
	)
	require.NoError(t, err)

	reader, err := NewPoolReader(poolCaller{output: packed}, "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb")
	require.NoError(t, err)

	got, err := reader.LiquidityRate(context.Background(), "0x6B175474E89094C44Da98b954EedeAC495271d0F")
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Cmp(got))
}

func TestPoolReaderRejectsBadAddresses(t *testing.T) {
	_, err := NewPoolReader(poolCaller{}, "not-an-address")
	assert.Error(t, err)

	reader, err := NewPoolReader(poolCaller{}, "0xa97684ead0e402dC232d5A977953DF7ECBaB3CDb")
	require.NoError(t, err)
	_, err = reader.LiquidityRate(context.Background(), "dai")
	assert.Error(t, err)
}
