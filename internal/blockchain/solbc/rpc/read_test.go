package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchForStrategy(t *testing.T) {
	assert.Equal(t, 1, BatchForStrategy(StrategyConservative))
	assert.Equal(t, 2, BatchForStrategy(StrategyBalanced))
	assert.Equal(t, 3, BatchForStrategy(StrategyAggressive))
	assert.Equal(t, 2, BatchForStrategy("unknown"))
}

func TestGetLatestBlockhashRaced_InjectedCall(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B"))

	want := &solanarpc.GetLatestBlockhashResult{}
	want.Value = &solanarpc.LatestBlockhashResult{LastValidBlockHeight: 77}

	got, err := e.GetLatestBlockhashRaced(context.Background(), solanarpc.CommitmentFinalized, ReadOptions[*solanarpc.GetLatestBlockhashResult]{
		MicroBatch: 2,
		Call: func(ctx context.Context, url string) (*solanarpc.GetLatestBlockhashResult, error) {
			if url == "A" {
				time.Sleep(5 * time.Millisecond)
				return nil, errors.New("a rejected")
			}
			time.Sleep(15 * time.Millisecond)
			return want, nil
		},
	})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.GreaterOrEqual(t, e.GetStatus().LastReadRace.Attempts, 2)
}

func TestReadRace_AllRejectKeepsUnderlyingMessage(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B"))

	_, err := e.GetSignaturesForAddressRaced(context.Background(), solana.PublicKey{}, nil, ReadOptions[[]*solanarpc.TransactionSignature]{
		Call: func(ctx context.Context, url string) ([]*solanarpc.TransactionSignature, error) {
			return nil, errors.New("invalid param from " + url)
		},
	})
	require.Error(t, err)
	assert.Regexp(t, `invalid param from (A|B)`, err.Error())
}

func TestReadRace_RetriesTransientFailure(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	var passes atomic.Int32
	slot, err := e.GetSlotRaced(context.Background(), ReadOptions[uint64]{
		Retries: Retries(2),
		Call: func(ctx context.Context, url string) (uint64, error) {
			if passes.Add(1) == 1 {
				return 0, jsonrpc.NewHTTPError(503, errors.New("http status 503"))
			}
			return 321, nil
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 321, slot)
	assert.EqualValues(t, 2, passes.Load())
}

func TestReadRace_PermanentFailureNotRetried(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	var passes atomic.Int32
	_, err := e.GetSlotRaced(context.Background(), ReadOptions[uint64]{
		Retries: Retries(3),
		Call: func(ctx context.Context, url string) (uint64, error) {
			passes.Add(1)
			return 0, errors.New("method not found")
		},
	})
	require.Error(t, err)
	assert.True(t, IsRaceError(err))
	assert.EqualValues(t, 1, passes.Load())
}

func TestReadRace_RetryCeiling(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	var passes atomic.Int32
	_, err := e.GetSlotRaced(context.Background(), ReadOptions[uint64]{
		Retries: Retries(1),
		Timeout: 10 * time.Millisecond,
		Call: func(ctx context.Context, url string) (uint64, error) {
			passes.Add(1)
			<-ctx.Done()
			return 0, ctx.Err()
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptTimeout)
	assert.EqualValues(t, 2, passes.Load())
}

func TestReadRace_StrategySetsWaveWidth(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B", "C"))

	var calls atomic.Int32
	_, err := e.GetTransactionRaced(context.Background(), solana.Signature{}, nil, ReadOptions[*solanarpc.GetTransactionResult]{
		Strategy: StrategyConservative,
		Call: func(ctx context.Context, url string) (*solanarpc.GetTransactionResult, error) {
			calls.Add(1)
			return &solanarpc.GetTransactionResult{Slot: 1}, nil
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, e.GetStatus().LastReadRace.Attempts)
}

func TestReadRace_DefaultCallsUseDialer(t *testing.T) {
	dialer := newFakeDialer(map[string]*fakeConn{
		"A": {url: "A", slot: 99},
	})
	e := newTestEngine(t, testConfig("A"), WithDialer(dialer.dial))

	slot, err := e.GetSlotRaced(context.Background(), ReadOptions[uint64]{})
	require.NoError(t, err)
	assert.EqualValues(t, 99, slot)

	_, err = e.GetParsedTokenAccountsByOwnerRaced(context.Background(), solana.PublicKey{}, nil, ReadOptions[*solanarpc.GetTokenAccountsResult]{})
	require.NoError(t, err)

	_, err = e.SimulateTransactionRaced(context.Background(), nil, nil, ReadOptions[*solanarpc.SimulateTransactionResponse]{})
	assert.ErrorIs(t, err, ErrNilTransaction)
}

func TestGetBalance_UsesActiveEndpoint(t *testing.T) {
	dialer := newFakeDialer(map[string]*fakeConn{
		"A": {url: "A", balance: 1},
		"B": {url: "B", balance: 2},
	})
	e := newTestEngine(t, testConfig("A", "B"), WithDialer(dialer.dial))

	bal, err := e.GetBalance(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, bal)

	assert.Equal(t, "B", e.RotateActive("manual"))
	bal, err = e.GetBalance(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, bal)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(ErrAttemptTimeout))
	assert.True(t, IsRetryableError(&AttemptError{Err: ErrRateLimit, NodeURL: "A", Method: "m"}))
	assert.True(t, IsRetryableError(jsonrpc.NewHTTPError(429, errors.New("http status 429"))))
	assert.True(t, IsRetryableError(jsonrpc.NewHTTPError(502, errors.New("http status 502"))))
	assert.True(t, IsRetryableError(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsRetryableError(errors.New("unexpected EOF")))
	assert.False(t, IsRetryableError(jsonrpc.NewHTTPError(400, errors.New("http status 400"))))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(errors.New("Transaction simulation failed")))
}
