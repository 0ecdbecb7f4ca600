package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/relay"
)

func countingBroadcast(counter *atomic.Int32, plan map[string]outcome) BroadcastFunc {
	call := scripted(plan)
	return func(ctx context.Context, url string, raw []byte) (string, error) {
		counter.Add(1)
		return call(ctx, url)
	}
}

func TestSendTransactionRaced_PublicRace(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B", "C"))

	var calls atomic.Int32
	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1, 2, 3}}, SendOptions{
		SkipPreflight: true,
		MicroBatch:    3,
		Broadcast: countingBroadcast(&calls, map[string]outcome{
			"A": {delay: 500 * time.Millisecond, value: "SIG_A"},
			"B": {delay: 50 * time.Millisecond, value: "SIG_B"},
			"C": {delay: 80 * time.Millisecond, value: "SIG_C"},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "SIG_B", sig)

	meta := e.GetStatus().LastSendRace
	require.NotNil(t, meta)
	assert.Equal(t, "B", meta.Winner)
	assert.Nil(t, e.GetStatus().LastReadRace)
}

func TestSendTransactionRaced_DefaultBroadcastUsesConnection(t *testing.T) {
	dialer := newFakeDialer(map[string]*fakeConn{
		"A": {url: "A", err: errors.New("node is behind")},
	})
	e := newTestEngine(t, testConfig("A", "B"), WithDialer(dialer.dial))

	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{9}}, SendOptions{SkipPreflight: true})
	require.NoError(t, err)
	// fakeConn для B возвращает нулевую подпись
	assert.Equal(t, "1111111111111111111111111111111111111111111111111111111111111111", sig)
}

func TestSendTransactionRaced_AllBroadcastsFail(t *testing.T) {
	e := newTestEngine(t, testConfig("A", "B"))

	var calls atomic.Int32
	_, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{
		Broadcast: countingBroadcast(&calls, map[string]outcome{
			"A": {err: errors.New("blockhash not found")},
			"B": {delay: 5 * time.Millisecond, err: errors.New("node unhealthy")},
		}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all broadcasts failed")

	var raceErr *RaceError
	require.ErrorAs(t, err, &raceErr)
	assert.Equal(t, ClassSend, raceErr.Class)
	assert.Positive(t, raceErr.SendLatency)
	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, errors.Is(err, raceErr.Err))
}

func TestSendTransactionRaced_SerializeError(t *testing.T) {
	e := newTestEngine(t, testConfig("A"))

	_, err := e.SendTransactionRaced(context.Background(), fakeTx{err: errors.New("unsigned")}, SendOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialize transaction")

	_, err = e.SendTransactionRaced(context.Background(), nil, SendOptions{})
	assert.ErrorIs(t, err, ErrNilTransaction)
}

func TestSendTransactionRaced_RelayPreempts(t *testing.T) {
	r := &mockRelay{}
	r.On("Submit", mock.Anything, mock.Anything).Return(relay.Result{Success: true, Signature: "X"}, nil).Once()

	cfg := testConfig("A", "B")
	cfg.Relay = r
	e := newTestEngine(t, cfg)

	var calls atomic.Int32
	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{
		UseRelay: true,
		Broadcast: countingBroadcast(&calls, map[string]outcome{
			"A": {value: "PUBLIC_A"},
			"B": {value: "PUBLIC_B"},
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "X", sig)
	assert.Zero(t, calls.Load())
	r.AssertExpectations(t)
}

func TestSendTransactionRaced_RelaySlotFromActiveEndpoint(t *testing.T) {
	dialer := newFakeDialer(map[string]*fakeConn{
		"A": {url: "A", slot: 4242},
		"B": {url: "B", slot: 1},
	})

	var slot uint64
	r := &mockRelay{}
	r.On("Submit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(relay.Request)
		require.NotNil(t, req.CurrentSlot)
		var err error
		slot, err = req.CurrentSlot(args.Get(0).(context.Context))
		require.NoError(t, err)
	}).Return(relay.Result{Success: true, Signature: "BUNDLED"}, nil).Once()

	cfg := testConfig("A", "B")
	cfg.Relay = r
	e := newTestEngine(t, cfg, WithDialer(dialer.dial))

	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{UseRelay: true})
	require.NoError(t, err)
	assert.Equal(t, "BUNDLED", sig)
	assert.EqualValues(t, 4242, slot)
	assert.EqualValues(t, 1, dialer.dials.Load())

	status := e.GetStatus()
	assert.Nil(t, status.LastReadRace)
	assert.Zero(t, e.health.snapshot("A").Successes)
}

func TestSendTransactionRaced_RelayNotRequested(t *testing.T) {
	r := &mockRelay{}
	cfg := testConfig("A")
	cfg.Relay = r
	e := newTestEngine(t, cfg)

	var calls atomic.Int32
	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{
		Broadcast: countingBroadcast(&calls, map[string]outcome{"A": {value: "PUBLIC_A"}}),
	})
	require.NoError(t, err)
	assert.Equal(t, "PUBLIC_A", sig)
	r.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSendTransactionRaced_RelayPreferFromConfig(t *testing.T) {
	r := &mockRelay{}
	r.On("Submit", mock.Anything, mock.Anything).Return(relay.Result{Success: true, Signature: "PREFERRED"}, nil)

	cfg := testConfig("A")
	cfg.Relay = r
	cfg.RelayPrefer = true
	e := newTestEngine(t, cfg)

	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, "PREFERRED", sig)
}

func TestSendTransactionRaced_RelayFallback(t *testing.T) {
	tests := []struct {
		name   string
		result relay.Result
		err    error
	}{
		{name: "relay error", err: errors.New("relay_down")},
		{name: "success without signature", result: relay.Result{Success: true}},
		{name: "signature without success", result: relay.Result{Signature: "NOPE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRelay{}
			r.On("Submit", mock.Anything, mock.Anything).Return(tt.result, tt.err).Once()

			cfg := testConfig("A", "B")
			cfg.Relay = r
			e := newTestEngine(t, cfg)

			var calls atomic.Int32
			sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{
				UseRelay: true,
				Broadcast: countingBroadcast(&calls, map[string]outcome{
					"A": {delay: 15 * time.Millisecond, err: errors.New("a rejected")},
					"B": {delay: 10 * time.Millisecond, value: "SIG_B"},
				}),
			})
			require.NoError(t, err)
			assert.Equal(t, "SIG_B", sig)
			assert.Positive(t, calls.Load())
			r.AssertExpectations(t)
		})
	}
}

func TestSendTransactionRaced_RelayTimeout(t *testing.T) {
	r := &mockRelay{}
	r.On("Submit", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(200 * time.Millisecond) }).
		Return(relay.Result{Success: true, Signature: "TOO_LATE"}, nil)

	cfg := testConfig("A")
	cfg.Relay = r
	cfg.RelayTimeout = 20 * time.Millisecond
	e := newTestEngine(t, cfg)

	var calls atomic.Int32
	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1}}, SendOptions{
		UseRelay:  true,
		Broadcast: countingBroadcast(&calls, map[string]outcome{"A": {value: "SIG_A"}}),
	})
	require.NoError(t, err)
	assert.Equal(t, "SIG_A", sig)
}

func TestSendTransactionRaced_FlashbotsRelayNoConnection(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Flashbots-Key")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "signature": "FLASH_SIG"})
	}))
	defer srv.Close()

	rl, err := relay.New(relay.Config{
		URL:    srv.URL + "/v1/solana/submit-bundle",
		APIKey: "secret",
		Vendor: relay.VendorFlashbots,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	dialer := newFakeDialer(nil)
	cfg := testConfig("A", "B")
	cfg.Relay = rl
	e := newTestEngine(t, cfg, WithDialer(dialer.dial))

	sig, err := e.SendTransactionRaced(context.Background(), fakeTx{raw: []byte{1, 2}}, SendOptions{UseRelay: true})
	require.NoError(t, err)
	assert.Equal(t, "FLASH_SIG", sig)
	assert.Equal(t, "/v1/solana/submit-bundle", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Zero(t, dialer.dials.Load())
}
