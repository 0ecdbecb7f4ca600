package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/relay"
)

// uniformMeasure все узлы одинаково быстрые, порядок плана = порядок реестра
func uniformMeasure(_ context.Context, urls []string) []Measurement {
	out := make([]Measurement, len(urls))
	for i, u := range urls {
		out[i] = Measurement{URL: u, Latency: 10 * time.Millisecond}
	}
	return out
}

func testConfig(endpoints ...string) Config {
	return Config{
		Endpoints:    endpoints,
		SendTimeout:  time.Second,
		ReadTimeout:  time.Second,
		RelayTimeout: time.Second,
		ProbeTimeout: 200 * time.Millisecond,
		MicroBatch:   len(endpoints),
		ReadRetries:  0,
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithMeasure(uniformMeasure),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
		WithDialer(newFakeDialer(nil).dial),
	}
	e, err := NewEngine(cfg, zaptest.NewLogger(t), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// outcome задержка и результат ответа одного узла
type outcome struct {
	delay time.Duration
	value string
	err   error
}

func scripted(plan map[string]outcome) CallFunc[string] {
	return func(ctx context.Context, url string) (string, error) {
		o, ok := plan[url]
		if !ok {
			return "", errors.New("unexpected endpoint " + url)
		}
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return o.value, o.err
	}
}

type fakeTx struct {
	raw []byte
	err error
}

func (f fakeTx) MarshalBinary() ([]byte, error) {
	return f.raw, f.err
}

// fakeConn минимальное соединение: слот и баланс фиксированы, отправка возвращает sig
type fakeConn struct {
	url     string
	slot    uint64
	balance uint64
	sig     solana.Signature
	err     error
}

func (c *fakeConn) URL() string { return c.url }

func (c *fakeConn) SendRawTransaction(context.Context, []byte, solanarpc.TransactionOpts) (solana.Signature, error) {
	return c.sig, c.err
}

func (c *fakeConn) GetLatestBlockhash(context.Context, solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	return nil, c.err
}

func (c *fakeConn) SimulateTransaction(context.Context, *solana.Transaction, *solanarpc.SimulateTransactionOpts) (*solanarpc.SimulateTransactionResponse, error) {
	return nil, c.err
}

func (c *fakeConn) GetTokenAccountsByOwner(context.Context, solana.PublicKey, *solanarpc.GetTokenAccountsConfig, *solanarpc.GetTokenAccountsOpts) (*solanarpc.GetTokenAccountsResult, error) {
	return nil, c.err
}

func (c *fakeConn) GetSignaturesForAddress(context.Context, solana.PublicKey, *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
	return nil, c.err
}

func (c *fakeConn) GetTransaction(context.Context, solana.Signature, *solanarpc.GetTransactionOpts) (*solanarpc.GetTransactionResult, error) {
	return nil, c.err
}

func (c *fakeConn) GetSlot(context.Context, solanarpc.CommitmentType) (uint64, error) {
	return c.slot, c.err
}

func (c *fakeConn) GetBalance(context.Context, solana.PublicKey, solanarpc.CommitmentType) (uint64, error) {
	return c.balance, c.err
}

// fakeDialer считает созданные соединения
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	dials atomic.Int32
}

func newFakeDialer(conns map[string]*fakeConn) *fakeDialer {
	if conns == nil {
		conns = make(map[string]*fakeConn)
	}
	return &fakeDialer{conns: conns}
}

func (d *fakeDialer) dial(url string) Conn {
	d.dials.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.conns[url]; ok {
		return c
	}
	c := &fakeConn{url: url}
	d.conns[url] = c
	return c
}

// mockRelay relay.Relay на testify/mock
type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) Vendor() relay.Vendor {
	return relay.VendorGeneric
}

func (m *mockRelay) Submit(ctx context.Context, req relay.Request) (relay.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(relay.Result), args.Error(1)
}
