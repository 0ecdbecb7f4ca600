// internal/blockchain/solbc/rpc/conn.go
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"
)

// Conn соединение с одним RPC узлом, достаточное для отправки и гоночных чтений
type Conn interface {
	URL() string
	SendRawTransaction(ctx context.Context, raw []byte, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, opts *solanarpc.SimulateTransactionOpts) (*solanarpc.SimulateTransactionResponse, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *solanarpc.GetTokenAccountsConfig, opts *solanarpc.GetTokenAccountsOpts) (*solanarpc.GetTokenAccountsResult, error)
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *solanarpc.GetTransactionOpts) (*solanarpc.GetTransactionResult, error)
	GetSlot(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (uint64, error)
}

// Dialer создаёт соединение с узлом по URL
type Dialer func(url string) Conn

// NodeClient реализует Conn поверх клиента solana-go
type NodeClient struct {
	Client *solanarpc.Client
	url    string
}

// NewNodeClient создает клиент узла с заданным HTTP клиентом
func NewNodeClient(url string, httpClient jsonrpc.HTTPClient) *NodeClient {
	rpcClient := jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
		HTTPClient: httpClient,
	})
	return &NodeClient{
		Client: solanarpc.NewWithCustomRPCClient(rpcClient),
		url:    url,
	}
}

func (c *NodeClient) URL() string { return c.url }

func (c *NodeClient) SendRawTransaction(ctx context.Context, raw []byte, opts solanarpc.TransactionOpts) (solana.Signature, error) {
	return c.Client.SendRawTransactionWithOpts(ctx, raw, opts)
}

func (c *NodeClient) GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	return c.Client.GetLatestBlockhash(ctx, commitment)
}

func (c *NodeClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction, opts *solanarpc.SimulateTransactionOpts) (*solanarpc.SimulateTransactionResponse, error) {
	return c.Client.SimulateTransactionWithOpts(ctx, tx, opts)
}

func (c *NodeClient) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *solanarpc.GetTokenAccountsConfig, opts *solanarpc.GetTokenAccountsOpts) (*solanarpc.GetTokenAccountsResult, error) {
	return c.Client.GetTokenAccountsByOwner(ctx, owner, conf, opts)
}

func (c *NodeClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *solanarpc.GetSignaturesForAddressOpts) ([]*solanarpc.TransactionSignature, error) {
	return c.Client.GetSignaturesForAddressWithOpts(ctx, address, opts)
}

func (c *NodeClient) GetTransaction(ctx context.Context, sig solana.Signature, opts *solanarpc.GetTransactionOpts) (*solanarpc.GetTransactionResult, error) {
	return c.Client.GetTransaction(ctx, sig, opts)
}

func (c *NodeClient) GetSlot(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error) {
	return c.Client.GetSlot(ctx, commitment)
}

// GetBalance возвращает баланс в лампортах
func (c *NodeClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (uint64, error) {
	res, err := c.Client.GetBalance(ctx, account, commitment)
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, fmt.Errorf("empty getBalance response from %s", c.url)
	}
	return res.Value, nil
}

// transportPool хранит по одному HTTP клиенту на узел, чтобы лимит и пул
// соединений не пересоздавались при каждом новом Conn
type transportPool struct {
	mu        sync.Mutex
	clients   map[string]*http.Client
	perSecond float64
	base      *http.Transport
}

func newTransportPool(perSecond float64) *transportPool {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &transportPool{
		clients:   make(map[string]*http.Client),
		perSecond: perSecond,
		base: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConnsPerHost: 9,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

func (p *transportPool) client(url string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[url]; ok {
		return c
	}

	var rt http.RoundTripper = p.base
	if p.perSecond > 0 {
		burst := int(p.perSecond)
		if burst < 1 {
			burst = 1
		}
		rt = &rateLimitedTransport{
			limiter: rate.NewLimiter(rate.Limit(p.perSecond), burst),
			next:    p.base,
		}
	}
	c := &http.Client{Transport: rt}
	p.clients[url] = c
	return c
}

// dial Dialer по умолчанию
func (p *transportPool) dial(url string) Conn {
	return NewNodeClient(url, p.client(url))
}

func (p *transportPool) closeIdle() {
	p.base.CloseIdleConnections()
}

// rateLimitedTransport ограничивает частоту запросов к узлу на стороне клиента
type rateLimitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimit, err)
	}
	return t.next.RoundTrip(req)
}
