package bridge

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/sync/singleflight"
)

// Ledger is the part of an Ethereum JSON-RPC client the bridge needs.
// *ethclient.Client satisfies it.
type Ledger interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Dialer opens a ledger client for an endpoint.
type Dialer func(ctx context.Context, endpoint string) (Ledger, error)

// DialEthClient dials endpoint with go-ethereum's ethclient.
func DialEthClient(ctx context.Context, endpoint string) (Ledger, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Pool shares one ledger client per endpoint. Each Dial borrows the client and
// the returned Ledger's Close gives it back. An evicted client is dropped from
// the pool at once but closed only when its last borrower is done with it.
type Pool struct {
	dial    Dialer
	dialing singleflight.Group

	mu      sync.Mutex
	clients map[string]*poolEntry
	closed  bool
}

type poolEntry struct {
	ledger  Ledger
	refs    int
	evicted bool
}

var errPoolClosed = errors.New("ledger pool closed")

func NewPool(dial Dialer) *Pool {
	return &Pool{dial: dial, clients: make(map[string]*poolEntry)}
}

// Dial borrows the pooled client for endpoint, dialing on first use.
// Concurrent first uses of one endpoint share a single dial, and a slow dial
// never holds up other endpoints.
func (p *Pool) Dial(ctx context.Context, endpoint string) (Ledger, error) {
	retried := false
	for {
		l, err := p.borrow(endpoint)
		if l != nil || err != nil {
			return l, err
		}

		ch := p.dialing.DoChan(endpoint, func() (any, error) {
			return nil, p.connect(ctx, endpoint)
		})
		select {
		case res := <-ch:
			if res.Err == nil {
				continue
			}
			// A shared dial may have failed on another caller's deadline.
			if res.Shared && !retried && ctx.Err() == nil && isContextError(res.Err) {
				retried = true
				continue
			}
			return nil, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) borrow(endpoint string) (Ledger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errPoolClosed
	}
	e, ok := p.clients[endpoint]
	if !ok {
		return nil, nil
	}
	e.refs++
	return &pooledLedger{Ledger: e.ledger, pool: p, entry: e, endpoint: endpoint}, nil
}

func (p *Pool) connect(ctx context.Context, endpoint string) error {
	p.mu.Lock()
	_, ok := p.clients[endpoint]
	p.mu.Unlock()
	if ok {
		return nil
	}

	c, err := p.dial(ctx, endpoint)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		return errPoolClosed
	}
	p.clients[endpoint] = &poolEntry{ledger: c}
	return nil
}

// Evict drops the client behind l, a Ledger returned by Dial, after a
// transport failure. Other borrowers keep using it until they Close.
func (p *Pool) Evict(l Ledger) {
	pl, ok := l.(*pooledLedger)
	if !ok || pl.pool != p {
		return
	}
	p.mu.Lock()
	if p.clients[pl.endpoint] == pl.entry {
		delete(p.clients, pl.endpoint)
	}
	pl.entry.evicted = true
	closeNow := pl.entry.refs == 0
	p.mu.Unlock()
	if closeNow {
		pl.entry.ledger.Close()
	}
}

func (p *Pool) release(e *poolEntry) {
	p.mu.Lock()
	e.refs--
	closeNow := e.evicted && e.refs == 0
	p.mu.Unlock()
	if closeNow {
		e.ledger.Close()
	}
}

// Close closes idle clients now and borrowed ones when they are returned.
func (p *Pool) Close() {
	p.mu.Lock()
	var idle []Ledger
	for endpoint, e := range p.clients {
		e.evicted = true
		if e.refs == 0 {
			idle = append(idle, e.ledger)
		}
		delete(p.clients, endpoint)
	}
	p.closed = true
	p.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
}

type pooledLedger struct {
	Ledger
	pool     *Pool
	entry    *poolEntry
	endpoint string
	once     sync.Once
}

// Close returns the client to the pool.
func (l *pooledLedger) Close() {
	l.once.Do(func() { l.pool.release(l.entry) })
}

// connectionFailed reports whether err leaves the client itself unusable.
// Deadlines and errors answered by the node do not.
func connectionFailed(err error) bool {
	if err == nil || isContextError(err) {
		return false
	}
	var rpcErr rpc.Error
	return !errors.As(err, &rpcErr)
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
