package bridge

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Sequencer serialises submissions per wallet so concurrent requests for one
// account never reuse a nonce.
//
// Under the wallet's slot the caller fetches the chain's pending nonce; the
// sequencer raises it to one past the last nonce it handed out if the node
// has not caught up yet. A failed submission forgets the local value and the
// next call trusts the chain again.
type Sequencer struct {
	mu      sync.Mutex
	wallets map[common.Address]*walletSlot
}

type walletSlot struct {
	sem      chan struct{}
	next     uint64
	tracking bool
}

func NewSequencer() *Sequencer {
	return &Sequencer{wallets: make(map[common.Address]*walletSlot)}
}

func (s *Sequencer) slot(wallet common.Address) *walletSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[wallet]
	if !ok {
		w = &walletSlot{sem: make(chan struct{}, 1)}
		s.wallets[wallet] = w
	}
	return w
}

// Submit runs submit with the nonce to use for wallet while holding the
// wallet's slot. chainNonce fetches the ledger's pending nonce. It returns
// the nonce that was used.
func (s *Sequencer) Submit(
	ctx context.Context,
	wallet common.Address,
	chainNonce func(ctx context.Context) (uint64, error),
	submit func(ctx context.Context, nonce uint64) error,
) (uint64, error) {
	w := s.slot(wallet)
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { <-w.sem }()

	nonce, err := chainNonce(ctx)
	if err != nil {
		return 0, err
	}
	if w.tracking && w.next > nonce {
		nonce = w.next
	}

	if err := submit(ctx, nonce); err != nil {
		w.tracking = false
		return nonce, err
	}
	w.next = nonce + 1
	w.tracking = true
	return nonce, nil
}
