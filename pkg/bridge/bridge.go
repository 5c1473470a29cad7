package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/muxbridge/pkg/crypto"
	"github.com/uhyunpark/muxbridge/pkg/util"
)

type Config struct {
	ReferralCode    [32]byte
	CallTimeout     time.Duration // per ledger call; 0 disables
	OrderTTL        time.Duration
	GasLimit        uint64 // 0 means estimate per transaction
	PoolConnections bool
}

// Bridge turns order intents into signed router transactions and submits them.
// It is safe for concurrent use.
type Bridge struct {
	cfg    Config
	dial   Dialer
	pool   *Pool
	seq    *Sequencer
	clock  util.Clock
	router *abi.ABI
	logger *zap.SugaredLogger
}

func New(cfg Config, dial Dialer, clock util.Clock, logger *zap.SugaredLogger) (*Bridge, error) {
	router, err := RouterABI()
	if err != nil {
		return nil, err
	}
	if dial == nil {
		dial = DialEthClient
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &Bridge{
		cfg:    cfg,
		dial:   dial,
		seq:    NewSequencer(),
		clock:  clock,
		router: router,
		logger: logger,
	}
	if cfg.PoolConnections {
		b.pool = NewPool(dial)
	}
	return b, nil
}

// Close releases pooled ledger connections.
func (b *Bridge) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// PlaceOrder encodes intent, signs a placePositionOrder2 call and submits it.
// It returns once the node accepts the transaction; it does not wait for inclusion.
func (b *Bridge) PlaceOrder(ctx context.Context, intent OrderIntent) (*TransactionHandle, error) {
	if intent.Router == (common.Address{}) {
		return nil, ConfigurationError("router", errors.New("no router address"))
	}
	order, err := EncodeOrder(intent, b.clock.Now().Add(b.cfg.OrderTTL), b.cfg.ReferralCode)
	if err != nil {
		return nil, err
	}
	data, err := packPlaceOrder(b.router, order)
	if err != nil {
		return nil, err
	}

	sess, err := b.open(ctx, intent.WalletAddress, intent.Credentials)
	if err != nil {
		return nil, err
	}
	defer sess.ledger.Close()

	handle, err := b.submit(ctx, sess, intent.Router, data, MethodPlacePositionOrder2)
	if err != nil {
		return nil, err
	}
	handle.Order = order.Args()
	return handle, nil
}

// CancelOrder submits cancelOrder(orderId). Ownership of the order is checked by the router.
func (b *Bridge) CancelOrder(ctx context.Context, intent CancelIntent) (*TransactionHandle, error) {
	if intent.Router == (common.Address{}) {
		return nil, ConfigurationError("router", errors.New("no router address"))
	}
	if !common.IsHexAddress(intent.WalletAddress) {
		return nil, EncodingError("walletAddress", fmt.Errorf("%q is not an address", intent.WalletAddress))
	}
	data, err := packCancelOrder(b.router, intent.OrderID)
	if err != nil {
		return nil, err
	}

	sess, err := b.open(ctx, intent.WalletAddress, intent.Credentials)
	if err != nil {
		return nil, err
	}
	defer sess.ledger.Close()

	handle, err := b.submit(ctx, sess, intent.Router, data, MethodCancelOrder)
	if err != nil {
		return nil, err
	}
	orderID := intent.OrderID
	handle.OrderID = &orderID
	return handle, nil
}

type session struct {
	signer   *crypto.Signer
	ledger   Ledger
	endpoint string
}

// open derives the signing key and connects to the ledger. The key must
// belong to walletAddress, since the nonce is fetched for that address.
func (b *Bridge) open(ctx context.Context, walletAddress string, creds Credentials) (*session, error) {
	signer, err := crypto.FromSecret(creds.Mnemonic)
	if err != nil {
		return nil, SubmissionError("derive signer", err)
	}
	if !common.IsHexAddress(walletAddress) {
		return nil, EncodingError("walletAddress", fmt.Errorf("%q is not an address", walletAddress))
	}
	if want := common.HexToAddress(walletAddress); signer.Address() != want {
		return nil, SubmissionError("derive signer",
			fmt.Errorf("key belongs to %s, not %s", signer.Address().Hex(), want.Hex()))
	}

	dial := b.dial
	if b.pool != nil {
		dial = b.pool.Dial
	}
	ledger, err := withTimeout(ctx, b.cfg.CallTimeout, func(ctx context.Context) (Ledger, error) {
		return dial(ctx, creds.Endpoint)
	})
	if err != nil {
		return nil, SubmissionError("dial", err)
	}
	return &session{signer: signer, ledger: ledger, endpoint: creds.Endpoint}, nil
}

// evict drops the session's pooled client when err shows the connection is broken.
// A deadline or a node-side rejection leaves it in the pool for other requests.
func (b *Bridge) evict(sess *session, err error) {
	if b.pool == nil || !connectionFailed(err) {
		return
	}
	b.logger.Warnw("ledger_evicted", "endpoint", sess.endpoint, "err", err)
	b.pool.Evict(sess.ledger)
}

func (b *Bridge) submit(ctx context.Context, sess *session, to common.Address, data []byte, method string) (*TransactionHandle, error) {
	from := sess.signer.Address()
	var handle *TransactionHandle

	chainNonce := func(ctx context.Context) (uint64, error) {
		nonce, err := withTimeout(ctx, b.cfg.CallTimeout, func(ctx context.Context) (uint64, error) {
			return sess.ledger.PendingNonceAt(ctx, from)
		})
		if err != nil {
			b.evict(sess, err)
			return 0, SubmissionError("nonce", err)
		}
		return nonce, nil
	}

	send := func(ctx context.Context, nonce uint64) error {
		var (
			gasPrice *big.Int
			chainID  *big.Int
			gas      = b.cfg.GasLimit
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p, err := withTimeout(gctx, b.cfg.CallTimeout, sess.ledger.SuggestGasPrice)
			if err != nil {
				b.evict(sess, err)
				return SubmissionError("gas price", err)
			}
			gasPrice = p
			return nil
		})
		g.Go(func() error {
			id, err := withTimeout(gctx, b.cfg.CallTimeout, sess.ledger.ChainID)
			if err != nil {
				b.evict(sess, err)
				return SubmissionError("chain id", err)
			}
			chainID = id
			return nil
		})
		if gas == 0 {
			g.Go(func() error {
				est, err := withTimeout(gctx, b.cfg.CallTimeout, func(ctx context.Context) (uint64, error) {
					return sess.ledger.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
				})
				if err != nil {
					return SubmissionError("estimate gas", err)
				}
				gas = est
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    big.NewInt(0),
			Data:     data,
		})
		signed, err := sess.signer.SignTx(tx, chainID)
		if err != nil {
			return SubmissionError("sign", err)
		}

		_, err = withTimeout(ctx, b.cfg.CallTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, sess.ledger.SendTransaction(ctx, signed)
		})
		if err != nil {
			b.evict(sess, err)
			return SubmissionError("send", err)
		}

		handle = &TransactionHandle{
			Hash:     signed.Hash(),
			From:     from,
			To:       to,
			ChainID:  chainID.String(),
			Nonce:    nonce,
			GasPrice: gasPrice.String(),
			Gas:      gas,
			Method:   method,
		}
		return nil
	}

	nonce, err := b.seq.Submit(ctx, from, chainNonce, send)
	if err != nil {
		var be *Error
		if !errors.As(err, &be) {
			err = SubmissionError("wait for wallet", err)
		}
		return nil, err
	}

	b.logger.Infow("order_submitted",
		"method", method,
		"hash", handle.Hash.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"nonce", nonce,
		"gas_price", handle.GasPrice,
		"gas", handle.Gas)
	return handle, nil
}

// withTimeout runs fn under its own deadline when d > 0.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}
