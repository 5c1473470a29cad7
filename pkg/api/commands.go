package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/uhyunpark/muxbridge/params"
	"github.com/uhyunpark/muxbridge/pkg/bridge"
)

// OrderBridge submits decoded commands. *bridge.Bridge implements it.
type OrderBridge interface {
	PlaceOrder(ctx context.Context, intent bridge.OrderIntent) (*bridge.TransactionHandle, error)
	CancelOrder(ctx context.Context, intent bridge.CancelIntent) (*bridge.TransactionHandle, error)
}

// AssetResolver maps assets and order types to router routes. *params.AssetTable implements it.
type AssetResolver interface {
	Resolve(asset, orderType string) (params.Route, error)
	DefaultRouter() (common.Address, error)
}

var errRequired = errors.New("required field missing")

// HandleFrame decodes one command frame, runs it and builds its response.
// It never panics and never returns an error: every failure becomes a response.
func (s *Server) HandleFrame(ctx context.Context, frame []byte) (resp Response) {
	start := time.Now()

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return s.fail(env, bridge.DecodeError("frame", err), start)
	}
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}
	if env.Type == "" {
		return s.fail(env, bridge.DecodeError("type", errRequired), start)
	}

	defer func() {
		if r := recover(); r != nil {
			resp = s.fail(env, bridge.SubmissionError("handler", fmt.Errorf("panic: %v", r)), start)
		}
	}()

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	var (
		handle *bridge.TransactionHandle
		err    error
	)
	switch env.Type {
	case TypeManagePositionOrder:
		handle, err = s.handleManagePositionOrder(ctx, frame)
	case TypeCancelPositionOrder:
		handle, err = s.handleCancelPositionOrder(ctx, frame)
	default:
		err = bridge.UnrecognizedError(fmt.Sprintf("type %q", env.Type))
	}
	if err != nil {
		return s.fail(env, err, start)
	}

	s.logger.Infow("frame_handled",
		"request_id", env.RequestID,
		"type", env.Type,
		"tx_hash", handle.Hash.Hex(),
		"elapsed_ms", time.Since(start).Milliseconds())
	return Response{OK: true, RequestID: env.RequestID, Type: env.Type, Result: handle}
}

func (s *Server) fail(env envelope, err error, start time.Time) Response {
	kind := bridge.KindOf(err)
	s.logger.Warnw("frame_failed",
		"request_id", env.RequestID,
		"type", env.Type,
		"reason", kind,
		"err", err,
		"elapsed_ms", time.Since(start).Milliseconds())
	return Response{
		OK:        false,
		RequestID: env.RequestID,
		Type:      env.Type,
		Reason:    kind,
		Message:   err.Error(),
	}
}

func (s *Server) handleManagePositionOrder(ctx context.Context, frame []byte) (*bridge.TransactionHandle, error) {
	var req ManagePositionOrderRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return nil, bridge.DecodeError(TypeManagePositionOrder, err)
	}
	if err := requireFields(
		"asset", req.Asset,
		"orderType", req.OrderType,
		"tradeAmount", string(req.TradeAmount),
		"multiplier", string(req.Multiplier),
		"price", string(req.Price),
		"wssNode", req.WSSNode,
		"mnemonic", req.Mnemonic,
		"walletAddress", req.WalletAddress,
	); err != nil {
		return nil, err
	}
	if req.Flag == nil {
		return nil, bridge.DecodeError("flag", errRequired)
	}

	flag, err := uint8Field("flag", *req.Flag)
	if err != nil {
		return nil, err
	}
	var profitTokenID uint8
	if req.ProfitTokenID != nil {
		if profitTokenID, err = uint8Field("profitTokenId", *req.ProfitTokenID); err != nil {
			return nil, err
		}
	}
	collateral, err := bridge.ParseDecimal("tradeAmount", string(req.TradeAmount))
	if err != nil {
		return nil, err
	}
	multiplier, err := bridge.ParseDecimal("multiplier", string(req.Multiplier))
	if err != nil {
		return nil, err
	}
	price, err := bridge.ParseDecimal("price", string(req.Price))
	if err != nil {
		return nil, err
	}

	route, err := s.assets.Resolve(req.Asset, req.OrderType)
	if err != nil {
		return nil, bridge.ConfigurationError("asset", err)
	}

	return s.bridge.PlaceOrder(ctx, bridge.OrderIntent{
		AccountID:     route.AccountID,
		Collateral:    collateral,
		Multiplier:    multiplier,
		Price:         price,
		ProfitTokenID: profitTokenID,
		Flag:          flag,
		WalletAddress: req.WalletAddress,
		Router:        route.Router,
		Credentials:   bridge.Credentials{Endpoint: req.WSSNode, Mnemonic: req.Mnemonic},
	})
}

func (s *Server) handleCancelPositionOrder(ctx context.Context, frame []byte) (*bridge.TransactionHandle, error) {
	var req CancelPositionOrderRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return nil, bridge.DecodeError(TypeCancelPositionOrder, err)
	}
	if err := requireFields(
		"orderId", string(req.OrderID),
		"wssNode", req.WSSNode,
		"mnemonic", req.Mnemonic,
		"walletAddress", req.WalletAddress,
	); err != nil {
		return nil, err
	}

	orderID, err := parseOrderID(string(req.OrderID))
	if err != nil {
		return nil, err
	}
	router, err := s.assets.DefaultRouter()
	if err != nil {
		return nil, bridge.ConfigurationError("router", err)
	}

	return s.bridge.CancelOrder(ctx, bridge.CancelIntent{
		OrderID:       orderID,
		WalletAddress: req.WalletAddress,
		Router:        router,
		Credentials:   bridge.Credentials{Endpoint: req.WSSNode, Mnemonic: req.Mnemonic},
	})
}

// requireFields takes name/value pairs and reports the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return bridge.DecodeError(pairs[i], errRequired)
		}
	}
	return nil
}

func uint8Field(name string, v int) (uint8, error) {
	if v < 0 || v > 255 {
		return 0, bridge.EncodingError(name, fmt.Errorf("%d outside 0..255", v))
	}
	return uint8(v), nil
}

// parseOrderID accepts a decimal or 0x-prefixed hex uint64.
func parseOrderID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	var (
		id  uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		id, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, bridge.EncodingError("orderId", fmt.Errorf("%q is not a uint64", s))
	}
	return id, nil
}
