package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/muxbridge/pkg/bridge"
)

// Wire types for command frames and their responses

const (
	TypeManagePositionOrder = "managePositionOrder"
	TypeCancelPositionOrder = "cancelPositionOrder"
)

// Number keeps a JSON number or numeric string verbatim so amounts are parsed
// as decimals, never through float64. Objects, arrays and booleans are rejected.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		*n = Number(b)
	default:
		return fmt.Errorf("expected number or string, got %s", b)
	}
	return nil
}

// envelope is decoded first to pick the command variant.
type envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// ManagePositionOrderRequest places a router order.
type ManagePositionOrderRequest struct {
	Asset         string `json:"asset"`
	OrderType     string `json:"orderType"` // "long" / "short", matched case-insensitively
	TradeAmount   Number `json:"tradeAmount"`
	Multiplier    Number `json:"multiplier"`
	Price         Number `json:"price"`
	Flag          *int   `json:"flag"`
	ProfitTokenID *int   `json:"profitTokenId"` // optional, defaults to 0
	WSSNode       string `json:"wssNode"`
	Mnemonic      string `json:"mnemonic"`
	WalletAddress string `json:"walletAddress"`
}

// CancelPositionOrderRequest cancels a router order by id.
type CancelPositionOrderRequest struct {
	OrderID       Number `json:"orderId"`
	WSSNode       string `json:"wssNode"`
	Mnemonic      string `json:"mnemonic"`
	WalletAddress string `json:"walletAddress"`
}

// Response answers exactly one command frame.
type Response struct {
	OK        bool                      `json:"ok"`
	RequestID string                    `json:"requestId,omitempty"`
	Type      string                    `json:"type,omitempty"`
	Result    *bridge.TransactionHandle `json:"result,omitempty"`
	Reason    bridge.ErrorKind          `json:"reason,omitempty"`
	Message   string                    `json:"message,omitempty"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}
