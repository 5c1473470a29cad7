package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/uhyunpark/muxbridge/pkg/api"
	"github.com/uhyunpark/muxbridge/pkg/bridge"
	"github.com/uhyunpark/muxbridge/pkg/crypto"
)

// send-order sends one command frame to a running muxbridge and prints the response.
//
//	send-order -asset ETH -side long -amount 1000 -price 2000 -flag buy -node wss://... -mnemonic "..."
//	send-order -cancel 42 -node wss://... -mnemonic "..."
func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/ws", "muxbridge WebSocket URL")
		asset      = flag.String("asset", "ETH", "asset symbol")
		side       = flag.String("side", "long", "order type (long or short)")
		amount     = flag.String("amount", "", "collateral amount")
		multiplier = flag.String("multiplier", "1", "position multiplier")
		price      = flag.String("price", "", "limit or trigger price")
		orderFlag  = flag.String("flag", "buy", "router order flag: buy (128), sell (32), stop (48) or a number")
		profitTok  = flag.Int("profit-token", 0, "profit token id")
		cancel     = flag.String("cancel", "", "cancel this order id instead of placing an order")
		node       = flag.String("node", os.Getenv("WSS_NODE"), "ledger node endpoint")
		mnemonic   = flag.String("mnemonic", os.Getenv("MNEMONIC"), "BIP-39 mnemonic or hex private key")
		timeout    = flag.Duration("timeout", 90*time.Second, "wait this long for the response")
	)
	flag.Parse()

	if *mnemonic == "" || *node == "" {
		fail("-node and -mnemonic (or WSS_NODE and MNEMONIC) are required")
	}

	// The wallet address is derived locally so the bridge can check it against the key.
	signer, err := crypto.FromSecret(*mnemonic)
	if err != nil {
		fail("key: %v", err)
	}
	wallet := signer.Address().Hex()
	requestID := uuid.NewString()

	var frame any
	if *cancel != "" {
		frame = struct {
			Type      string `json:"type"`
			RequestID string `json:"requestId"`
			api.CancelPositionOrderRequest
		}{api.TypeCancelPositionOrder, requestID, api.CancelPositionOrderRequest{
			OrderID:       api.Number(*cancel),
			WSSNode:       *node,
			Mnemonic:      *mnemonic,
			WalletAddress: wallet,
		}}
	} else {
		if *amount == "" || *price == "" {
			fail("-amount and -price are required to place an order")
		}
		flagValue, err := parseOrderFlag(*orderFlag)
		if err != nil {
			fail("%v", err)
		}
		frame = struct {
			Type      string `json:"type"`
			RequestID string `json:"requestId"`
			api.ManagePositionOrderRequest
		}{api.TypeManagePositionOrder, requestID, api.ManagePositionOrderRequest{
			Asset:         *asset,
			OrderType:     *side,
			TradeAmount:   api.Number(*amount),
			Multiplier:    api.Number(*multiplier),
			Price:         api.Number(*price),
			Flag:          &flagValue,
			ProfitTokenID: profitTok,
			WSSNode:       *node,
			Mnemonic:      *mnemonic,
			WalletAddress: wallet,
		}}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fail("dial %s: %v", *url, err)
	}
	defer conn.Close()

	fmt.Printf("Wallet:     %s\n", wallet)
	fmt.Printf("Request ID: %s\n\n", requestID)

	if err := conn.WriteJSON(frame); err != nil {
		fail("send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(*timeout))
	for {
		var resp api.Response
		if err := conn.ReadJSON(&resp); err != nil {
			fail("read: %v", err)
		}
		if resp.RequestID != requestID {
			continue
		}

		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		if !resp.OK {
			os.Exit(1)
		}
		return
	}
}

// parseOrderFlag maps the buy/sell/stop aliases to router flags and passes numbers through.
func parseOrderFlag(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "buy":
		return int(bridge.FlagLimitBuy), nil
	case "sell":
		return int(bridge.FlagLimitSell), nil
	case "stop":
		return int(bridge.FlagStopLoss), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("flag %q is not buy, sell, stop or 0..255", s)
	}
	return n, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
