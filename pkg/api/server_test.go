package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/muxbridge/pkg/bridge"
	"github.com/uhyunpark/muxbridge/pkg/util"
)

const devMnemonic = "test test test test test test test test test test test junk"

// memLedger accepts every transaction.
type memLedger struct {
	mu   sync.Mutex
	sent []*types.Transaction
}

func (m *memLedger) ChainID(context.Context) (*big.Int, error) { return big.NewInt(42161), nil }
func (m *memLedger) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}
func (m *memLedger) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(10), nil }
func (m *memLedger) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21_000, nil
}
func (m *memLedger) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	return nil
}
func (m *memLedger) Close() {}

func startServer(t *testing.T, b OrderBridge) (*Server, string) {
	t.Helper()
	s := newTestServer(t, b)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func dial(t *testing.T, baseURL, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) Response {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readResponse(t, conn)
}

func readResponse(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("response %q: %v", data, err)
	}
	return resp
}

func TestWebSocket_EndToEndPlaceOrder(t *testing.T) {
	ledger := &memLedger{}
	b, err := bridge.New(bridge.Config{OrderTTL: time.Hour}, func(context.Context, string) (bridge.Ledger, error) {
		return ledger, nil
	}, util.FixedClock{T: time.Unix(1_700_000_000, 0)}, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	_, url := startServer(t, b)
	conn := dial(t, url, "/")

	resp := roundTrip(t, conn, `{"type":"managePositionOrder","requestId":"e2e","asset":"ETH","orderType":"long",
		"tradeAmount":1000,"multiplier":1,"price":"2000.00","flag":128,
		"wssNode":"ws://node.test","mnemonic":"`+devMnemonic+`","walletAddress":"`+wallet+`"}`)

	if !resp.OK || resp.RequestID != "e2e" {
		t.Fatalf("resp = %+v", resp)
	}
	order := resp.Result.Order
	if order == nil {
		t.Fatal("missing encoded order in result")
	}
	if order.Collateral != "1000000000" || order.Price != "2000000000000000000000" || order.Size != "500000000000000000" {
		t.Errorf("order = %+v", order)
	}
	if resp.Result.From != common.HexToAddress(wallet) || resp.Result.Method != bridge.MethodPlacePositionOrder2 {
		t.Errorf("result = %+v", resp.Result)
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if len(ledger.sent) != 1 || ledger.sent[0].Hash() != resp.Result.Hash {
		t.Errorf("ledger saw %d txs", len(ledger.sent))
	}
}

func TestWebSocket_MalformedFrameKeepsConnection(t *testing.T) {
	_, url := startServer(t, &recordingBridge{})
	conn := dial(t, url, "/ws")

	resp := roundTrip(t, conn, `{"type":"cancelPositionOrder","orderId":`)
	if resp.OK || resp.Reason != bridge.KindDecode {
		t.Fatalf("malformed frame resp = %+v", resp)
	}

	resp = roundTrip(t, conn, `{"type":"cancelPositionOrder","requestId":"next","orderId":7,"wssNode":"w","mnemonic":"m","walletAddress":"`+wallet+`"}`)
	if !resp.OK || resp.RequestID != "next" || *resp.Result.OrderID != 7 {
		t.Fatalf("follow-up resp = %+v", resp)
	}
}

func TestWebSocket_ConcurrentFramesCorrelate(t *testing.T) {
	_, url := startServer(t, &recordingBridge{})
	conn := dial(t, url, "/ws")

	const n = 6
	for i := 0; i < n; i++ {
		frame := fmt.Sprintf(`{"type":"cancelPositionOrder","requestId":"req-%d","orderId":%d,"wssNode":"w","mnemonic":"m","walletAddress":"%s"}`, i, i, wallet)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	seen := map[string]uint64{}
	for i := 0; i < n; i++ {
		resp := readResponse(t, conn)
		if !resp.OK {
			t.Fatalf("resp = %+v", resp)
		}
		seen[resp.RequestID] = *resp.Result.OrderID
	}
	for i := 0; i < n; i++ {
		if id, ok := seen[fmt.Sprintf("req-%d", i)]; !ok || id != uint64(i) {
			t.Errorf("req-%d -> %d (present %v)", i, id, ok)
		}
	}
}

func TestHealth(t *testing.T) {
	_, url := startServer(t, &recordingBridge{})
	dial(t, url, "/ws")

	// Registration happens right after the upgrade; allow it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := http.Get(url + "/health")
		if err != nil {
			t.Fatalf("health: %v", err)
		}
		var h HealthResponse
		json.NewDecoder(res.Body).Decode(&h)
		res.Body.Close()

		if h.Status != "ok" {
			t.Fatalf("status = %q", h.Status)
		}
		if h.Connections == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want 1", h.Connections)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(ServerConfig{AllowedOrigins: []string{"http://ui.test"}}, &recordingBridge{}, nil, nil)

	for origin, want := range map[string]bool{"": true, "http://ui.test": true, "http://evil.test": false} {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := s.checkOrigin(r); got != want {
			t.Errorf("checkOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
