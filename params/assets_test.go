package params

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const testTable = `
router: "0xa19fD5aB6C8DCffa2A295F78a5Bb4aC543AAF5e3"
referralCode: "0x6d75786272696467650000000000000000000000000000000000000000000000"
assets:
  ETH:
    Long:  {accountId: "000301"}
    short: {accountId: "000300"}
  BTC:
    long:
      accountId: "000401"
      router: "0x0000000000000000000000000000000000000bbb"
`

func TestResolve(t *testing.T) {
	table, err := ParseAssets([]byte(testTable))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name      string
		asset     string
		orderType string
		accountID string
		router    common.Address
		err       error
	}{
		{"default router", "ETH", "long", "000301", common.HexToAddress("0xa19fD5aB6C8DCffa2A295F78a5Bb4aC543AAF5e3"), nil},
		{"case insensitive order type", "ETH", "SHORT", "000300", common.HexToAddress("0xa19fD5aB6C8DCffa2A295F78a5Bb4aC543AAF5e3"), nil},
		{"router override", "BTC", "long", "000401", common.HexToAddress("0x0000000000000000000000000000000000000bbb"), nil},
		{"unknown asset", "DOGE", "long", "", common.Address{}, ErrUnknownAsset},
		{"unknown order type", "BTC", "short", "", common.Address{}, ErrUnknownOrderType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := table.Resolve(tt.asset, tt.orderType)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if route.AccountID != tt.accountID {
				t.Errorf("accountId = %q, want %q", route.AccountID, tt.accountID)
			}
			if route.Router != tt.router {
				t.Errorf("router = %s, want %s", route.Router.Hex(), tt.router.Hex())
			}
		})
	}
}

func TestParseAssets_RejectsMissingRouter(t *testing.T) {
	_, err := ParseAssets([]byte("assets:\n  ETH:\n    long: {accountId: \"00\"}\n"))
	if err == nil {
		t.Fatal("expected error for entry without router")
	}
}

func TestParseAssets_RejectsBadAccountID(t *testing.T) {
	for _, id := range []string{"", "1", "0x0301", "zz", "00000000000000000000000000"} {
		t.Run(id, func(t *testing.T) {
			yaml := "router: \"0xa19fD5aB6C8DCffa2A295F78a5Bb4aC543AAF5e3\"\nassets:\n  ETH:\n    long: {accountId: \"" + id + "\"}\n"
			if _, err := ParseAssets([]byte(yaml)); err == nil {
				t.Fatalf("accountId %q accepted", id)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("CALL_TIMEOUT_MS", "250")
	t.Setenv("LEDGER_POOL", "true")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("MAX_INFLIGHT_PER_CONN", "not-a-number")

	cfg := LoadFromEnv("testdata/does-not-exist.env")

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Bridge.CallTimeout != 250*time.Millisecond {
		t.Errorf("call timeout = %v", cfg.Bridge.CallTimeout)
	}
	if !cfg.Bridge.PoolConnections {
		t.Error("expected pooling enabled")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.MaxInFlight != Default().Server.MaxInFlight {
		t.Errorf("invalid MAX_INFLIGHT_PER_CONN should keep default, got %d", cfg.Server.MaxInFlight)
	}
	if cfg.Bridge.OrderTTL != 31536300*time.Second {
		t.Errorf("order ttl = %v", cfg.Bridge.OrderTTL)
	}
}
