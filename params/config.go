package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr     string
	AllowedOrigins []string
	// MaxInFlight bounds concurrently handled frames per connection.
	// Reads on a connection pause while the limit is reached.
	MaxInFlight    int64
	RequestTimeout time.Duration // whole-frame deadline
}

type Bridge struct {
	CallTimeout time.Duration // per network call (dial, nonce, gas, send)
	// OrderTTL is added to the current time to form the router's order deadline.
	// The default is one year plus 300s.
	OrderTTL time.Duration
	// GasLimit overrides eth_estimateGas when non-zero.
	GasLimit uint64
	// PoolConnections shares one ledger client per endpoint instead of
	// dialing per request.
	PoolConnections bool
	// ReferralCode overrides the asset file's referral code when set.
	ReferralCode string
}

type Log struct {
	File  string
	Level string
}

type Config struct {
	Server     Server
	Bridge     Bridge
	Log        Log
	AssetsFile string
}

func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
			MaxInFlight:    16,
			RequestTimeout: 60 * time.Second,
		},
		Bridge: Bridge{
			CallTimeout: 15 * time.Second,
			OrderTTL:    31536300 * time.Second,
		},
		Log: Log{
			File:  "data/muxbridge.log",
			Level: "info",
		},
		AssetsFile: "config/assets.yaml",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Server.ListenAddr = getEnv("LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.AssetsFile = getEnv("ASSETS_FILE", cfg.AssetsFile)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Bridge.ReferralCode = getEnv("MUX_REFERRAL_CODE", "")

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	if d, ok := envMillis("REQUEST_TIMEOUT_MS"); ok {
		cfg.Server.RequestTimeout = d
	}
	if d, ok := envMillis("CALL_TIMEOUT_MS"); ok {
		cfg.Bridge.CallTimeout = d
	}
	if ttl := os.Getenv("ORDER_TTL_SECONDS"); ttl != "" {
		if s, err := strconv.Atoi(ttl); err == nil && s > 0 {
			cfg.Bridge.OrderTTL = time.Duration(s) * time.Second
		}
	}
	if gas := os.Getenv("GAS_LIMIT"); gas != "" {
		if n, err := strconv.ParseUint(gas, 10, 64); err == nil {
			cfg.Bridge.GasLimit = n
		}
	}
	if n := os.Getenv("MAX_INFLIGHT_PER_CONN"); n != "" {
		if v, err := strconv.ParseInt(n, 10, 64); err == nil && v > 0 {
			cfg.Server.MaxInFlight = v
		}
	}
	if pool := os.Getenv("LEDGER_POOL"); pool != "" {
		cfg.Bridge.PoolConnections = pool == "true"
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envMillis(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
