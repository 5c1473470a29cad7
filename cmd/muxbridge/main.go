package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/muxbridge/params"
	"github.com/uhyunpark/muxbridge/pkg/api"
	"github.com/uhyunpark/muxbridge/pkg/bridge"
	"github.com/uhyunpark/muxbridge/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	assets, err := params.LoadAssets(cfg.AssetsFile)
	if err != nil {
		sugar.Fatalw("assets_load_failed", "path", cfg.AssetsFile, "err", err)
	}

	referralHex := cfg.Bridge.ReferralCode
	if referralHex == "" {
		referralHex = assets.ReferralCode
	}
	referral, err := bridge.ParseBytes32("referralCode", referralHex)
	if err != nil {
		sugar.Fatalw("referral_code_invalid", "err", err)
	}

	b, err := bridge.New(bridge.Config{
		ReferralCode:    referral,
		CallTimeout:     cfg.Bridge.CallTimeout,
		OrderTTL:        cfg.Bridge.OrderTTL,
		GasLimit:        cfg.Bridge.GasLimit,
		PoolConnections: cfg.Bridge.PoolConnections,
	}, bridge.DialEthClient, util.RealClock{}, sugar)
	if err != nil {
		sugar.Fatalw("bridge_init_failed", "err", err)
	}
	defer b.Close()

	server := api.NewServer(api.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxInFlight:    cfg.Server.MaxInFlight,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, b, assets, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("muxbridge_starting",
		"addr", cfg.Server.ListenAddr,
		"assets", len(assets.Assets),
		"pool_connections", cfg.Bridge.PoolConnections,
		"call_timeout_ms", cfg.Bridge.CallTimeout.Milliseconds(),
		"request_timeout_ms", cfg.Server.RequestTimeout.Milliseconds())

	if err := server.Start(ctx); err != nil {
		sugar.Errorw("server_failed", "err", err)
		return
	}
	sugar.Info("muxbridge_stopped")
}
