package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"chatsync/internal/relay"
	"chatsync/pkg/banner"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/shutdown"
	"chatsync/pkg/store"
	"chatsync/pkg/telemetry"
)

func main() {
	// build metadata - set via ldflags during release
	version := "dev"

	_ = godotenv.Load(".env")

	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	dbFlag := flag.String("db", "", "store path (overrides config)")
	cfgFlag := flag.String("config", "", "path to config yaml")
	flag.Parse()

	cfg, err := config.LoadEffective(*cfgFlag)
	if err != nil {
		logger.Init()
		shutdown.Abort("load config", err, "")
	}
	logger.InitWithLevel(cfg.Logging.Level)

	addr := cfg.RelayAddr()
	if *addrFlag != "" {
		addr = *addrFlag
	}
	dbPath := cfg.Relay.StorePath
	if *dbFlag != "" {
		dbPath = *dbFlag
	}

	st, err := store.Open(dbPath)
	if err != nil {
		shutdown.Abort("open store", err, dbPath)
	}
	telemetry.RegisterStoreDiskUsage(func() uint64 { return st.DiskUsage() })

	r := relay.New(st, relay.Options{
		RPS:   cfg.Relay.RateLimit.RPS,
		Burst: cfg.Relay.RateLimit.Burst,
	})

	banner.Print(addr, dbPath, version)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		logger.Info("relay_listening", "addr", addr, "store", dbPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("relay_serve_failed", "error", err)
		}
	case <-ctx.Done():
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("relay_shutdown_failed", "error", err)
		}
	}

	if err := st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("relay_stopped")
}
