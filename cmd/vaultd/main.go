package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratevault/config"
	"ratevault/gateway/middleware"
	"ratevault/gateway/routes"
	"ratevault/observability/logging"
	"ratevault/observability/metrics"
	"ratevault/oracle"
	"ratevault/storage"
	"ratevault/token"
	"ratevault/vault"
)

func main() {
	var (
		configPath = flag.String("config", "./vaultd.toml", "path to the vaultd configuration file")
		env        = flag.String("env", "", "deployment environment label")
	)
	flag.Parse()

	logger := logging.Setup("vaultd", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	baseOracle := oracle.NewFeedOracle(cfg.BaseFeed.Name,
		oracle.NewHTTPFeed(httpClient, cfg.BaseFeed.Endpoint, cfg.BaseFeed.APIKey),
		cfg.BaseFeed.Window())
	quoteOracle := oracle.NewFeedOracle(cfg.QuoteFeed.Name,
		oracle.NewHTTPFeed(httpClient, cfg.QuoteFeed.Endpoint, cfg.QuoteFeed.APIKey),
		cfg.QuoteFeed.Window())
	source := oracle.NewComposedOracle("vault", baseOracle, quoteOracle)

	shares := token.NewLedger(db, "VSHARE")
	reserve := token.NewLedger(db, "RSV")
	receipts := token.NewReceiptLedger(db)

	engine := vault.NewEngine(cfg.Custody(), source, shares, receipts, reserve)
	engine.SetMetrics(metrics.Vault())

	handler := routes.NewHandler(routes.Options{
		Engine: engine,
		Logger: logger,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		},
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress, "custody", cfg.Custody().Hex())
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
