// Command ledger runs the trade-journal API: the position/trade ledger,
// FIFO performance engine, plan-vs-execution analysis and the assignment
// workflow, served over HTTP.
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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/schrute_ledger/internal/analysis"
	"github.com/eddiefleurent/schrute_ledger/internal/assignment"
	"github.com/eddiefleurent/schrute_ledger/internal/config"
	"github.com/eddiefleurent/schrute_ledger/internal/ledger"
	"github.com/eddiefleurent/schrute_ledger/internal/marketdata"
	"github.com/eddiefleurent/schrute_ledger/internal/server"
	"github.com/eddiefleurent/schrute_ledger/internal/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	store, err := storage.NewStorage(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("closing storage")
		}
	}()

	var prices marketdata.Provider
	switch cfg.MarketData.Provider {
	case "http":
		clientCfg := marketdata.DefaultClientConfig(cfg.MarketData.BaseURL, cfg.MarketData.APIKey)
		clientCfg.Timeout = cfg.MarketDataTimeout()
		prices = marketdata.NewClient(clientCfg, logger)
	default:
		prices = marketdata.NewStaticProvider(nil)
	}

	analyzer := analysis.NewAnalyzer(cfg.Analysis.Tolerance)
	service := ledger.NewService(store, prices, analyzer, logger)
	orchestrator := assignment.NewOrchestrator(store, service.Locks())
	srv := server.NewServer(server.Config{
		Port:      cfg.Server.Port,
		AuthToken: cfg.Server.AuthToken,
	}, service, orchestrator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}
