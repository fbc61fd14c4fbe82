package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketstream/internal/health"
	"marketstream/internal/logger"
	"marketstream/internal/server"
	"marketstream/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}

	registry := health.NewRegistry()

	fetcher, err := initializeFetcher(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize upstream fetcher", err)
		os.Exit(1)
	}

	h := initializeHub(cfg, fetcher, registry)
	gw := initializeGateway(ctx, cfg, h)

	trendingCache := initializeTrending(cfg, fetcher)
	trendingCache.Start(ctx)

	newsSvc := initializeNews(cfg)
	streamer := initializeStreamer(ctx, cfg)

	srv := server.New(server.Options{
		Addr:          cfg.Server.Addr,
		ShutdownGrace: time.Duration(cfg.Server.ShutdownGrace) * time.Second,
		Hub:           h,
		Gateway:       gw,
		Fetcher:       fetcher,
		Trending:      trendingCache,
		Headlines:     newsSvc,
		Streamer:      streamer,
		Registry:      registry,
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		logger.Info(ctx, "Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info(ctx, "Market data streaming server starting", "addr", cfg.Server.Addr)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorWithErr(ctx, "Server exited with error", err)
	}

	trendingCache.Stop()
	<-trendingCache.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown failed", "error", err)
	}
	logger.Info(context.Background(), "Shutdown complete")
}
