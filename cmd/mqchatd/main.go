package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	_ "go.uber.org/automaxprocs"

	"mqchat/internal/config"
	"mqchat/internal/logging"
	"mqchat/internal/mailbox"
	"mqchat/internal/metrics"
	"mqchat/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	transport, err := newTransport(cfg)
	if err != nil {
		logger.Fatal("transport init failed", zap.Error(err))
	}
	defer transport.Close() // nolint:errcheck

	metricsRegistry := metrics.NewRegistry()
	srv, err := server.New(cfg, logger, metricsRegistry, transport)
	if err != nil {
		logger.Fatal("server init failed", zap.Error(err))
	}
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpErrCh := make(chan error, 1)
	if cfg.Metrics.Enabled {
		go func() {
			httpErrCh <- runHTTPServer(ctx, cfg, srv, metricsRegistry, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-srv.Done():
		logger.Info("control queue gone, shutting down")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
		stop()
	}

	srv.Shutdown()
}

func newTransport(cfg config.Config) (mailbox.Transport, error) {
	switch cfg.Queue.Transport {
	case "nats":
		return mailbox.NewNATS(cfg.Queue.NATSURL, cfg.Queue.Depth)
	case "memory":
		// Single-process only; clients in other processes cannot attach.
		return mailbox.NewBroker(cfg.Queue.Depth), nil
	default:
		return nil, fmt.Errorf("unknown queue transport %q", cfg.Queue.Transport)
	}
}

func runHTTPServer(ctx context.Context, cfg config.Config, srv *server.Server, metricsRegistry *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"clients":   srv.ClientCount(),
		})
	})

	mux.Handle(cfg.Metrics.Endpoint, metricsRegistry.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics http server starting", zap.String("addr", cfg.Metrics.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
