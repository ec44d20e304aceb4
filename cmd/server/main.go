package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluko123/go-fxrate-server/pkg/blocklist"
	"github.com/aluko123/go-fxrate-server/pkg/config"
	"github.com/aluko123/go-fxrate-server/pkg/eventlog"
	"github.com/aluko123/go-fxrate-server/pkg/limit"
	"github.com/aluko123/go-fxrate-server/pkg/logger"
	"github.com/aluko123/go-fxrate-server/rates"
	"github.com/aluko123/go-fxrate-server/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatalf("fxrate server: %v", err)
	}
}

// run starts the server and blocks until ctx is cancelled. Every resource it
// opens is closed before it returns.
func run(ctx context.Context, args []string) error {
	// --- 1. Configuration ---
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog := logger.New(cfg.LogFormat, os.Stdout, cfg.Debug)
	slog.SetDefault(appLog.Logger)

	// --- 2. Initialize Infrastructure ---

	// Event log
	events, err := eventlog.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer events.Close()

	// Rate Limiter
	var limiter limit.RequestLimiter
	switch cfg.Limiter {
	case config.LimiterRedis:
		appLog.Info("initializing redis request limiter", "addr", cfg.RedisAddr, "limit", cfg.MaxRequestsPerMinute, "window", cfg.RequestWindow)
		limiter, err = limit.NewRedisRequestLimiter(cfg.RedisAddr, cfg.MaxRequestsPerMinute, cfg.RequestWindow)
		if err != nil {
			return fmt.Errorf("initialize redis request limiter: %w", err)
		}
	default:
		appLog.Info("initializing in-memory request limiter", "limit", cfg.MaxRequestsPerMinute, "window", cfg.RequestWindow)
		limiter = limit.NewMemoryRequestLimiter(cfg.MaxRequestsPerMinute, cfg.RequestWindow, cfg.SweepInterval)
	}
	defer limiter.Close()

	// Blocklist
	var bl *blocklist.Manager
	if cfg.BlocklistPath != "" {
		bl = blocklist.NewManager()
		if err := bl.LoadFromFile(cfg.BlocklistPath); err != nil {
			appLog.Warn("could not load blocklist", "path", cfg.BlocklistPath, "error", err)
		} else {
			appLog.Info("blocklist loaded", "entries", bl.Len())
		}
	}

	// Rate feed
	feedCfg := rates.DefaultConfig()
	feedCfg.URL = cfg.FeedURL
	feedCfg.BaseCurrency = cfg.BaseCurrency
	feedCfg.Timeout = cfg.FeedTimeout
	provider := rates.NewHTTPProvider(feedCfg)
	defer provider.Close()

	// --- 3. Observability ---
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			appLog.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// --- 4. Start Server ---
	srv := server.New(server.Config{
		MaxClients:       cfg.MaxClients,
		AdmissionTimeout: cfg.AdmissionTimeout,
		IdleTimeout:      cfg.IdleTimeout,
		Identity:         cfg.Identity,
		AcceptRate:       cfg.AcceptRate,
		AcceptBurst:      cfg.AcceptBurst,
	}, server.Deps{
		Provider:  provider,
		Limiter:   limiter,
		Events:    events,
		Blocklist: bl,
		Logger:    appLog,
	})

	err = srv.ListenAndServe(ctx, cfg.Addr())
	if err != nil && !errors.Is(err, server.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	appLog.Info("bye")
	return nil
}
