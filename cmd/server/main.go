package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gyaneshwarpardhi/tradeledger/internal/aggregate"
	"github.com/gyaneshwarpardhi/tradeledger/internal/api"
	"github.com/gyaneshwarpardhi/tradeledger/internal/config"
	"github.com/gyaneshwarpardhi/tradeledger/internal/ingest"
	"github.com/gyaneshwarpardhi/tradeledger/internal/lifecycle"
	"github.com/gyaneshwarpardhi/tradeledger/internal/store"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	cfgPath := flag.String("config", "configs/tradeledger.yaml", "Path to YAML config; empty for environment only")
	flag.Parse()

	_ = godotenv.Load() // .env is optional

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	listen := cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Event store ──────────────────────────────────────────────────────────
	es, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open event store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer es.Close()
	slog.Info("event store ready", "driver", cfg.Store.Driver)

	// ── Ledger ───────────────────────────────────────────────────────────────
	trades := aggregate.New(es)
	writer := lifecycle.New(es, trades, lifecycle.WithPolicy(policyFrom(cfg.Lifecycle)))
	ingester := ingest.New(ctx, es, ingest.Config{Workers: cfg.Ingest.Workers, QueueDepth: cfg.Ingest.QueueDepth})

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		p := policyFrom(newCfg.Lifecycle)
		writer.SetPolicy(p)
		slog.Info("lifecycle policy reloaded",
			"allow_after_cancel", p.AllowEventsAfterCancellation,
			"require_latest", p.RequireLatest,
			"currency", p.Currency,
		)
		if newCfg.Store != cfg.Store || newCfg.Ingest != cfg.Ingest {
			slog.Warn("store and ingest settings change only on restart")
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         listen,
		Handler:      api.New(trades, writer, ingester, loader),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	ingester.Shutdown() // flush queued events before the store closes
	cancel()
	slog.Info("goodbye")
}

func openStore(ctx context.Context, conf config.StoreConf) (store.EventStore, error) {
	switch conf.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverSQLite:
		return store.OpenSQLite(conf.Path)
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, conf.DSN)
	case config.DriverRedis:
		r := store.NewRedis(store.RedisOptions{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
			Prefix:   conf.Redis.Prefix,
		})
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", conf.Driver)
}

func policyFrom(c config.LifecycleConf) lifecycle.Policy {
	return lifecycle.Policy{
		AllowEventsAfterCancellation: !c.TerminalCancellation,
		RequireLatest:                c.RequireLatest,
		Currency:                     c.Currency,
	}
}
