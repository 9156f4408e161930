package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/ban"
	"github.com/Kunalchandra007/SuddenConnect/internal/config"
	"github.com/Kunalchandra007/SuddenConnect/internal/gateway"
	"github.com/Kunalchandra007/SuddenConnect/internal/history"
	"github.com/Kunalchandra007/SuddenConnect/internal/lifecycle"
	"github.com/Kunalchandra007/SuddenConnect/internal/logger"
	"github.com/Kunalchandra007/SuddenConnect/internal/messaging"
	"github.com/Kunalchandra007/SuddenConnect/internal/metrics"
	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/Kunalchandra007/SuddenConnect/internal/ratelimit"
	"github.com/Kunalchandra007/SuddenConnect/internal/report"
	"github.com/Kunalchandra007/SuddenConnect/internal/room"
	"github.com/Kunalchandra007/SuddenConnect/internal/session"
	"github.com/Kunalchandra007/SuddenConnect/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Presence and rate limits fail open; matching works without Redis.
		log.Warn("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancel()

	fanout := lifecycle.NewFanout(cfg.EventBuffer, lifecycle.DefaultSinkTimeout, log.Named("lifecycle"),
		session.NewStore(rdb, cfg.ServerName))

	// --- WebSocket transport ---
	wsCfg := ws.DefaultServerConfig()
	wsCfg.ListenAddr = cfg.ListenAddr
	wsCfg.WorkerPoolSize = cfg.WorkerPoolSize
	wsCfg.MaxConnections = cfg.MaxConnections
	wsCfg.ReadTimeout = cfg.ReadTimeout
	wsCfg.WriteTimeout = cfg.WriteTimeout
	wsCfg.SendQueueSize = cfg.SendQueueSize
	wsCfg.Heartbeat = ws.HeartbeatConfig{Interval: cfg.HeartbeatInterval, Timeout: cfg.HeartbeatTimeout}

	server, err := ws.NewServer(wsCfg, nil, log.Named("ws"))
	if err != nil {
		return err
	}

	// --- NATS (optional) ---
	var group room.Group = room.NewLocalGroup(server.Send)
	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Name = "suddenconnect-" + cfg.ServerName
		nc, err := messaging.Connect(natsCfg, log.Named("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		group = messaging.NewRoomBus(nc, server.Send, log.Named("roombus"))
		fanout.Add(messaging.NewEventPublisher(nc))
	}

	// --- Postgres (optional) ---
	var reporter gateway.Reporter
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer db.Close()
		hist := history.NewStore(db)
		fanout.Add(hist)
		reporter = report.NewStore(db)
		server.Handle("/debug/sessions", hist.Handler())
	}

	// --- Pairing ---
	notifier := gateway.NewNotifier(server, group)
	rooms := room.NewManager(notifier, group, log.Named("room"))
	engine := pairing.New(pairing.Config{
		QueueTimeout: cfg.QueueTimeout,
		Sink:         fanout,
	}, notifier, rooms, ban.NewRegistry(), log.Named("pairing"))

	var limiter gateway.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(rdb, log.Named("ratelimit"))
	} else {
		log.Warn("rate limiting disabled")
	}
	gw := gateway.New(engine, rooms, notifier, gateway.Options{
		Limiter:  limiter,
		Reporter: reporter,
	}, log.Named("gateway"))
	fanout.Add(gw)

	server.SetHandler(gw)
	server.SetStats(gw.Stats)
	server.Handle("/metrics", metrics.Handler())

	log.Info("SuddenConnect server starting",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("server_name", cfg.ServerName),
		zap.Duration("queue_timeout", cfg.QueueTimeout),
		zap.Bool("nats", cfg.NATSURL != ""),
		zap.Bool("history", cfg.DatabaseURL != ""))

	engineCtx, stopEngine := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = engine.Run(engineCtx)
	}()
	go func() {
		defer wg.Done()
		_ = fanout.Run(engineCtx)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serveErr:
	}

	// Closing connections runs Disconnect for everyone still online, so the
	// engine stays up until the transport is gone.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Warn("transport shutdown error", zap.Error(serr))
	}
	stopEngine()
	wg.Wait()
	return err
}

func openDatabase(url string, log *zap.Logger) (*sql.DB, error) {
	db, err := history.Open(url)
	if err != nil {
		return nil, err
	}
	if err := history.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	version, dirty, err := history.Version(db)
	if err != nil {
		log.Warn("schema version unavailable", zap.Error(err))
	}
	log.Info("database ready", zap.Uint("schema_version", version), zap.Bool("dirty", dirty))
	return db, nil
}
