package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dbfleet/dbfleet/internal/alarm"
	"github.com/dbfleet/dbfleet/internal/api"
	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/internal/grpchealth"
	"github.com/dbfleet/dbfleet/internal/logging"
	"github.com/dbfleet/dbfleet/internal/metrics"
	"github.com/dbfleet/dbfleet/internal/reconcile"
	"github.com/dbfleet/dbfleet/internal/store"
	"github.com/dbfleet/dbfleet/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logs, err := logging.Setup(cfg.Log)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer logs.Close()

	slog.Info("dbfleet starting", "config", *configPath)
	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"sources", len(cfg.Sources),
		"poll_interval", cfg.Poll.Interval,
		"alarm_store", cfg.Alarms.Store,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logs, *configPath); err != nil {
		slog.Error("dbfleet stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("dbfleet shut down")
}

func run(ctx context.Context, cfg *config.Config, logs *logging.Handle, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Result store with background TTL eviction.
	st := store.New(cfg.Poll.ResultTTL)
	go st.Run(ctx)

	// Alarm registry, restored from the configured store.
	alarmStore, closeStore, err := newAlarmStore(ctx, cfg.Alarms)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := alarm.NewRegistry(alarmStore)
	if n, err := reg.Restore(ctx); err != nil {
		slog.Warn("alarm state not restored, starting with defaults", "err", err)
	} else {
		slog.Info("alarm state restored", "keys", n)
	}
	notifier := alarm.NewNotifier(cfg.Alarms, reg)
	m := metrics.New()

	rec, err := reconcile.New(ctx, cfg, reconcile.Deps{
		Store:    st,
		Registry: reg,
		Notifier: notifier,
		Recorder: m,
	})
	if err != nil {
		return err
	}

	// Hot reload: log level and classifier thresholds. Sources are fixed at
	// startup.
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			if err := logs.SetLevel(updated.Log.Level); err != nil {
				slog.Warn("config reload: keeping log level", "err", err)
			}
			rec.SetThresholds(updated.Thresholds)
			if len(updated.Sources) != len(cfg.Sources) {
				slog.Warn("config reload: source changes need a restart",
					"running", len(cfg.Sources), "configured", len(updated.Sources))
			}
			slog.Info("config hot-reloaded",
				"log_level", updated.Log.Level,
				"disk_free_percent", updated.Thresholds.DiskFreePercent,
				"disk_free_gb", updated.Thresholds.DiskFreeGB,
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// gRPC health, one service per engine.
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", cfg.Server.GRPCPort, err)
		}
		health := grpchealth.New()
		updates, unsubscribe := st.Subscribe()
		defer unsubscribe()
		go health.Watch(ctx, updates)
		go func() {
			if err := health.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server stopped", "err", err)
			}
		}()
	}

	// WebSocket hub, pushing every published snapshot.
	broadcast := cfg.Server.BroadcastInterval
	if broadcast <= 0 {
		broadcast = cfg.Poll.Interval
	}
	hub := ws.New(st, reg, broadcast)
	go hub.Run(ctx)

	// Combined HTTP server: REST API, WebSocket hub and /metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, reg, notifier))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	err = rec.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	notifier.Wait()
	return err
}

// newAlarmStore returns the persistence layer for alarm state and a func
// that releases it.
func newAlarmStore(ctx context.Context, cfg config.AlarmsConfig) (alarm.Store, func(), error) {
	if cfg.Store != "redis" {
		return alarm.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password(),
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
	}
	slog.Info("alarm state persisted in redis", "addr", cfg.Redis.Addr, "key", cfg.Redis.Key)
	return alarm.NewRedisStore(client, cfg.Redis.Key), func() { client.Close() }, nil
}
