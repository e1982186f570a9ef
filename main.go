package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/auth"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/cluster"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/config"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/hub"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/ingest"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/logging"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/metrics"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/orders"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/protocol"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/server"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Service.Name, cfg.Tracer.Endpoint)
	if err != nil {
		slog.Error("telemetry error", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, err := orders.Open(ctx, cfg.Orders.Driver, cfg.Orders.DSN)
	if err != nil {
		slog.Error("orders store error", "driver", cfg.Orders.Driver, "error", err)
		os.Exit(1)
	}

	var authz domain.Authorizer = auth.OpenAuthorizer{}
	var tokens *auth.TokenService
	if cfg.Auth.Secret != "" {
		tokens = auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		if store != nil {
			authz = auth.NewOrderAuthorizer(store)
		} else {
			slog.Warn("tokens required but order checks disabled, set ORDERS_DRIVER to enable them")
		}
	} else {
		slog.Warn("JWT_SECRET not set, any client may join and publish to any room")
	}

	hubOpts := []hub.Option{hub.WithMetrics(m)}
	var rdb *redis.Client
	var bridge *cluster.RedisBridge
	if cfg.Redis.URL != "" {
		rdb, err = cluster.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Error("redis error", "error", err)
			os.Exit(1)
		}
		bridge = cluster.NewRedisBridge(rdb)
		hubOpts = append(hubOpts, hub.WithForwarder(bridge))
	}
	relay := hub.New(hubOpts...)

	if bridge != nil {
		if err := bridge.Start(ctx, relay); err != nil {
			slog.Error("redis bridge error", "error", err)
			os.Exit(1)
		}
	}

	var positions *ingest.MQTT
	if cfg.MQTT.Broker != "" {
		positions = ingest.New(ingest.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		}, relay)
		if err := positions.Start(); err != nil {
			slog.Error("mqtt error", "broker", cfg.MQTT.Broker, "error", err)
			os.Exit(1)
		}
	}

	handler := protocol.NewHandler(relay, authz, m)
	srv := server.New(relay, handler, server.Options{
		Tokens:     tokens,
		Gatherer:   reg,
		Metrics:    m,
		SendBuffer: cfg.SendBuffer,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Service.Port,
		Handler: srv.Handler(),
	}

	go func() {
		slog.Info("server starting", "port", cfg.Service.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	cancel()
	if positions != nil {
		positions.Stop()
	}
	if rdb != nil {
		rdb.Close()
	}
	if store != nil {
		store.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}
