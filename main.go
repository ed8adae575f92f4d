// Package main is the entry point of the tradechat backend.
//
// main only wires things together: config, database, repositories, the
// WebSocket hub, services, handlers and routes. There are no globals;
// everything is built here and passed down.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/akinalp/tradechat/config"
	"github.com/akinalp/tradechat/database"
	"github.com/akinalp/tradechat/pkg/events"
	"github.com/akinalp/tradechat/pkg/logger"
	"github.com/akinalp/tradechat/ws"
)

func main() {
	// ─── Config ───
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("tradechat server starting", zap.Int("port", cfg.Server.Port))

	// ─── Database ───
	db, err := database.Open(cfg.Database.Path, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// ─── Shared infrastructure ───
	presence, relay, closeRedis := initRedis(cfg.Redis, log)
	defer closeRedis()

	publisher := initPublisher(cfg.Kafka, log)
	defer publisher.Close()

	// ─── Repositories ───
	repos := initRepositories(db)

	// ─── WebSocket Hub ───
	hub := ws.NewHub(ws.HubConfig{
		Presence: presence,
		Relay:    relay,
		Logger:   log,
	})

	// ─── Services ───
	svcs := initServices(db, repos, hub, publisher, cfg, log)
	defer svcs.Close()

	registerHubCallbacks(hub, svcs, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go hub.Run()
	go func() {
		if err := hub.ListenRelay(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay listener stopped", zap.Error(err))
		}
	}()

	// ─── Handlers & Routes ───
	h := initHandlers(svcs, hub)
	wsHandler := ws.NewHandler(hub, svcs.Token, svcs.ConnectLimiter, cfg.Server.AllowedOrigins)

	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Token, wsHandler)

	// ─── CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// ─── HTTP Server ───
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ─── Graceful Shutdown ───
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-done
	log.Info("shutting down")

	// WebSocket clients go first so they see the close before HTTP stops.
	stop()
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
		return
	}

	log.Info("server stopped gracefully")
}

// initRedis returns the presence store and relay. Without Redis both stay
// in process (nil lets the hub pick its defaults).
func initRedis(cfg config.RedisConfig, log *zap.Logger) (ws.PresenceStore, ws.Relay, func()) {
	if !cfg.Enabled() {
		log.Info("redis disabled, presence and fan-out stay in process")
		return nil, nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))

	store := ws.NewRedisPresenceStore(client, cfg.Prefix, 0)
	relay := ws.NewRedisRelay(client, cfg.Prefix, log)
	return store, relay, func() {
		if err := client.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}
}

func initPublisher(cfg config.KafkaConfig, log *zap.Logger) events.Publisher {
	if !cfg.Enabled() {
		log.Info("kafka disabled, domain events are dropped")
		return events.NopPublisher{}
	}
	log.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, log)
}
