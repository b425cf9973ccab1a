package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"vidshare-realtime/internal/adapters/kafka"
	"vidshare-realtime/internal/api/routes"
	"vidshare-realtime/internal/config"
	"vidshare-realtime/internal/conversation"
	"vidshare-realtime/internal/database"
	"vidshare-realtime/internal/logger"
	"vidshare-realtime/internal/repositories/postgres"
	"vidshare-realtime/internal/services"
	"vidshare-realtime/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(os.Stderr, "error", "json").Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting realtime server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubOpts := websocket.HubOptions{
		ReplyDelay:     cfg.Reply.Delay,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log.With("component", "hub"),
		Client: websocket.ClientConfig{
			WriteWait:      cfg.WebSocket.WriteWait,
			PongWait:       cfg.WebSocket.PongWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			SendBufferSize: cfg.WebSocket.SendBufferSize,
		},
	}
	routeOpts := routes.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	}

	// Postgres: user directory and message archive
	if cfg.Database.URI != "" {
		db, err := database.NewPostgresConnection(cfg.Database.URI, log)
		if err != nil {
			log.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		messageRepo := postgres.NewMessageRepository(db)
		hubOpts.Directory = postgres.NewUserRepository(db)
		hubOpts.Sinks = append(hubOpts.Sinks, messageRepo)
		routeOpts.Archive = messageRepo
	} else {
		log.Warn("DATABASE_URL not set, identities are not checked and messages are not archived")
	}

	// Kafka: content store export
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers, "vidshare-realtime")
		if err != nil {
			log.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		exporter := kafka.NewMessageExporter(producer, cfg.Kafka.Topic, log.With("component", "kafka"))
		defer exporter.Close()
		hubOpts.Sinks = append(hubOpts.Sinks, exporter)
	}

	// Redis: cross-instance topic bus, presence mirror, rate limiting
	var bus *services.RedisBus
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis, log)
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient, log.With("component", "redis"))
		bus = services.NewRedisBus(redisClient, log.With("component", "redis-bus"))
		hubOpts.Bus = bus
		hubOpts.Mirror = redisService
		routeOpts.RateLimiter = redisService
	}

	hub := websocket.NewHub(conversation.NewStore(), hubOpts)
	if bus != nil {
		if err := bus.Start(ctx, hub.Broadcaster()); err != nil {
			log.Error("Failed to start Redis topic bus", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
	}

	router := routes.NewRouter(hub, routeOpts)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Server shutting down...")
	case err := <-serverErr:
		log.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by the HTTP server, so
	// the hub closes them and drains pending replies afterwards.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Error("Hub shutdown incomplete", "error", err)
	}

	log.Info("Server stopped")
}
