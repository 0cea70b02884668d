package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peerbeam/peerbeam/internal/broker"
	"github.com/peerbeam/peerbeam/internal/config"
	"github.com/peerbeam/peerbeam/internal/database"
	"github.com/peerbeam/peerbeam/internal/handler"
	"github.com/peerbeam/peerbeam/internal/jobs"
	"github.com/peerbeam/peerbeam/internal/middleware"
	"github.com/peerbeam/peerbeam/internal/presence"
	"github.com/peerbeam/peerbeam/internal/redis"
	"github.com/peerbeam/peerbeam/internal/repository"
	"github.com/peerbeam/peerbeam/internal/room"
	"github.com/peerbeam/peerbeam/internal/store"
	"github.com/peerbeam/peerbeam/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	// The audit log is optional. Without a database the server still relays
	// signaling; room lifecycle events are simply not retained.
	var eventRepo repository.RoomEventRepository
	var sink room.EventSink
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()

		eventRepo = repository.NewRoomEventRepository(db.DB)
		if err := eventRepo.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure audit schema")
		}
		sink = eventRepo
		log.Info().Msg("database connected")
	}

	roomStore := store.NewRedisStore(redisClient.Client)

	bus := broker.NewBroker(redisClient)
	defer bus.Close()

	coordinator := room.NewCoordinator(roomStore, sink, cfg.RoomTTL())
	directory := presence.NewDirectory(bus)
	negotiator := presence.NewNegotiator(directory, coordinator, roomStore, bus, cfg.RequestTTL())

	rateLimitMiddleware := middleware.NewIPRateLimitMiddleware(redisClient.Client, cfg.RoomCreateLimit, "rooms")

	roomHandler := handler.NewRoomHandler(coordinator, rateLimitMiddleware.Handler)
	roomEndpoint := ws.NewEndpoint(bus, ws.NewRoomHandler(coordinator), cfg.Origins())
	groupEndpoint := ws.NewEndpoint(bus, ws.NewGroupHandler(directory, negotiator), cfg.Origins())

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]any{
				"status":    "ok",
				"timestamp": time.Now().UnixMilli(),
			})
		})

		r.Mount("/rooms", roomHandler.Routes())
	})

	// Websocket routes stay outside the request timeout group; connections
	// are long-lived and close on their own ping/pong deadlines.
	r.Get("/ws/rooms", roomEndpoint.ServeHTTP)
	r.Get("/ws/groups", groupEndpoint.ServeHTTP)

	cleanupJob := jobs.NewCleanupJob(nil, eventRepo, cfg.AuditRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
