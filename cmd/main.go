package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conversation-transcription-service/internal/api/ws"
	"conversation-transcription-service/internal/app"
	"conversation-transcription-service/internal/config"
	"conversation-transcription-service/internal/events"
	httpapi "conversation-transcription-service/internal/http"
	"conversation-transcription-service/internal/observability"
	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/store"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		application.Logger.Fatal().Err(err).Msg("application start failed")
	}
	logger := application.Logger

	var st store.Store
	if cfg.Redis.Enabled {
		redisStore, err := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis connection failed")
		}
		st = redisStore
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis store")
	} else {
		st = store.NewMemoryStore()
		logger.Warn().Msg("using in-memory store, conversations will not survive a restart")
	}
	defer st.Close()

	// Kafka publisher with separate topics for view snapshots and final segments
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicView:    cfg.Kafka.TopicView,
		TopicSegment: cfg.Kafka.TopicSegment,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	metricsServer := observability.NewServer(cfg.Observability.MetricsAddr)
	metricsServer.Start()

	editorWS := ws.NewHandler(cfg, st, publisher, logger, metrics.DefaultMetrics)
	router := httpapi.NewRouter(application, st, editorWS)

	server := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("Conversation transcription service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}
	application.Shutdown()
}
