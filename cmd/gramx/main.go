package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/bera-tech-ai/gramX/internal/archive"
	"github.com/bera-tech-ai/gramX/internal/auth"
	"github.com/bera-tech-ai/gramX/internal/blob"
	"github.com/bera-tech-ai/gramX/internal/completion"
	"github.com/bera-tech-ai/gramX/internal/config"
	"github.com/bera-tech-ai/gramX/internal/database"
	"github.com/bera-tech-ai/gramX/internal/directory"
	"github.com/bera-tech-ai/gramX/internal/handler"
	"github.com/bera-tech-ai/gramX/internal/hub"
	"github.com/bera-tech-ai/gramX/internal/presence"
	"github.com/bera-tech-ai/gramX/internal/router"
	"github.com/bera-tech-ai/gramX/internal/store"
	"github.com/bera-tech-ai/gramX/internal/summary"
	"github.com/bera-tech-ai/gramX/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := database.AutoMigrate(db, store.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	messageStore := store.New(db)

	var mirror presence.Store
	if cfg.Redis.Enabled {
		mirror, err = presence.NewRedisStore(cfg.Redis.Presence)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		logger.Info().Str("address", cfg.Redis.Presence.Address).Msg("presence mirror enabled")
	} else {
		mirror = presence.NewNoop()
	}
	defer mirror.Close()

	var archiver archive.Producer = archive.NewNoop()
	if cfg.Kafka.Enabled {
		archiver, err = archive.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		logger.Info().Str("topic", cfg.Kafka.Topic).Msg("message archive enabled")
	}
	defer archiver.Close()

	var blobs blob.Store
	switch cfg.Blob.Backend {
	case "s3":
		blobs, err = blob.NewS3Store(context.Background(), cfg.Blob.S3)
	default:
		blobs, err = blob.NewLocalStore(cfg.Blob.Local)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Blob.Backend).Msg("failed to create blob store")
	}

	var completions completion.Client
	if cfg.AutoReply.Enabled {
		completions = completion.NewHTTPClient(completion.HTTPConfig{
			Endpoint: cfg.AutoReply.Endpoint,
			APIKey:   cfg.AutoReply.APIKey,
			Model:    cfg.AutoReply.Model,
		})
		logger.Info().Str(log.FieldUserID, cfg.AutoReply.UserID).Msg("assistant auto-reply enabled")
	}

	h := hub.NewHub()
	go h.Run()

	dir := directory.New(mirror)

	r := router.New(router.Config{
		Directory:   dir,
		Broadcaster: h,
		Store:       messageStore,
		Summaries:   summary.NewBuilder(messageStore),
		Verifier:    auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Archiver:    archiver,
		Blobs:       blobs,
		Completions: completions,
		AssistantID: cfg.AutoReply.UserID,
	})

	wsHandler := handler.NewWSHandler(h, r, cfg.WebSocket)
	routes := mux.NewRouter()
	wsHandler.RegisterRoutes(routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("address", addr).Msg("gramx listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
