package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/dame-server/internal/ai"
	"github.com/park285/dame-server/internal/auth"
	"github.com/park285/dame-server/internal/backend"
	appcfg "github.com/park285/dame-server/internal/config"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/msgcat"
	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/presence"
	"github.com/park285/dame-server/internal/repository"
	"github.com/park285/dame-server/internal/server"
	"github.com/park285/dame-server/internal/settlement"
	"github.com/park285/dame-server/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	repo, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		logger.Fatal("repository open", zap.Error(err))
	}
	var snapshots match.SnapshotStore
	var rdb *store.Store
	if cfg.RedisURL != "" {
		rdb, err = store.Dial(ctx, cfg.RedisURL)
		if err != nil {
			cancel()
			logger.Fatal("redis dial", zap.Error(err))
		}
		snapshots = rdb
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set; rooms do not survive restarts"))
	}
	cancel()

	api := backend.NewClient(cfg.APIURL, backend.WithTimeout(cfg.APITimeout))
	if !api.Enabled() {
		logger.Warn("backend_disabled", zap.String("reason", "API_URL not set; payouts are not forwarded"))
	}

	authn, err := auth.New(auth.Options{
		BotToken:  cfg.TelegramBotToken,
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.SessionTTL,
		Dev:       cfg.DevAuth,
	})
	if err != nil {
		logger.Fatal("auth init", zap.Error(err))
	}

	reg := presence.NewRegistry(presence.Options{})
	mgr := match.NewManager(match.Options{
		BoardSize:     cfg.BoardSize,
		TimeControlMS: cfg.TimeControlMS,
		Grace:         cfg.DisconnectGrace,
		Tick:          cfg.TickInterval,
		Publisher:     server.NewPublisher(reg),
		Settler:       settlement.New(api, repo),
		Store:         snapshots,
	})

	srv := server.New(server.Config{
		Auth:           authn,
		Presence:       reg,
		Matches:        mgr,
		Repo:           repo,
		AI:             ai.NewPool(ai.PoolConfig{MaxConcurrent: cfg.AIMaxConcurrency, Timeout: cfg.AITimeout}),
		Catalog:        cat,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	rctx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
	restored, err := mgr.Restore(rctx)
	rcancel()
	if err != nil {
		logger.Warn("restore_failed", zap.Error(err))
	}
	srv.Adopt(restored)
	logger.Info("startup",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("board_size", cfg.BoardSize),
		zap.Int("restored_rooms", len(restored)),
		zap.Bool("dev_auth", cfg.DevAuth),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.ListenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("http_server_failed", zap.Error(err))
		}
	}

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	_ = srv.Shutdown(sctx)
	if err := mgr.Close(sctx); err != nil {
		logger.Warn("room_shutdown_incomplete", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = repo.Close()
}
