package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/config"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/db"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/logger"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/repository"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/server"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/chat"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/project"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/proposal"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/resume"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		lg.Fatal("database", zap.Error(err))
	}
	repo := repository.New(gdb)

	hub := realtime.NewHub(lg.Named("hub"))
	go hub.Run(ctx)

	// without redis the hub is its own broadcaster
	var bus chat.Broadcaster = hub
	if cfg.RedisAddr != "" {
		rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Fatal("redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()

		relay := realtime.NewRedisRelay(rdb, hub, lg.Named("relay"))
		go func() {
			if err := relay.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("redis relay stopped", zap.Error(err))
			}
		}()
		bus = relay
		lg.Info("chat relay via redis", zap.String("addr", cfg.RedisAddr))
	}

	resumes := resume.NewLocalStore(filepath.Join(cfg.UploadDir, "resumes"), lg.Named("resume"))
	projects := project.New(repo, lg.Named("project"))
	proposals := proposal.New(repo, resumes, lg.Named("proposal"))
	chats := chat.New(repo, hub, bus, lg.Named("chat"))

	reconciler := proposal.NewReconciler(repo, lg.Named("reconciler"))
	go reconciler.Run(ctx, cfg.ReconcileInterval)

	app := server.New(server.Deps{
		Log:           lg,
		Users:         repo,
		Projects:      projects,
		Proposals:     proposals,
		Chat:          chats,
		Hub:           hub,
		Resumes:       resumes,
		JWTSecret:     cfg.JWTSecret,
		JWTExpiresMin: cfg.JWTExpiresMin,
		UploadDir:     cfg.UploadDir,
		CORSOrigins:   cfg.CORSOrigins,
		BodyLimitMB:   cfg.BodyLimitMB,
	})

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			lg.Error("shutdown", zap.Error(err))
		}
	}()

	lg.Info("listening", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		lg.Fatal("listen", zap.Error(err))
	}
}
