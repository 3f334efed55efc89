package main

import (
	"context"
	"io/fs"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/migrations"
	"github.com/noah-isme/institute-admin-api/pkg/config"
	"github.com/noah-isme/institute-admin-api/pkg/database"
	"github.com/noah-isme/institute-admin-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var source fs.FS = migrations.Files
	if cfg.Migrations.Dir != "" {
		source = os.DirFS(cfg.Migrations.Dir)
		logr.Info("using migrations from disk", zap.String("dir", cfg.Migrations.Dir))
	}

	if err := database.RunMigrations(ctx, db, source, logr); err != nil {
		logr.Fatal("migration failed", zap.Error(err))
	}
}
