// cmd/historian/main.go drains room audit records from Redis into PostgreSQL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/peerplay/internal/cache"
	"github.com/jason-s-yu/peerplay/internal/config"
	"github.com/jason-s-yu/peerplay/internal/database"
	"github.com/jason-s-yu/peerplay/internal/historian"
	"github.com/jason-s-yu/peerplay/internal/logging"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load(os.Getenv("PEERPLAY_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("connecting to postgres")
	}
	defer db.Close()
	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("connecting to redis")
	}
	defer rdb.Close()

	svc := historian.New(cache.NewAuditQueue(rdb, cfg.Redis.Queue), historian.NewPostgresSink(db), cfg.Historian, logger)
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
		os.Exit(1)
	}
}
