// cmd/directory/main.go runs the room directory service.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/peerplay/internal/auth"
	"github.com/jason-s-yu/peerplay/internal/cache"
	"github.com/jason-s-yu/peerplay/internal/config"
	"github.com/jason-s-yu/peerplay/internal/database"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/handlers"
	"github.com/jason-s-yu/peerplay/internal/logging"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("directory exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	var signer *auth.Signer
	var err error
	if cfg.Auth.PrivateKeyPath != "" {
		signer, err = auth.LoadSigner(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, cfg.Auth.TokenTTL)
	} else {
		logger.Warn("no signing key configured; tokens will not survive a restart")
		signer, err = auth.NewSigner(cfg.Auth.TokenTTL)
	}
	if err != nil {
		return err
	}

	dir, cleanup, err := openDirectory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	api := handlers.NewAPIServer(dir, signer, logger)
	srv := &http.Server{
		Addr:              cfg.Directory.Listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s (%s backend)", cfg.Directory.Listen, cfg.Directory.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if p, ok := dir.(directory.Purger); ok && cfg.Directory.Retention > 0 {
		g.Go(func() error {
			directory.RunPurger(gctx, p, cfg.Directory.Retention, cfg.Directory.PurgeInterval, logger)
			return nil
		})
	}
	return g.Wait()
}

// openDirectory builds the configured backend. The postgres backend uses
// Redis for the room feed and the historian queue when it is reachable and
// falls back to an in-process feed otherwise.
func openDirectory(ctx context.Context, cfg config.Config, logger *logrus.Logger) (directory.Directory, func(), error) {
	if cfg.Directory.Backend == "memory" {
		return directory.NewMemory(), func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.DSN()); err != nil {
			return nil, nil, err
		}
		logger.Info("migrations applied")
	}
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	var (
		feed  *cache.RoomFeed
		queue *cache.AuditQueue
	)
	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable; room feed is local and room events are not recorded")
	} else {
		feed = cache.NewRoomFeed(rdb, cfg.Redis.FeedPrefix, logger)
		queue = cache.NewAuditQueue(rdb, cfg.Redis.Queue)
	}

	cleanup := func() {
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
	}
	return directory.NewPostgres(db, feed, queue, logger), cleanup, nil
}
