// cmd/peerplay/main.go is the player CLI: browse the lobby, host a room or
// join one and play over a direct link.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/peerplay/internal/config"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/identity"
	"github.com/jason-s-yu/peerplay/internal/logging"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	serverURL  string
	playerName string
)

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg    config.Config
	logger *logrus.Logger
	store  identity.Store
	me     identity.Identity
	client *directory.Client
}

func setup() (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Directory.BaseURL = serverURL
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	store := identity.NewFileStore(cfg.Identity.Path)
	me, err := identity.Ensure(store, playerName)
	if err != nil {
		return nil, err
	}
	client, err := directory.NewClient(cfg.Directory.BaseURL, me.Token, nil, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, store: store, me: me, client: client}, nil
}

// authorize fetches a token when none is stored or force is set, and
// persists it with the identity.
func (e *env) authorize(ctx context.Context, force bool) error {
	if e.me.Token != "" && !force {
		return nil
	}
	resp, err := e.client.RequestIdentity(ctx, e.me.PlayerID, e.me.Name)
	if err != nil {
		return fmt.Errorf("requesting identity: %w", err)
	}
	e.me.Token = resp.Token
	return e.store.Save(e.me)
}

// withAuth runs f, refreshing the token once if the directory rejects it.
func (e *env) withAuth(ctx context.Context, f func() error) error {
	if err := e.authorize(ctx, false); err != nil {
		return err
	}
	err := f()
	if !errors.Is(err, directory.ErrUnauthorized) {
		return err
	}
	e.logger.Debug("token rejected, requesting a new one")
	if err := e.authorize(ctx, true); err != nil {
		return err
	}
	return f()
}

var rootCmd = &cobra.Command{
	Use:           "peerplay",
	Short:         "Play two-player board games over a direct link",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("PEERPLAY_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "directory service URL (overrides directory.base_url)")
	rootCmd.PersistentFlags().StringVar(&playerName, "name", "", "display name (required on first use)")
	rootCmd.AddCommand(identityCmd, listCmd, hostCmd, joinCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
