// Package config provides Viper-based configuration shared by the directory
// service, the historian and the player CLI.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// AutoMigrate applies embedded migrations when the directory starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, fmt.Sprint(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// RedisConfig holds the room feed and audit queue settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// FeedPrefix prefixes the pub/sub channel of each game type.
	FeedPrefix string `mapstructure:"feed_prefix"`
	// Queue is the list the directory pushes room events to for the historian.
	Queue string `mapstructure:"queue"`
}

// DirectoryConfig configures both the directory service and its clients.
type DirectoryConfig struct {
	// Listen is the service bind address.
	Listen string `mapstructure:"listen"`
	// BaseURL is where clients reach the service.
	BaseURL string `mapstructure:"base_url"`
	// Backend selects the room store: "postgres" or "memory".
	Backend string `mapstructure:"backend"`
	// Retention hard-deletes closed rooms older than this. Zero keeps them forever.
	Retention     time.Duration `mapstructure:"retention"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// PeerConfig tunes the direct player link.
type PeerConfig struct {
	Listen           string        `mapstructure:"listen"`
	AdvertiseHost    string        `mapstructure:"advertise_host"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	SendBuffer       int           `mapstructure:"send_buffer"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "trace", "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is "json" or "text".
	Format string `mapstructure:"format"`
}

// IdentityConfig points at the locally persisted player identity.
type IdentityConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig controls directory tokens. Without key paths the service signs
// with a key generated at startup.
type AuthConfig struct {
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
}

// HistorianConfig controls batching of room events into Postgres.
type HistorianConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

// Config is the top-level application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Peer      PeerConfig      `mapstructure:"peer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Historian HistorianConfig `mapstructure:"historian"`
}

// Validate checks all configuration invariants and reports every violation at once.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateDatabase(c.Database),
		validateRedis(c.Redis),
		validateDirectory(c.Directory),
		validatePeer(c.Peer),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Auth.TokenTTL < 0 {
		errs = append(errs, "auth.token_ttl must not be negative")
	}
	if (c.Auth.PrivateKeyPath == "") != (c.Auth.PublicKeyPath == "") {
		errs = append(errs, "auth.private_key_path and auth.public_key_path must be set together")
	}
	if c.Historian.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("historian.batch_size must be >= 1, got %d", c.Historian.BatchSize))
	}
	if c.Historian.FlushEvery <= 0 {
		errs = append(errs, "historian.flush_every must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be between 0 and database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if _, _, err := net.SplitHostPort(r.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("redis.addr must be host:port, got %q", r.Addr))
	}
	if r.DB < 0 {
		errs = append(errs, "redis.db must not be negative")
	}
	if r.Queue == "" {
		errs = append(errs, "redis.queue must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDirectory(d DirectoryConfig) error {
	var errs []string
	if _, _, err := net.SplitHostPort(d.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("directory.listen must be host:port, got %q", d.Listen))
	}
	if u, err := url.Parse(d.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("directory.base_url must be an http(s) URL, got %q", d.BaseURL))
	}
	if d.Backend != "postgres" && d.Backend != "memory" {
		errs = append(errs, fmt.Sprintf("directory.backend must be one of [postgres, memory], got %q", d.Backend))
	}
	if d.Retention < 0 {
		errs = append(errs, "directory.retention must not be negative")
	}
	if d.Retention > 0 && d.PurgeInterval <= 0 {
		errs = append(errs, "directory.purge_interval must be positive when retention is set")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validatePeer(p PeerConfig) error {
	var errs []string
	if _, _, err := net.SplitHostPort(p.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("peer.listen must be host:port, got %q", p.Listen))
	}
	if p.HandshakeTimeout <= 0 {
		errs = append(errs, "peer.handshake_timeout must be positive")
	}
	if p.PingInterval <= 0 {
		errs = append(errs, "peer.ping_interval must be positive")
	}
	if p.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("peer.send_buffer must be >= 1, got %d", p.SendBuffer))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [trace, debug, info, warn, error], got %q", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("logging.format must be one of [json, text], got %q", l.Format)
	}
	return nil
}

// Load reads the optional YAML file at path, applies PEERPLAY_* environment
// overrides and validates the result. An empty path uses defaults and the
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("PEERPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration Load produces with no file and no environment.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "peerplay")
	v.SetDefault("database.password", "peerplay")
	v.SetDefault("database.name", "peerplay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.feed_prefix", "peerplay:rooms:")
	v.SetDefault("redis.queue", "peerplay_room_events")

	v.SetDefault("directory.listen", "0.0.0.0:8080")
	v.SetDefault("directory.base_url", "http://localhost:8080")
	v.SetDefault("directory.backend", "postgres")
	v.SetDefault("directory.retention", "0s")
	v.SetDefault("directory.purge_interval", "1h")

	v.SetDefault("peer.listen", "0.0.0.0:0")
	v.SetDefault("peer.advertise_host", "")
	v.SetDefault("peer.handshake_timeout", "10s")
	v.SetDefault("peer.ping_interval", "30s")
	v.SetDefault("peer.send_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("identity.path", "peerplay-identity.yaml")

	v.SetDefault("auth.token_ttl", "720h")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.public_key_path", "")

	v.SetDefault("historian.batch_size", 20)
	v.SetDefault("historian.flush_every", "500ms")
}
