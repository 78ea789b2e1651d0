package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"github.com/spooky-finn/kucoin-book-mirror/infrastructure/kafka"
	"github.com/spooky-finn/kucoin-book-mirror/infrastructure/logger"
	"github.com/spooky-finn/kucoin-book-mirror/provider/kucoin"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. MIRROR_SYMBOLS.
const EnvPrefix = "MIRROR_"

type Config struct {
	Symbols []string      `yaml:"symbols" env:"SYMBOLS" envSeparator:","`
	Kucoin  KucoinConfig  `yaml:"kucoin" envPrefix:"KUCOIN_"`
	Sync    SyncConfig    `yaml:"sync" envPrefix:"SYNC_"`
	HTTP    HTTPConfig    `yaml:"http" envPrefix:"HTTP_"`
	GRPC    GRPCConfig    `yaml:"grpc" envPrefix:"GRPC_"`
	Log     logger.Config `yaml:"log" envPrefix:"LOG_"`
	Kafka   kafka.Config  `yaml:"kafka" envPrefix:"KAFKA_"`
}

type KucoinConfig struct {
	BaseURL       string `yaml:"baseURL" env:"BASE_URL"`
	APIKey        string `yaml:"apiKey" env:"API_KEY"`
	APISecret     string `yaml:"apiSecret" env:"SECRET_KEY"`
	APIPassphrase string `yaml:"apiPassphrase" env:"PASSPHRASE"`
	SnapshotDepth int    `yaml:"snapshotDepth" env:"SNAPSHOT_DEPTH"`
}

type SyncConfig struct {
	RefreshCooldown   time.Duration `yaml:"refreshCooldown" env:"REFRESH_COOLDOWN"`
	RefreshTimeout    time.Duration `yaml:"refreshTimeout" env:"REFRESH_TIMEOUT"`
	MaxPendingUpdates int           `yaml:"maxPendingUpdates" env:"MAX_PENDING_UPDATES"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	AdminAddr string `yaml:"adminAddr" env:"ADMIN_ADDR"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

func Default() Config {
	sync := domain.DefaultSequencerConfig()

	return Config{
		Symbols: []string{"BTC-USDT"},
		Kucoin: KucoinConfig{
			BaseURL:       kucoin.DefaultBaseURL,
			SnapshotDepth: kucoin.DefaultSnapshotDepth,
		},
		Sync: SyncConfig{
			RefreshCooldown:   sync.RefreshCooldown,
			RefreshTimeout:    sync.RefreshTimeout,
			MaxPendingUpdates: sync.MaxPendingUpdates,
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			AdminAddr: ":8081",
		},
		GRPC: GRPCConfig{
			Addr: ":50051",
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads path over the defaults, then applies .env and MIRROR_ environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	seen := make(map[string]struct{}, len(c.Symbols))
	symbols := make([]string, 0, len(c.Symbols))

	for _, s := range c.Symbols {
		symbol, err := domain.NormalizeSymbol(s)
		if err != nil {
			return fmt.Errorf("symbols: %w: %q", err, s)
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}

	c.Symbols = symbols
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("symbols: at least one symbol is required"))
	}
	if c.Kucoin.SnapshotDepth != 20 && c.Kucoin.SnapshotDepth != 100 {
		errs = append(errs, fmt.Errorf("kucoin.snapshotDepth: must be 20 or 100, got %d", c.Kucoin.SnapshotDepth))
	}
	if c.Sync.RefreshCooldown < 0 {
		errs = append(errs, errors.New("sync.refreshCooldown: must not be negative"))
	}
	if c.Sync.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("sync.refreshTimeout: must be positive"))
	}
	if c.Sync.MaxPendingUpdates <= 0 {
		errs = append(errs, errors.New("sync.maxPendingUpdates: must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr: required"))
	}
	if c.HTTP.AdminAddr == "" {
		errs = append(errs, errors.New("http.adminAddr: required"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic: required when brokers are set"))
	}

	return errors.Join(errs...)
}

// SequencerConfig maps the sync section onto the sequencer settings.
func (c *Config) SequencerConfig() domain.SequencerConfig {
	return domain.SequencerConfig{
		RefreshCooldown:   c.Sync.RefreshCooldown,
		RefreshTimeout:    c.Sync.RefreshTimeout,
		MaxPendingUpdates: c.Sync.MaxPendingUpdates,
	}
}

func (c *Config) SyncAPIConfig() kucoin.SyncAPIConfig {
	return kucoin.SyncAPIConfig{
		BaseURL:       c.Kucoin.BaseURL,
		APIKey:        c.Kucoin.APIKey,
		APISecret:     c.Kucoin.APISecret,
		APIPassphrase: c.Kucoin.APIPassphrase,
		SnapshotDepth: c.Kucoin.SnapshotDepth,
	}
}
