package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
)

// Supported checkpoint store backends.
const (
	storeFile    = "file"
	storeLevelDB = "leveldb"
	storeRedis   = "redis"
)

// Config holds all configuration for the crawler run command.
type Config struct {
	// Application settings
	Verbose bool

	// Crawl settings
	Token        string
	MaxSteps     int
	Concurrency  int
	RequestDelay time.Duration
	Window       time.Duration

	// Checkpoint settings
	StoreBackend  string
	CheckpointDir string
	RedisAddr     string

	// Kafka settings
	KafkaBrokers string
	KafkaTopic   string

	// Metrics settings
	MetricsHost string
	MetricsPort int
	Environment string
}

// MetricsAddr returns the formatted metrics address.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// StorePath returns the per-token path used by the file and leveldb backends.
func (c *Config) StorePath() string {
	return filepath.Join(c.CheckpointDir, c.Token)
}

// buildConfig builds a Config from CLI context flags.
func buildConfig(c *cli.Context) (*Config, error) {
	cfg := &Config{
		Verbose:       c.Bool("verbose"),
		Token:         c.String("token"),
		MaxSteps:      c.Int("max-steps"),
		Concurrency:   c.Int("concurrency"),
		RequestDelay:  c.Duration("request-delay"),
		Window:        c.Duration("window"),
		StoreBackend:  c.String("store"),
		CheckpointDir: c.String("checkpoint-dir"),
		RedisAddr:     c.String("redis-addr"),
		KafkaBrokers:  c.String("kafka-brokers"),
		KafkaTopic:    c.String("kafka-topic"),
		MetricsHost:   c.String("metrics-host"),
		MetricsPort:   c.Int("metrics-port"),
		Environment:   c.String("environment"),
	}

	switch cfg.StoreBackend {
	case storeFile, storeLevelDB, storeRedis:
	default:
		return nil, fmt.Errorf("unknown checkpoint store backend %q", cfg.StoreBackend)
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("max-steps must be greater than 0, got %d", cfg.MaxSteps)
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be greater than 0, got %d", cfg.Concurrency)
	}

	return cfg, nil
}
