package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tokengraph/transfer-indexer/internal/crawler"
	"github.com/tokengraph/transfer-indexer/internal/solscan"
	"github.com/tokengraph/transfer-indexer/pkg/checkpoint"
	"github.com/tokengraph/transfer-indexer/pkg/graph"
	"github.com/tokengraph/transfer-indexer/pkg/metrics"
	"github.com/tokengraph/transfer-indexer/pkg/queue"
	"github.com/tokengraph/transfer-indexer/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

// runAction wires the collaborators together and executes the crawl.
func runAction(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer sugar.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(reg, metrics.Labels{
		Token:       cfg.Token,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var metricsSrv *metrics.Server
	var metricsDone <-chan struct{}
	if cfg.MetricsPort > 0 {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr(), reg)
		metricsDone = watchMetricsServer(metricsSrv.Start(), sugar)
		sugar.Infow("metrics server started", "addr", cfg.MetricsAddr())
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // nothing to do about close errors here

	solCfg, err := solscan.LoadConfig()
	if err != nil {
		return err
	}
	solCfg.RequestDelay = cfg.RequestDelay
	client, err := solscan.NewClient(solCfg, sugar, m)
	if err != nil {
		return err
	}

	token, err := crawler.ResolveToken(ctx, client, store, cfg.Token, sugar)
	if err != nil {
		return err
	}
	sugar.Infow("resolved token context",
		"token", token.Address, "name", token.Name, "minter", token.Minter, "mint_time", token.MintTime)

	observer, closeObserver, err := buildObserver(cfg, sugar)
	if err != nil {
		return err
	}
	defer closeObserver()

	crawl, err := crawler.New(sugar, store, client, token, crawler.Options{
		MaxSteps:    cfg.MaxSteps,
		Concurrency: cfg.Concurrency,
		Window:      cfg.Window,
		Observer:    observer,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	root, err := crawl.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	sugar.Infow("crawl complete",
		"total_nodes", root.DistinctCount(), "tree_size", root.Size())

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("metrics server shutdown failed", "error", err)
		}
		<-metricsDone
	}

	return nil
}

// watchMetricsServer drains the server's error channel in the background so a
// failed bind surfaces in the log at startup instead of after the crawl. The
// returned channel closes once the server has stopped.
func watchMetricsServer(errCh <-chan error, sugar *zap.SugaredLogger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for err := range errCh {
			sugar.Errorw("metrics server failed", "error", err)
		}
	}()
	return done
}

// openStore builds the configured checkpoint store.
func openStore(cfg *Config) (checkpoint.Store, error) {
	switch cfg.StoreBackend {
	case storeFile:
		return checkpoint.NewFileStore(cfg.StorePath())
	case storeLevelDB:
		return checkpoint.NewLevelDBStore(cfg.StorePath())
	case storeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return checkpoint.NewRedisStore(client, cfg.Token)
	default:
		return nil, fmt.Errorf("unknown checkpoint store backend %q", cfg.StoreBackend)
	}
}

// buildObserver composes the per-step callback: a progress log line, plus
// publication of the JSON-encoded event to Kafka when brokers are configured.
// Publish failures are logged, never fatal to the crawl.
func buildObserver(cfg *Config, sugar *zap.SugaredLogger) (crawler.Observer, func(), error) {
	var publisher queue.Publisher
	if cfg.KafkaBrokers != "" {
		p, err := queue.NewKafkaPublisher(&confluentKafka.ConfigMap{
			"bootstrap.servers": cfg.KafkaBrokers,
			"acks":              "all",
		}, sugar)
		if err != nil {
			return nil, nil, fmt.Errorf("create step publisher: %w", err)
		}
		publisher = p
	}

	observer := func(event crawler.StepEvent, _ *graph.Node) {
		sugar.Infow("step resolved",
			"depth", event.Depth,
			"total_nodes", event.TotalNodes,
			"frontier", event.FrontierSize,
			"resumed", event.Resumed,
		)
		if publisher == nil {
			return
		}

		value, err := json.Marshal(event)
		if err != nil {
			sugar.Warnw("encode step event failed", "depth", event.Depth, "error", err)
			return
		}
		publishCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = publisher.Publish(publishCtx, queue.Msg{
			Topic: cfg.KafkaTopic,
			Key:   []byte(event.Token.Address),
			Value: value,
		})
		if err != nil {
			sugar.Warnw("publish step event failed", "depth", event.Depth, "error", err)
		}
	}

	closeFn := func() {
		if publisher == nil {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		publisher.Close(closeCtx)
	}

	return observer, closeFn, nil
}

// showAction summarizes the checkpoints of a crawl from disk only.
func showAction(c *cli.Context) error {
	cfg := &Config{
		Token:         c.String("token"),
		CheckpointDir: c.String("checkpoint-dir"),
		StoreBackend:  storeFile,
	}

	store, err := checkpoint.NewFileStore(cfg.StorePath())
	if err != nil {
		return err
	}

	found := false
	for depth := 0; ; depth++ {
		exists, err := store.Exists(c.Context, depth)
		if err != nil {
			return err
		}
		if !exists {
			break
		}
		root, frontier, err := store.Read(c.Context, depth)
		if err != nil {
			return err
		}
		found = true
		fmt.Printf("depth %d: %d distinct nodes, %d total, frontier %d\n",
			depth, root.DistinctCount(), root.Size(), len(frontier))
	}
	if !found {
		return fmt.Errorf("no checkpoints for token %s under %s", cfg.Token, cfg.StorePath())
	}
	return nil
}

// removeAction deletes a crawl's checkpoint directory.
func removeAction(c *cli.Context) error {
	cfg := &Config{
		Token:         c.String("token"),
		CheckpointDir: c.String("checkpoint-dir"),
	}

	path := cfg.StorePath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no checkpoints for token %s under %s", cfg.Token, path)
		}
		return err
	}

	if !c.Bool("force") {
		fmt.Printf("would remove %s (re-run with --force to delete)\n", path)
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	fmt.Printf("removed %s\n", path)
	return nil
}
