package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// runFlags returns all CLI flags for the run command.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:     "token",
			Aliases:  []string{"t"},
			Usage:    "The address of the token whose transfer graph is crawled",
			EnvVars:  []string{"TOKEN_ADDRESS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "checkpoint-dir",
			Aliases: []string{"d"},
			Usage:   "Base directory for checkpoints; the token address is appended as a subdirectory",
			EnvVars: []string{"CHECKPOINT_DIR"},
			Value:   "data",
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Checkpoint store backend (file, leveldb or redis)",
			EnvVars: []string{"CHECKPOINT_STORE"},
			Value:   "file",
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the redis store backend",
			EnvVars: []string{"REDIS_ADDR"},
			Value:   "localhost:6379",
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Aliases: []string{"s"},
			Usage:   "Number of breadth-first depths to advance",
			EnvVars: []string{"MAX_STEPS"},
			Value:   6,
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "Transfer fetch workers per depth; 1 keeps fetching strictly sequential",
			EnvVars: []string{"CONCURRENCY"},
			Value:   1,
		},
		&cli.DurationFlag{
			Name:    "request-delay",
			Usage:   "Minimum spacing between API requests",
			EnvVars: []string{"REQUEST_DELAY"},
			Value:   200 * time.Millisecond,
		},
		&cli.DurationFlag{
			Name:    "window",
			Usage:   "Fetch window half-width around the token's minting time",
			EnvVars: []string{"FETCH_WINDOW"},
			Value:   24 * time.Hour,
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka bootstrap servers for step event publication; empty disables publishing",
			EnvVars: []string{"KAFKA_BROKERS"},
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Usage:   "Kafka topic for step events",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "crawl-steps",
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host interface for the Prometheus scrape server",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "0.0.0.0",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for the Prometheus scrape server; 0 disables it",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label applied to all metrics",
			EnvVars: []string{"ENVIRONMENT"},
		},
	}
}

// showFlags returns all CLI flags for the show command.
func showFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "token",
			Aliases:  []string{"t"},
			Usage:    "The token address of the crawl to summarize",
			EnvVars:  []string{"TOKEN_ADDRESS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "checkpoint-dir",
			Aliases: []string{"d"},
			Usage:   "Base directory for checkpoints",
			EnvVars: []string{"CHECKPOINT_DIR"},
			Value:   "data",
		},
	}
}

// removeFlags returns all CLI flags for the remove command.
func removeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "token",
			Aliases:  []string{"t"},
			Usage:    "The token address of the crawl to remove",
			EnvVars:  []string{"TOKEN_ADDRESS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "checkpoint-dir",
			Aliases: []string{"d"},
			Usage:   "Base directory for checkpoints",
			EnvVars: []string{"CHECKPOINT_DIR"},
			Value:   "data",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Actually delete; without it the command only reports what would be removed",
		},
	}
}
