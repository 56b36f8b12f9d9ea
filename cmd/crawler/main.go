package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Pick up SOLSCAN_API_KEY and friends from a local .env when present.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "crawler",
		Usage: "Crawl a token's transfer graph from its minting address",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the crawl, resuming from existing checkpoints",
				Flags:  runFlags(),
				Action: runAction,
			},
			{
				Name:   "show",
				Usage:  "Summarize the checkpoints of a crawl without network access",
				Flags:  showFlags(),
				Action: showAction,
			},
			{
				Name:   "remove",
				Usage:  "Delete a crawl's checkpoints",
				Flags:  removeFlags(),
				Action: removeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
