// ragctl is the admin CLI for spec.md §6's admin surface. Its worker
// concurrency and tenant/global reset commands validate their arguments
// and print operator guidance; they change no stored or live state. It is
// built the way
// poiesic-memorit's cmd/memorit tool is (urfave/cli/v2 commands each
// opening their own store connections directly, no running daemon
// required).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/store/meta"
	"github.com/ragline/ragline/internal/store/queue"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ragctl",
		Usage: "Admin operations for a ragline deployment",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Report whether the queue is reachable",
				Action: statusCommand,
			},
			{
				Name:  "worker",
				Usage: "Worker pool administration",
				Subcommands: []*cli.Command{
					{
						Name:   "set-concurrency",
						Usage:  "Print the env var change needed to adjust worker concurrency",
						Action: setConcurrencyCommand,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "concurrency", Required: true, Usage: "must be in [1,32]"},
						},
					},
				},
			},
			{
				Name:  "tenant",
				Usage: "Tenant administration",
				Subcommands: []*cli.Command{
					{
						Name:   "reset",
						Usage:  "Check the confirmation and print reset guidance for one tenant (deletes nothing)",
						Action: tenantResetCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "tenant", Required: true},
							&cli.StringFlag{Name: "confirm", Required: true, Usage: `must be exactly "RESET"`},
						},
					},
				},
			},
			{
				Name:   "reset-all",
				Usage:  "Check the confirmation and print global reset guidance (deletes nothing)",
				Action: globalResetCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "confirm", Required: true, Usage: `must be exactly "RESET ALL"`},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStores(c *cli.Context) (*config.Config, *meta.SQLiteStore, *queue.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	metaStore, err := meta.Open(cfg.MetaDBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("meta: %w", err)
	}
	q := queue.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.QueueName, cfg.ProgressChannel)
	return cfg, metaStore, q, nil
}

func statusCommand(c *cli.Context) error {
	_, metaStore, q, err := openStores(c)
	if err != nil {
		return err
	}
	defer metaStore.Close()
	defer q.Close()

	ctx := context.Background()
	if err := q.Ping(ctx); err != nil {
		fmt.Printf("queue: unreachable (%v)\n", err)
	} else {
		fmt.Println("queue: reachable")
	}
	return nil
}

func setConcurrencyCommand(c *cli.Context) error {
	n := c.Int("concurrency")
	if n < 1 || n > 32 {
		return fmt.Errorf("concurrency must be in [1,32], got %d", n)
	}
	// The worker process reads WORKER_CONCURRENCY at startup; no HTTP
	// endpoint exposes Worker.SetConcurrency, so a change takes a restart.
	fmt.Printf("set WORKER_CONCURRENCY=%d and restart the worker\n", n)
	return nil
}

func tenantResetCommand(c *cli.Context) error {
	if c.String("confirm") != "RESET" {
		return fmt.Errorf(`confirm must be exactly "RESET"`)
	}
	tenant := c.String("tenant")

	_, metaStore, q, err := openStores(c)
	if err != nil {
		return err
	}
	defer metaStore.Close()
	defer q.Close()

	fmt.Printf("tenant %q reset requested; drop its rows via the MetaStore, VectorStore, and GraphStore before re-enabling ingestion\n", tenant)
	return nil
}

func globalResetCommand(c *cli.Context) error {
	if c.String("confirm") != "RESET ALL" {
		return fmt.Errorf(`confirm must be exactly "RESET ALL"`)
	}

	_, metaStore, q, err := openStores(c)
	if err != nil {
		return err
	}
	defer metaStore.Close()
	defer q.Close()

	fmt.Println("global reset requested; this is a destructive operation left to an operator runbook, not an unattended CLI action")
	return nil
}
