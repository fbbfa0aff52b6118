package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/hupe1980/booktrader"
	"github.com/hupe1980/booktrader/transport/ws"
)

var (
	idFlag = cli.StringFlag{
		Name:  "id",
		Usage: "Agent id; overrides agent.id",
	}
	hubURLFlag = cli.StringFlag{
		Name:  "hub",
		Usage: "Hub websocket URL; overrides hub.url",
	}

	agentCommand = cli.Command{
		Action:      runAgent,
		Name:        "agent",
		Usage:       "Run one trader connected to a hub",
		Flags:       []cli.Flag{idFlag, hubURLFlag},
		Description: `The agent command connects to the hub, fetches its account from the settlement service and trades until interrupted.`,
	}
)

func runAgent(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if id := c.String(idFlag.Name); id != "" {
		cfg.Agent.ID = id
	}
	if u := c.String(hubURLFlag.Name); u != "" {
		cfg.Hub.URL = u
	}
	if cfg.Agent.ID == "" {
		return errors.New("agent: an id is required (--id or agent.id)")
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ws.Dial(ctx, cfg.Hub.URL, cfg.Agent.ID, cfg.Agent.Roles, func(o *ws.ClientOptions) { o.Logger = logger })
	if err != nil {
		return err
	}
	defer client.Close()

	tr, err := booktrader.New(client, client, nil, traderOptions(cfg), func(o *booktrader.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	if err := tr.Run(ctx); err != nil {
		return err
	}

	snap := tr.Snapshot()
	logger.Info("final state", "books", len(snap.Inventory), "money", snap.Money.String())
	return nil
}
