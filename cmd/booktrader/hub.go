package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/ledger"
	"github.com/hupe1980/booktrader/transport/ws"
)

var (
	addrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "Listen address; overrides hub.addr",
	}

	hubCommand = cli.Command{
		Action:      runHub,
		Name:        "hub",
		Usage:       "Serve the websocket hub and the settlement ledger",
		Flags:       []cli.Flag{addrFlag},
		Description: `The hub command relays envelopes between connected agents at /ws and registers the configured ledger as the settlement service.`,
	}
)

func runHub(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if a := c.String(addrFlag.Name); a != "" {
		cfg.Hub.Addr = a
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authority, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer authority.Close()

	hub := ws.NewHub(func(o *ws.HubOptions) { o.Logger = logger })
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	ln, err := net.Listen("tcp", cfg.Hub.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	logger.Info("hub listening", "addr", ln.Addr().String())

	// The ledger joins its own hub as the settlement service.
	client, err := ws.Dial(ctx, fmt.Sprintf("ws://%s/ws", ln.Addr().String()), ledgerAgentID, []string{core.RoleSettlement},
		func(o *ws.ClientOptions) { o.Logger = logger })
	if err != nil {
		_ = srv.Close()
		return err
	}
	defer client.Close()
	d, err := dispatch.New(client, func(o *dispatch.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	ledger.NewService(authority, func(o *ledger.ServiceOptions) {
		o.Logger = logger
		o.Timeout = cfg.Negotiation.SettlementTimeout
	}).Register(d)
	go func() { _ = d.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
