package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/hupe1980/booktrader"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/ledger"
	"github.com/hupe1980/booktrader/transport"
	"github.com/hupe1980/booktrader/valuation"
)

const ledgerAgentID = "ledger"

var (
	durationFlag = cli.DurationFlag{
		Name:  "duration",
		Usage: "How long the simulated market runs",
		Value: 10 * time.Second,
	}

	simulateCommand = cli.Command{
		Action:      simulate,
		Name:        "simulate",
		Usage:       "Run the configured scenario in one process",
		Flags:       []cli.Flag{durationFlag},
		Description: `The simulate command starts a settlement ledger and one trader per scenario agent on an in-process network, lets them trade for --duration and prints the final holdings.`,
	}
)

func simulate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if len(cfg.Scenario) == 0 {
		return fmt.Errorf("simulate: the configuration has no scenario agents")
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Duration(durationFlag.Name))
	defer cancel()

	authority, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer authority.Close()

	net := transport.NewNetwork()
	g, gctx := errgroup.WithContext(ctx)

	svcEP, err := net.Join(ledgerAgentID, core.RoleSettlement)
	if err != nil {
		return err
	}
	svcD, err := dispatch.New(svcEP, func(o *dispatch.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	ledger.NewService(authority, func(o *ledger.ServiceOptions) {
		o.Logger = logger
		o.Timeout = cfg.Negotiation.SettlementTimeout
	}).Register(svcD)
	g.Go(func() error { return svcD.Run(gctx) })

	traders := make([]*booktrader.Trader, 0, len(cfg.Scenario))
	for _, seed := range cfg.Scenario {
		ep, err := net.Join(seed.ID, core.RoleTrading)
		if err != nil {
			return err
		}
		tr, err := booktrader.New(ep, net, nil, traderOptions(cfg), func(o *booktrader.Options) { o.Logger = logger })
		if err != nil {
			return err
		}
		traders = append(traders, tr)
		g.Go(func() error { return tr.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return report(os.Stdout, traders, authority)
}

func report(w io.Writer, traders []*booktrader.Trader, authority core.SettlementAuthority) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tMONEY\tBOOKS\tOPEN GOALS\tBOUGHT\tSOLD\tFAILED")
	for _, tr := range traders {
		snap, err := authority.FetchAgentSnapshot(context.Background(), tr.ID())
		if err != nil {
			return err
		}
		books := core.BookNames(snap.Inventory)
		sort.Strings(books)
		var open []string
		for _, g := range valuation.UnsatisfiedGoals(snap.Goals, snap.Inventory) {
			open = append(open, g.Book)
		}
		st := tr.Stats()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			tr.ID(), snap.Money.StringFixed(2), strings.Join(books, ","), strings.Join(open, ","),
			st.Bought, st.Sold, st.Failed)
	}
	return tw.Flush()
}
