// Command booktrader runs autonomous book trading agents.
//
//	booktrader simulate --duration 30s     in-process market from the config scenario
//	booktrader hub                         websocket hub plus settlement ledger
//	booktrader agent --id alice            one trader connected to a hub
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/hupe1980/booktrader"
	"github.com/hupe1980/booktrader/config"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "YAML configuration file",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level (debug, info, warn, error); overrides the config file",
	}
	logFormatFlag = cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format (json, text); overrides the config file",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "booktrader"
	app.Usage = "autonomous book trading agents negotiating over contract-net"
	app.Flags = []cli.Flag{configFileFlag, logLevelFlag, logFormatFlag}
	app.Commands = []cli.Command{simulateCommand, hubCommand, agentCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if lvl := ctx.GlobalString(logLevelFlag.Name); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if f := ctx.GlobalString(logFormatFlag.Name); f != "" {
		cfg.Logging.Format = f
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func traderOptions(cfg config.Config) func(o *booktrader.Options) {
	return func(o *booktrader.Options) {
		o.Catalog = cfg.Prices()
		o.Valuation = cfg.ValuationConfig()
		o.ScanInterval = cfg.Negotiation.ScanInterval
		o.ResponseTimeout = cfg.Negotiation.ResponseTimeout
		o.DecisionTimeout = cfg.Negotiation.DecisionTimeout
		o.ConfirmationTimeout = cfg.Negotiation.ConfirmationTimeout
		o.SettlementTimeout = cfg.Negotiation.SettlementTimeout
	}
}
