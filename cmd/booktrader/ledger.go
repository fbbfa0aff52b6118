package main

import (
	"context"
	"fmt"

	"github.com/hupe1980/booktrader/config"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/ledger"
	"github.com/hupe1980/booktrader/ledger/sqlite"
	"github.com/hupe1980/booktrader/logging"
)

type seededLedger interface {
	core.SettlementAuthority
	Close() error
}

type memoryLedger struct{ *ledger.InMemoryLedger }

func (memoryLedger) Close() error { return nil }

// openLedger opens the configured backend and seeds accounts for every
// scenario agent that does not have one yet.
func openLedger(ctx context.Context, cfg config.Config, logger logging.Logger) (seededLedger, error) {
	withLogger := func(o *ledger.Options) { o.Logger = logger }

	switch cfg.Ledger.Backend {
	case "sqlite":
		l, err := sqlite.Open(cfg.Ledger.Path, withLogger)
		if err != nil {
			return nil, err
		}
		existing, err := l.Agents(ctx)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		have := make(map[string]bool, len(existing))
		for _, id := range existing {
			have[id] = true
		}
		for _, seed := range cfg.Scenario {
			if have[seed.ID] {
				continue
			}
			if _, err := l.OpenAccount(ctx, seed.Snapshot()); err != nil {
				_ = l.Close()
				return nil, err
			}
		}
		return l, nil
	default:
		l := ledger.NewInMemoryLedger(withLogger)
		for _, seed := range cfg.Scenario {
			if _, err := l.Open(seed.Snapshot()); err != nil {
				return nil, fmt.Errorf("seed %s: %w", seed.ID, err)
			}
		}
		return memoryLedger{l}, nil
	}
}
