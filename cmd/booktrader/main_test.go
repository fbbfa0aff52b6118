package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/booktrader"
	"github.com/hupe1980/booktrader/config"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
	"github.com/hupe1980/booktrader/transport"
)

func scenario() []config.AgentSeed {
	return []config.AgentSeed{
		{ID: "alice", Money: 100, Goals: []config.GoalSeed{{Book: "Dune", Value: 90}}},
		{ID: "bob", Money: 20, Books: []string{"Dune"}},
	}
}

func TestOpenLedger_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario = scenario()

	l, err := openLedger(context.Background(), cfg, logging.NoOpLogger{})
	require.NoError(t, err)
	defer l.Close()

	bob, err := l.FetchAgentSnapshot(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, bob.Inventory, 1)
	assert.NotEmpty(t, bob.Inventory[0].ID)
}

func TestOpenLedger_SqliteKeepsExistingAccounts(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Scenario = scenario()
	cfg.Ledger = config.LedgerConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "ledger.db")}

	l, err := openLedger(ctx, cfg, logging.NoOpLogger{})
	require.NoError(t, err)
	first, err := l.FetchAgentSnapshot(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = openLedger(ctx, cfg, logging.NoOpLogger{})
	require.NoError(t, err)
	defer l.Close()
	again, err := l.FetchAgentSnapshot(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, first.Inventory, again.Inventory)
}

func TestReport(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario = scenario()
	l, err := openLedger(context.Background(), cfg, logging.NoOpLogger{})
	require.NoError(t, err)

	net := transport.NewNetwork()
	ep, err := net.Join("alice", core.RoleTrading)
	require.NoError(t, err)
	tr, err := booktrader.New(ep, net, l, traderOptions(cfg))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report(&buf, []*booktrader.Trader{tr}, l))
	assert.Contains(t, buf.String(), "AGENT")
	assert.Contains(t, buf.String(), "alice")
	assert.Contains(t, buf.String(), "100.00")
	assert.Contains(t, buf.String(), "Dune")
}

func TestReport_OpenGoalsAreTheUnsatisfiedOnes(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario = []config.AgentSeed{{
		ID:    "carol",
		Money: 10,
		Books: []string{"Emma"},
		Goals: []config.GoalSeed{{Book: "Emma", Value: 40}, {Book: "Dune", Value: 90}},
	}}
	l, err := openLedger(context.Background(), cfg, logging.NoOpLogger{})
	require.NoError(t, err)
	defer l.Close()

	net := transport.NewNetwork()
	ep, err := net.Join("carol", core.RoleTrading)
	require.NoError(t, err)
	tr, err := booktrader.New(ep, net, l, traderOptions(cfg))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report(&buf, []*booktrader.Trader{tr}, l))

	var row []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "carol") {
			row = strings.Fields(line)
		}
	}
	require.Len(t, row, 7)
	assert.Equal(t, "Emma", row[2])
	assert.Equal(t, "Dune", row[3])
}
