package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/booktrader/core"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_TradeAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)

	seller, err := l.OpenAccount(ctx, core.Snapshot{AgentID: "seller", Inventory: []core.Book{{Name: "Dune"}}})
	require.NoError(t, err)
	_, err = l.OpenAccount(ctx, core.Snapshot{
		AgentID: "buyer",
		Goals:   []core.Goal{{Book: "Dune", Value: decimal.NewFromInt(80)}},
		Money:   decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	dune := seller.Inventory[0]
	require.NotEmpty(t, dune.ID)

	_, err = l.SubmitTransaction(ctx, core.TransactionRequest{
		Sender: "seller", Receiver: "buyer", ConversationID: "c1",
		SendingBooks: []core.Book{dune}, ReceivingMoney: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	_, err = l.SubmitTransaction(ctx, core.TransactionRequest{
		Sender: "buyer", Receiver: "seller", ConversationID: "c1",
		SendingMoney: decimal.NewFromInt(40), ReceivingBooks: []core.Book{dune},
	})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	b, err := reopened.FetchAgentSnapshot(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, []core.Book{dune}, b.Inventory)
	assert.True(t, b.Money.Equal(decimal.NewFromInt(10)))
	assert.Len(t, b.Goals, 1)

	ids, err := reopened.Agents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer", "seller"}, ids)
}

func TestLedger_DuplicateAndDoubleSpend(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	seller, err := l.OpenAccount(ctx, core.Snapshot{AgentID: "seller", Inventory: []core.Book{{Name: "Dune"}}})
	require.NoError(t, err)
	for _, id := range []string{"b1", "b2"} {
		_, err := l.OpenAccount(ctx, core.Snapshot{AgentID: id, Money: decimal.NewFromInt(100)})
		require.NoError(t, err)
	}

	tx := core.TransactionRequest{
		Sender: "seller", Receiver: "b1", ConversationID: "c1",
		SendingBooks: seller.Inventory, ReceivingMoney: decimal.NewFromInt(40),
	}
	conf, err := l.SubmitTransaction(ctx, tx)
	require.NoError(t, err)
	assert.False(t, conf.Duplicate)

	conf, err = l.SubmitTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, conf.Duplicate)

	again := tx
	again.ConversationID = "c2"
	again.Receiver = "b2"
	_, err = l.SubmitTransaction(ctx, again)
	assert.ErrorIs(t, err, core.ErrSettlementFailure)
	assert.ErrorIs(t, err, core.ErrBookNotOwned)

	b2, err := l.FetchAgentSnapshot(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, b2.Inventory)
}

func TestLedger_UnknownAgent(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.FetchAgentSnapshot(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrUnknownAgent)
}
