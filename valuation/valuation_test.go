package valuation

import (
	"testing"

	"github.com/hupe1980/booktrader/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

var catalog = core.Catalog{
	"Dune":       dec(100),
	"Foundation": dec(50),
	"Emma":       dec(35),
}

func fixedJitter(v int) func(o *Options) {
	return func(o *Options) { o.Jitter = func(int) int { return v } }
}

func TestSellValue(t *testing.T) {
	e := New(catalog, fixedJitter(4))
	goals := []core.Goal{{Book: "Dune", Value: dec(80)}}

	t.Run("non-goal book is liquidated", func(t *testing.T) {
		v, err := e.SellValue(core.Book{Name: "Foundation"}, goals, nil)
		require.NoError(t, err)
		assert.True(t, v.Equal(dec(30)), v.String())
	})

	t.Run("unsatisfied goal book demands premium", func(t *testing.T) {
		v, err := e.SellValue(core.Book{Name: "Dune"}, goals, nil)
		require.NoError(t, err)
		assert.True(t, v.Equal(dec(85)), v.String())
	})

	t.Run("satisfied goal book is surplus", func(t *testing.T) {
		v, err := e.SellValue(core.Book{Name: "Dune"}, goals, []core.Book{{Name: "Dune", ID: "1"}})
		require.NoError(t, err)
		assert.True(t, v.Equal(dec(80)), v.String())
	})

	t.Run("unknown book", func(t *testing.T) {
		_, err := e.SellValue(core.Book{Name: "Nope"}, goals, nil)
		assert.ErrorIs(t, err, core.ErrUnknownBook)
	})
}

func TestSellValue_BonusWithinBounds(t *testing.T) {
	e := New(catalog)
	goals := []core.Goal{{Book: "Emma", Value: dec(60)}}
	for i := 0; i < 200; i++ {
		v, err := e.SellValue(core.Book{Name: "Emma"}, goals, nil)
		require.NoError(t, err)
		assert.True(t, v.GreaterThanOrEqual(dec(61)) && v.LessThanOrEqual(dec(70)), v.String())
	}
}

func TestBuyValue(t *testing.T) {
	e := New(catalog)
	goals := []core.Goal{{Book: "Dune", Value: dec(80)}}

	v, err := e.BuyValue(core.Book{Name: "Dune"}, goals, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec(70)), v.String())

	v, err = e.BuyValue(core.Book{Name: "Foundation"}, goals, nil)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec(5)), v.String())

	v, err = e.BuyValue(core.Book{Name: "Dune"}, goals, []core.Book{{Name: "Dune"}})
	require.NoError(t, err)
	assert.True(t, v.Equal(dec(10)), v.String())

	_, err = e.BuyValue(core.Book{Name: "Nope"}, goals, nil)
	assert.ErrorIs(t, err, core.ErrUnknownBook)
}

func TestNonGoalValuesOverWholeCatalog(t *testing.T) {
	e := New(catalog)
	for name, price := range catalog {
		sell, err := e.SellValue(core.Book{Name: name}, nil, nil)
		require.NoError(t, err)
		assert.True(t, sell.Equal(price.Sub(dec(20))), name)

		buy, err := e.BuyValue(core.Book{Name: name}, nil, nil)
		require.NoError(t, err)
		assert.True(t, buy.Equal(price.Div(dec(10))), name)
	}
}

func TestUnsatisfiedGoals(t *testing.T) {
	goals := []core.Goal{
		{Book: "Dune", Value: dec(80)},
		{Book: "Emma", Value: dec(40)},
		{Book: "Foundation", Value: dec(60)},
		{Book: "Emma", Value: dec(45)},
	}
	inventory := []core.Book{{Name: "Foundation", ID: "f1"}}

	got := UnsatisfiedGoals(goals, inventory)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Dune", "Emma", "Emma"}, []string{got[0].Book, got[1].Book, got[2].Book})
	for _, g := range got {
		assert.NotEqual(t, "Foundation", g.Book)
	}

	assert.Equal(t, got, UnsatisfiedGoals(goals, inventory), "idempotent on unchanged inputs")
	assert.Empty(t, UnsatisfiedGoals(nil, inventory))
}

func TestSums(t *testing.T) {
	e := New(catalog)
	books := []core.Book{{Name: "Dune"}, {Name: "Emma"}}

	sell, err := e.SumSellValue(books, nil, nil)
	require.NoError(t, err)
	assert.True(t, sell.Equal(dec(95)), sell.String())

	buy, err := e.SumBuyValue(books, nil, nil)
	require.NoError(t, err)
	assert.True(t, buy.Equal(decimal.RequireFromString("13.5")), buy.String())

	_, err = e.SumBuyValue([]core.Book{{Name: "Nope"}}, nil, nil)
	assert.ErrorIs(t, err, core.ErrUnknownBook)
}
