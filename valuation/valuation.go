// Package valuation computes an agent's subjective buy and sell value for a
// book given its goals and inventory.
package valuation

import (
	"math/rand"

	"github.com/hupe1980/booktrader/core"
	"github.com/shopspring/decimal"
)

// Config holds the valuation constants.
type Config struct {
	// SellDiscount is subtracted from the catalog price of surplus stock.
	SellDiscount decimal.Decimal
	// BuyMarkdown is subtracted from a goal's value when buying toward it.
	BuyMarkdown decimal.Decimal
	// BuyDivisor divides the catalog price of goal-irrelevant books.
	BuyDivisor decimal.Decimal
	// MaxSellBonus bounds the random premium (1..MaxSellBonus) demanded for
	// a book the agent still needs.
	MaxSellBonus int
}

// DefaultConfig mirrors the classic constants: discount 20, markdown 10,
// divisor 10, bonus 1..10.
var DefaultConfig = Config{
	SellDiscount: decimal.NewFromInt(20),
	BuyMarkdown:  decimal.NewFromInt(10),
	BuyDivisor:   decimal.NewFromInt(10),
	MaxSellBonus: 10,
}

// Engine evaluates books against a public catalog. It is safe for
// concurrent use; apart from the bounded jitter in SellValue it is pure.
type Engine struct {
	catalog core.Catalog
	cfg     Config
	jitter  func(n int) int
}

// Options configures an Engine.
type Options struct {
	Config Config
	// Jitter returns a value in [0, n). Defaults to math/rand.Intn.
	Jitter func(n int) int
}

// New creates an Engine over catalog.
func New(catalog core.Catalog, optFns ...func(o *Options)) *Engine {
	opts := Options{Config: DefaultConfig, Jitter: rand.Intn}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.MaxSellBonus < 1 {
		opts.Config.MaxSellBonus = 1
	}
	if opts.Config.BuyDivisor.IsZero() {
		opts.Config.BuyDivisor = DefaultConfig.BuyDivisor
	}
	return &Engine{catalog: catalog, cfg: opts.Config, jitter: opts.Jitter}
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() core.Catalog { return e.catalog }

// SellValue returns the money the agent demands to part with book. A book
// matching an unsatisfied goal costs goal value plus a bonus of
// 1..MaxSellBonus; anything else is priced at catalog price minus the
// discount. Unknown books yield core.ErrUnknownBook.
func (e *Engine) SellValue(book core.Book, goals []core.Goal, inventory []core.Book) (decimal.Decimal, error) {
	price, err := e.catalog.Price(book.Name)
	if err != nil {
		return decimal.Zero, err
	}
	if g, ok := matchUnsatisfied(book.Name, goals, inventory); ok {
		bonus := int64(e.jitter(e.cfg.MaxSellBonus) + 1)
		return g.Value.Add(decimal.NewFromInt(bonus)), nil
	}
	return price.Sub(e.cfg.SellDiscount), nil
}

// BuyValue returns the money the agent is willing to pay for book: goal
// value minus the markdown for a book matching an unsatisfied goal,
// catalog price divided by BuyDivisor otherwise.
func (e *Engine) BuyValue(book core.Book, goals []core.Goal, inventory []core.Book) (decimal.Decimal, error) {
	price, err := e.catalog.Price(book.Name)
	if err != nil {
		return decimal.Zero, err
	}
	if g, ok := matchUnsatisfied(book.Name, goals, inventory); ok {
		return g.Value.Sub(e.cfg.BuyMarkdown), nil
	}
	return price.Div(e.cfg.BuyDivisor), nil
}

// SumSellValue adds up SellValue over books.
func (e *Engine) SumSellValue(books []core.Book, goals []core.Goal, inventory []core.Book) (decimal.Decimal, error) {
	return e.sum(e.SellValue, books, goals, inventory)
}

// SumBuyValue adds up BuyValue over books.
func (e *Engine) SumBuyValue(books []core.Book, goals []core.Goal, inventory []core.Book) (decimal.Decimal, error) {
	return e.sum(e.BuyValue, books, goals, inventory)
}

func (e *Engine) sum(
	value func(core.Book, []core.Goal, []core.Book) (decimal.Decimal, error),
	books []core.Book,
	goals []core.Goal,
	inventory []core.Book,
) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, b := range books {
		v, err := value(b, goals, inventory)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// UnsatisfiedGoals returns the goals whose book name is absent from
// inventory, preserving goal order. Duplicate goals are kept.
func UnsatisfiedGoals(goals []core.Goal, inventory []core.Book) []core.Goal {
	held := make(map[string]struct{}, len(inventory))
	for _, b := range inventory {
		held[b.Name] = struct{}{}
	}
	out := make([]core.Goal, 0, len(goals))
	for _, g := range goals {
		if _, ok := held[g.Book]; !ok {
			out = append(out, g)
		}
	}
	return out
}

// matchUnsatisfied returns the last unsatisfied goal for name.
func matchUnsatisfied(name string, goals []core.Goal, inventory []core.Book) (core.Goal, bool) {
	var (
		match core.Goal
		found bool
	)
	for _, g := range UnsatisfiedGoals(goals, inventory) {
		if g.Book == name {
			match, found = g, true
		}
	}
	return match, found
}
