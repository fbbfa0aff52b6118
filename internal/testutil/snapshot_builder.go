package testutil

import (
	"github.com/shopspring/decimal"

	"github.com/hupe1980/booktrader/core"
)

// SnapshotBuilder helps construct agent snapshots with fluent chaining.
// Example:
//
//	snap := NewSnapshotBuilder("buyer").Money(50).Goal("Dune", 80).Build()
type SnapshotBuilder struct {
	snap core.Snapshot
}

// NewSnapshotBuilder creates a builder for the given agent with no money.
func NewSnapshotBuilder(agentID string) *SnapshotBuilder {
	return &SnapshotBuilder{snap: core.Snapshot{AgentID: agentID, Money: decimal.Zero}}
}

// Money sets the balance (chainable).
func (b *SnapshotBuilder) Money(v int64) *SnapshotBuilder {
	b.snap.Money = decimal.NewFromInt(v)
	return b
}

// Book adds an owned book; the instance id is derived from the name and
// position so tests stay deterministic (chainable).
func (b *SnapshotBuilder) Book(name string) *SnapshotBuilder {
	id := name + "-" + string(rune('a'+len(b.snap.Inventory)))
	b.snap.Inventory = append(b.snap.Inventory, core.Book{Name: name, ID: id})
	return b
}

// BookWithID adds an owned book with an explicit instance id (chainable).
func (b *SnapshotBuilder) BookWithID(name, id string) *SnapshotBuilder {
	b.snap.Inventory = append(b.snap.Inventory, core.Book{Name: name, ID: id})
	return b
}

// Goal adds a goal (chainable).
func (b *SnapshotBuilder) Goal(book string, value int64) *SnapshotBuilder {
	b.snap.Goals = append(b.snap.Goals, core.Goal{Book: book, Value: decimal.NewFromInt(value)})
	return b
}

// Build returns a copy of the snapshot.
func (b *SnapshotBuilder) Build() core.Snapshot { return b.snap.Clone() }

// Catalog returns the price list used throughout the tests:
// Dune 100, Foundation 50, Emma 35, Ulysses 120.
func Catalog() core.Catalog {
	return core.Catalog{
		"Dune":       decimal.NewFromInt(100),
		"Foundation": decimal.NewFromInt(50),
		"Emma":       decimal.NewFromInt(35),
		"Ulysses":    decimal.NewFromInt(120),
	}
}

// Dec is shorthand for decimal.NewFromInt.
func Dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
