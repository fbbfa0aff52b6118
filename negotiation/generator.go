package negotiation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/valuation"
)

// Generate builds the proposal set a seller answers a request with.
//
// Every requested name must resolve to a distinct book in the seller's
// inventory, otherwise the result wraps core.ErrInfeasible. The first offer
// asks for money only: the summed sell value of the matched books. One more
// offer follows per unsatisfied goal of the seller, asking for that goal's
// book and max(0, baseline - goal value) money.
func Generate(engine *valuation.Engine, snap core.Snapshot, names []string) (core.ProposalSet, error) {
	if len(names) == 0 {
		return core.ProposalSet{}, fmt.Errorf("%w: empty request", core.ErrInfeasible)
	}

	willSell, missing := resolve(names, snap.Inventory)
	if len(missing) > 0 {
		return core.ProposalSet{}, fmt.Errorf("%w: not holding %v", core.ErrInfeasible, missing)
	}

	baseline, err := engine.SumSellValue(willSell, snap.Goals, snap.Inventory)
	if err != nil {
		return core.ProposalSet{}, err
	}
	baseline = decimal.Max(baseline, decimal.Zero)

	offers := []core.Offer{{Money: baseline}}
	for _, g := range valuation.UnsatisfiedGoals(snap.Goals, snap.Inventory) {
		offers = append(offers, core.Offer{
			Books: []core.Book{{Name: g.Book}},
			Money: decimal.Max(baseline.Sub(g.Value), decimal.Zero),
		})
	}

	return core.ProposalSet{WillSell: willSell, Offers: offers}, nil
}

// resolve maps each name to a distinct inventory book, first match wins.
// Names without a match are returned in missing.
func resolve(names []string, inventory []core.Book) (matched []core.Book, missing []string) {
	used := make([]bool, len(inventory))
	for _, name := range names {
		found := false
		for i, b := range inventory {
			if !used[i] && b.Name == name {
				used[i] = true
				matched = append(matched, b)
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return matched, missing
}
