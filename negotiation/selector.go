package negotiation

import (
	"github.com/shopspring/decimal"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/valuation"
)

// Proposal is one responder's answer collected by the initiator.
type Proposal struct {
	Proposer string
	Set      core.ProposalSet
}

// Choice is the offer the initiator settles on.
type Choice struct {
	Proposer string
	// Offer carries the requested books resolved to the buyer's own instances.
	Offer core.Offer
	// Index is the position of the offer inside the proposer's set.
	Index    int
	WillSell []core.Book
	Utility  decimal.Decimal
}

// Feasible resolves the offer's requested books against the current
// inventory and checks the buyer can pay. The returned offer carries
// concrete instance ids.
func Feasible(offer core.Offer, snap core.Snapshot) (core.Offer, bool) {
	if offer.Money.IsNegative() || offer.Money.GreaterThan(snap.Money) {
		return core.Offer{}, false
	}
	books, missing := resolve(core.BookNames(offer.Books), snap.Inventory)
	if len(missing) > 0 {
		return core.Offer{}, false
	}
	return core.Offer{Books: books, Money: offer.Money}, true
}

// Utility is what the buyer gains from receiving willSell minus what it
// gives up: the offer's money plus the sell value of the requested books.
func Utility(engine *valuation.Engine, snap core.Snapshot, willSell []core.Book, resolved core.Offer) (decimal.Decimal, error) {
	gain, err := engine.SumBuyValue(willSell, snap.Goals, snap.Inventory)
	if err != nil {
		return decimal.Zero, err
	}
	given, err := engine.SumSellValue(resolved.Books, snap.Goals, snap.Inventory)
	if err != nil {
		return decimal.Zero, err
	}
	return gain.Sub(resolved.Money.Add(given)), nil
}

// Select picks the feasible offer with the highest utility across all
// proposals, in arrival order. Only a strictly higher utility replaces the
// current best, so ties keep the earliest offer. ok is false when nothing
// is feasible or the best utility is not positive. Offers naming books
// outside the catalog count as infeasible.
func Select(engine *valuation.Engine, snap core.Snapshot, proposals []Proposal) (best Choice, ok bool) {
	found := false
	for _, p := range proposals {
		for i, offer := range p.Set.Offers {
			resolved, feasible := Feasible(offer, snap)
			if !feasible {
				continue
			}
			u, err := Utility(engine, snap, p.Set.WillSell, resolved)
			if err != nil {
				continue
			}
			if !found || u.GreaterThan(best.Utility) {
				best = Choice{Proposer: p.Proposer, Offer: resolved, Index: i, WillSell: p.Set.WillSell, Utility: u}
				found = true
			}
		}
	}
	if !found || !best.Utility.IsPositive() {
		return Choice{}, false
	}
	return best, true
}
