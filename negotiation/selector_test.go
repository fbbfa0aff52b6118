package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/internal/testutil"
)

var duneFromB = []core.Book{{Name: "Dune", ID: "Dune-b1"}}

func proposal(proposer string, offers ...core.Offer) Proposal {
	return Proposal{Proposer: proposer, Set: core.ProposalSet{WillSell: duneFromB, Offers: offers}}
}

func money(v int64) core.Offer { return core.Offer{Money: testutil.Dec(v)} }

func TestSelect_MoneyExceedingBalanceIsInfeasible(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(50).Goal("Dune", 80).Build()

	_, ok := Select(fixedEngine(), buyer, []Proposal{proposal("b", money(80))})
	assert.False(t, ok)
}

func TestSelect_LiquidationOfferAccepted(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(50).Goal("Dune", 80).Build()

	choice, ok := Select(fixedEngine(), buyer, []Proposal{proposal("b", money(80), money(40))})
	require.True(t, ok)
	assert.Equal(t, "b", choice.Proposer)
	assert.Equal(t, 1, choice.Index)
	assert.True(t, choice.Utility.Equal(testutil.Dec(30)))
	assert.Equal(t, duneFromB, choice.WillSell)
}

func TestSelect_BookForBookAlternative(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(50).Goal("Dune", 80).Book("Foundation").Build()
	swap := core.Offer{Books: []core.Book{{Name: "Foundation"}}, Money: testutil.Dec(0)}

	// buyValue(Dune)=70; money-only: 70-40=30; swap: 70-(0+sellValue(Foundation)=30)=40.
	choice, ok := Select(fixedEngine(), buyer, []Proposal{proposal("b", money(40), swap)})
	require.True(t, ok)
	assert.Equal(t, 1, choice.Index)
	assert.True(t, choice.Utility.Equal(testutil.Dec(40)))
	assert.Equal(t, []core.Book{{Name: "Foundation", ID: "Foundation-a"}}, choice.Offer.Books)
}

func TestSelect_TiesKeepEarliest(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(50).Goal("Dune", 80).Book("Foundation").Build()
	swap := core.Offer{Books: []core.Book{{Name: "Foundation"}}, Money: testutil.Dec(10)}

	choice, ok := Select(fixedEngine(), buyer, []Proposal{proposal("b", money(40), swap)})
	require.True(t, ok)
	assert.Equal(t, 0, choice.Index)

	choice, ok = Select(fixedEngine(), buyer, []Proposal{proposal("b", money(40)), proposal("c", money(40))})
	require.True(t, ok)
	assert.Equal(t, "b", choice.Proposer)
}

func TestSelect_NonPositiveUtilityRejected(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(100).Goal("Dune", 80).Build()

	_, ok := Select(fixedEngine(), buyer, []Proposal{proposal("b", money(70))})
	assert.False(t, ok, "zero utility")

	_, ok = Select(fixedEngine(), buyer, []Proposal{proposal("b", money(90))})
	assert.False(t, ok, "negative utility")
}

func TestSelect_InfeasibleOffersNeverChosen(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(50).Goal("Dune", 80).Build()
	wantsEmma := core.Offer{Books: []core.Book{{Name: "Emma"}}, Money: testutil.Dec(0)}
	unknown := Proposal{Proposer: "c", Set: core.ProposalSet{
		WillSell: []core.Book{{Name: "Necronomicon", ID: "n1"}},
		Offers:   []core.Offer{money(1)},
	}}

	choice, ok := Select(fixedEngine(), buyer, []Proposal{proposal("b", wantsEmma, money(45)), unknown})
	require.True(t, ok)
	assert.Equal(t, "b", choice.Proposer)
	assert.Equal(t, 1, choice.Index)
}

func TestFeasible(t *testing.T) {
	buyer := testutil.NewSnapshotBuilder("a").Money(50).Book("Emma").Book("Emma").Build()

	resolved, ok := Feasible(core.Offer{Books: []core.Book{{Name: "Emma"}, {Name: "Emma"}}, Money: testutil.Dec(50)}, buyer)
	require.True(t, ok)
	assert.Equal(t, []core.Book{{Name: "Emma", ID: "Emma-a"}, {Name: "Emma", ID: "Emma-b"}}, resolved.Books)

	_, ok = Feasible(core.Offer{Books: []core.Book{{Name: "Emma"}, {Name: "Emma"}, {Name: "Emma"}}}, buyer)
	assert.False(t, ok)

	_, ok = Feasible(money(51), buyer)
	assert.False(t, ok)
}
