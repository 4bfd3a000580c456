package market

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/native/fees"
	"nftmarket/native/nft"
)

const (
	testNow  int64 = 1_700_000_000
	day      int64 = 24 * 60 * 60
	fundings int64 = 1_000_000
)

type fixture struct {
	t          *testing.T
	engine     *Engine
	store      *mockStore
	registry   *nft.Registry
	collection *nft.Collection
	recorder   *events.Recorder
	now        int64

	market    [20]byte
	admin     [20]byte
	collector [20]byte
	contract  [20]byte
	alice     [20]byte
	bob       [20]byte
	carol     [20]byte
	dave      [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		store:     newMockStore(),
		registry:  nft.NewRegistry(),
		recorder:  &events.Recorder{},
		now:       testNow,
		market:    newTestAddress(0xEE),
		admin:     newTestAddress(0xAD),
		collector: newTestAddress(0xC0),
		contract:  newTestAddress(0x77),
		alice:     newTestAddress(0x01),
		bob:       newTestAddress(0x02),
		carol:     newTestAddress(0x03),
		dave:      newTestAddress(0x04),
	}
	collection, err := f.registry.Deploy(f.contract, "Test Collection")
	require.NoError(t, err)
	f.collection = collection

	f.engine = NewEngine(f.market)
	f.engine.SetState(f.store)
	f.engine.SetTokenResolver(RegistryResolver(f.registry))
	f.engine.SetEmitter(f.recorder)
	f.engine.SetNowFunc(func() int64 { return f.now })

	require.NoError(t, f.engine.Initialize(f.admin, fees.Schedule{Numerator: 25, Denominator: 1000, Collector: f.collector}))
	require.NoError(t, f.engine.RegisterToken(f.admin, f.contract))

	for _, addr := range [][20]byte{f.alice, f.bob, f.carol, f.dave} {
		f.store.setBalance(addr, fundings)
	}
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, f.collection.Mint(f.alice, big.NewInt(id)))
	}
	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.market, true))
	f.recorder.Reset()
	return f
}

func (f *fixture) ownerOf(id int64) [20]byte {
	f.t.Helper()
	owner, err := f.collection.OwnerOf(big.NewInt(id))
	require.NoError(f.t, err)
	return owner
}

func (f *fixture) balance(addr [20]byte) int64 {
	return f.store.balance(addr).Int64()
}

func (f *fixture) listFixed(id, price int64) *Order {
	f.t.Helper()
	order, err := f.engine.Create(f.alice, f.contract, big.NewInt(id), big.NewInt(price), big.NewInt(0), big.NewInt(0))
	require.NoError(f.t, err)
	return order
}

func (f *fixture) listAuction(id, buyPrice, startPrice, duration int64) *Order {
	f.t.Helper()
	order, err := f.engine.Create(f.alice, f.contract, big.NewInt(id), big.NewInt(buyPrice), big.NewInt(startPrice), big.NewInt(f.now+duration))
	require.NoError(f.t, err)
	return order
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}

func TestCreateTakesCustody(t *testing.T) {
	f := newFixture(t)

	order := f.listFixed(1, 100)
	require.Equal(t, StatusListed, order.Status)
	require.Equal(t, f.alice, order.Owner)
	require.Equal(t, f.alice, order.Seller)
	require.Equal(t, OrderID(f.contract, big.NewInt(1)), order.ID)
	require.Equal(t, uint64(testNow), order.CreatedAt)
	require.Equal(t, f.market, f.ownerOf(1))

	stored, ok, err := f.engine.GetOrderInfo(f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, stored.BuyPrice.Cmp(big.NewInt(100)))

	listed, err := f.engine.TokenIsListed(f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.True(t, listed)
	listed, err = f.engine.TokenIsListed(f.contract, big.NewInt(2))
	require.NoError(t, err)
	require.False(t, listed)

	evts := f.recorder.Events()
	require.Len(t, evts, 1)
	require.Equal(t, EventTypeOrderCreated, evts[0].Type)
	require.Equal(t, "100", evts[0].Attributes["buyPrice"])
	require.Equal(t, "0", evts[0].Attributes["endTime"])
	require.Equal(t, formatAccount(f.alice), evts[0].Attributes["owner"])
}

func TestCreateByApprovedSeller(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.bob, true))

	order, err := f.engine.Create(f.bob, f.contract, big.NewInt(1), big.NewInt(50), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, f.alice, order.Owner)
	require.Equal(t, f.bob, order.Seller)

	_, err = f.engine.Buy(f.carol, f.contract, big.NewInt(1), big.NewInt(50))
	require.NoError(t, err)
	fee := int64(50 * 25 / 1000)
	require.Equal(t, fundings+50-fee, f.balance(f.alice))
	require.Equal(t, fundings, f.balance(f.bob))
}

func TestCreateRejections(t *testing.T) {
	wide := new(big.Int).Lsh(big.NewInt(1), 128)
	tooLate := new(big.Int).Lsh(big.NewInt(1), 64)

	cases := []struct {
		name   string
		setup  func(f *fixture)
		caller func(f *fixture) [20]byte
		buy    *big.Int
		start  *big.Int
		end    func(f *fixture) *big.Int
		kind   error
	}{
		{name: "zero buy price", buy: big.NewInt(0), kind: ErrValidation},
		{name: "start above buy", buy: big.NewInt(10), start: big.NewInt(11), end: func(f *fixture) *big.Int { return big.NewInt(f.now + day) }, kind: ErrValidation},
		{name: "buy price wider than 128 bits", buy: wide, kind: ErrValidation},
		{name: "start price wider than 128 bits", buy: wide, start: wide, end: func(f *fixture) *big.Int { return big.NewInt(f.now + day) }, kind: ErrValidation},
		{name: "end time wider than 64 bits", buy: big.NewInt(10), end: func(*fixture) *big.Int { return tooLate }, kind: ErrValidation},
		{name: "auction shorter than minimum", buy: big.NewInt(10), end: func(f *fixture) *big.Int { return big.NewInt(f.now + MinAuctionDuration - 1) }, kind: ErrValidation},
		{name: "fixed price with start price", buy: big.NewInt(10), start: big.NewInt(1), kind: ErrValidation},
		{
			name: "unregistered contract",
			setup: func(f *fixture) {
				f.contract = newTestAddress(0x99)
				_, err := f.registry.Deploy(f.contract, "Other")
				require.NoError(f.t, err)
			},
			buy:  big.NewInt(10),
			kind: ErrRegistry,
		},
		{
			name:  "contract orders disabled",
			setup: func(f *fixture) { require.NoError(f.t, f.engine.DisableTokenOrders(f.admin, f.contract)) },
			buy:   big.NewInt(10),
			kind:  ErrState,
		},
		{
			name:  "global orders disabled",
			setup: func(f *fixture) { require.NoError(f.t, f.engine.DisableOrders(f.admin)) },
			buy:   big.NewInt(10),
			kind:  ErrState,
		},
		{name: "caller not owner", caller: func(f *fixture) [20]byte { return f.bob }, buy: big.NewInt(10), kind: ErrAuthorization},
		{
			name:  "marketplace not approved",
			setup: func(f *fixture) { require.NoError(f.t, f.collection.SetApprovalForAll(f.alice, f.market, false)) },
			buy:   big.NewInt(10),
			kind:  ErrAuthorization,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
				f.recorder.Reset()
			}
			caller := f.alice
			if tc.caller != nil {
				caller = tc.caller(f)
			}
			end := big.NewInt(0)
			if tc.end != nil {
				end = tc.end(f)
			}
			_, err := f.engine.Create(caller, f.contract, big.NewInt(1), tc.buy, tc.start, end)
			requireKind(t, err, tc.kind)
			require.Empty(t, f.recorder.Events())
			require.Empty(t, f.store.orders)
			if tc.name != "unregistered contract" {
				require.Equal(t, f.alice, f.ownerOf(1))
			}
		})
	}
}

func TestCreateRejectsDuplicateListing(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	_, err := f.engine.Create(f.alice, f.contract, big.NewInt(1), big.NewInt(20), big.NewInt(0), big.NewInt(0))
	requireKind(t, err, ErrState)
}

// Scenario: auction with bids 5, 8, 10 where the last bid hits the buy price.
func TestAuctionInstantBuyRefundsBidders(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 10, 1, 3*day)

	order, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, StatusListed, order.Status)
	require.Equal(t, f.bob, order.HighestBidder)
	require.Equal(t, fundings-5, f.balance(f.bob))
	require.Equal(t, int64(5), f.balance(f.market))

	_, err = f.engine.Bid(f.carol, f.contract, big.NewInt(1), big.NewInt(8))
	require.NoError(t, err)
	require.Equal(t, fundings, f.balance(f.bob))
	require.Equal(t, int64(8), f.balance(f.market))

	f.recorder.Reset()
	order, err = f.engine.Bid(f.dave, f.contract, big.NewInt(1), big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, StatusSold, order.Status)
	require.Equal(t, f.dave, f.ownerOf(1))
	require.Equal(t, fundings, f.balance(f.bob))
	require.Equal(t, fundings, f.balance(f.carol))
	require.Equal(t, fundings-10, f.balance(f.dave))
	require.Equal(t, fundings+10, f.balance(f.alice))
	require.Equal(t, int64(0), f.balance(f.collector))
	require.Equal(t, int64(0), f.balance(f.market))

	require.Equal(t, []string{EventTypeBidRefunded, EventTypeBidPlaced, EventTypeTokenSold}, f.recorder.Types())
	sold := f.recorder.Events()[2]
	require.Equal(t, "10", sold.Attributes["price"])
	require.Equal(t, "0", sold.Attributes["fee"])
	require.Equal(t, "10", sold.Attributes["ownerDue"])

	listed, err := f.engine.TokenIsListed(f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.False(t, listed)
}

func TestAuctionInstantBuyChargesFee(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 1000, 100, day)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, int64(25), f.balance(f.collector))
	require.Equal(t, fundings+975, f.balance(f.alice))
	require.Equal(t, f.bob, f.ownerOf(1))
}

// Scenario: fixed-price buy requires the exact price.
func TestBuyRequiresExactPrice(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)

	for _, amount := range []int64{9, 11, 0} {
		_, err := f.engine.Buy(f.bob, f.contract, big.NewInt(1), big.NewInt(amount))
		requireKind(t, err, ErrPayment)
		require.Equal(t, fundings, f.balance(f.bob))
		require.Equal(t, f.market, f.ownerOf(1))
	}

	order, err := f.engine.Buy(f.bob, f.contract, big.NewInt(1), big.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, StatusSold, order.Status)
	require.Equal(t, f.bob, order.HighestBidder)
	require.Equal(t, f.bob, f.ownerOf(1))
	require.Equal(t, fundings-10, f.balance(f.bob))
}

// Scenario: cancel is refused once a bid is held; complete after the end
// sells to the bidder whoever calls it.
func TestCancelAfterBidThenComplete(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 100, 1, MinAuctionDuration)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(50))
	require.NoError(t, err)

	_, err = f.engine.Cancel(f.alice, f.contract, big.NewInt(1))
	requireKind(t, err, ErrState)

	_, err = f.engine.Complete(f.dave, f.contract, big.NewInt(1))
	requireKind(t, err, ErrState)

	f.now += MinAuctionDuration
	order, err := f.engine.Complete(f.dave, f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, StatusSold, order.Status)
	require.Equal(t, f.bob, f.ownerOf(1))
	fee := int64(50 * 25 / 1000)
	require.Equal(t, fee, f.balance(f.collector))
	require.Equal(t, fundings+50-fee, f.balance(f.alice))
	require.Equal(t, int64(0), f.balance(f.market))
}

// Scenario: an auction without bids returns the token unsold.
func TestCompleteWithoutBidsIsUnsold(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 100, 1, day)
	f.now += day

	order, err := f.engine.Complete(f.carol, f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, StatusUnsold, order.Status)
	require.Equal(t, f.alice, f.ownerOf(1))
	require.Contains(t, f.recorder.Types(), EventTypeTokenUnsold)
	require.NotContains(t, f.recorder.Types(), EventTypeTokenSold)

	// the key is free again
	f.listFixed(1, 5)
}

// Scenario: mismatched batch inputs move nothing.
func TestCreateManyMismatchedLengths(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateMany(f.alice,
		[][20]byte{f.contract, f.contract, f.contract},
		[]*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		[]*big.Int{big.NewInt(10), big.NewInt(10)},
		[]*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0)},
		[]*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0)},
	)
	requireKind(t, err, ErrValidation)
	for id := int64(1); id <= 3; id++ {
		require.Equal(t, f.alice, f.ownerOf(id))
	}

	_, err = f.engine.CancelMany(f.alice, nil, nil)
	requireKind(t, err, ErrValidation)
}

// Scenario: disabling orders only gates creation.
func TestDisableOrdersKeepsOpenOrdersTradable(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listAuction(2, 100, 1, day)
	f.listFixed(3, 10)
	require.NoError(t, f.engine.DisableOrders(f.admin))

	enabled, err := f.engine.OrdersEnabled()
	require.NoError(t, err)
	require.False(t, enabled)

	_, err = f.engine.Create(f.alice, f.contract, big.NewInt(4), big.NewInt(10), big.NewInt(0), big.NewInt(0))
	requireKind(t, err, ErrState)

	_, err = f.engine.Buy(f.bob, f.contract, big.NewInt(1), big.NewInt(10))
	require.NoError(t, err)
	_, err = f.engine.Bid(f.bob, f.contract, big.NewInt(2), big.NewInt(20))
	require.NoError(t, err)
	_, err = f.engine.Cancel(f.alice, f.contract, big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, f.alice, f.ownerOf(3))
}

func TestMonotonicBidding(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 100, 10, day)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(9))
	requireKind(t, err, ErrPayment)
	_, err = f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(101))
	requireKind(t, err, ErrPayment)

	_, err = f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(40))
	require.NoError(t, err)

	before, _, err := f.engine.GetOrderInfo(f.contract, big.NewInt(1))
	require.NoError(t, err)
	for _, amount := range []int64{40, 39, 0} {
		_, err = f.engine.Bid(f.carol, f.contract, big.NewInt(1), big.NewInt(amount))
		requireKind(t, err, ErrPayment)
	}
	after, _, err := f.engine.GetOrderInfo(f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, fundings, f.balance(f.carol))
	require.Equal(t, int64(40), f.balance(f.market))

	_, err = f.engine.Bid(f.carol, f.contract, big.NewInt(1), big.NewInt(41))
	require.NoError(t, err)
}

func TestRefundInvariant(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 1_000, 1, day)

	bidders := [][20]byte{f.bob, f.carol, f.dave, f.bob, f.carol}
	for i, bidder := range bidders {
		amount := int64(100 * (i + 1))
		_, err := f.engine.Bid(bidder, f.contract, big.NewInt(1), big.NewInt(amount))
		require.NoError(t, err)
		require.Equal(t, amount, f.balance(f.market))
	}
	require.Equal(t, fundings, f.balance(f.bob))
	require.Equal(t, fundings, f.balance(f.dave))
	require.Equal(t, fundings-500, f.balance(f.carol))

	f.now += day
	_, err := f.engine.Complete(f.alice, f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, f.carol, f.ownerOf(1))
	require.Equal(t, int64(0), f.balance(f.market))
}

func TestModeMismatches(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listAuction(2, 100, 1, day)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(10))
	requireKind(t, err, ErrState)
	_, err = f.engine.Complete(f.bob, f.contract, big.NewInt(1))
	requireKind(t, err, ErrState)
	_, err = f.engine.Buy(f.bob, f.contract, big.NewInt(2), big.NewInt(100))
	requireKind(t, err, ErrState)
	_, err = f.engine.Bid(f.bob, f.contract, big.NewInt(3), big.NewInt(10))
	requireKind(t, err, ErrState)

	f.now += day
	_, err = f.engine.Bid(f.bob, f.contract, big.NewInt(2), big.NewInt(50))
	requireKind(t, err, ErrState)
}

func TestBidWithoutFunds(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 10*fundings, 1, day)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(fundings+1))
	requireKind(t, err, ErrPayment)
	order, _, err := f.engine.GetOrderInfo(f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.False(t, order.HasBid())
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 100, 10, day)
	f.recorder.Reset()

	order, err := f.engine.Update(f.alice, f.contract, big.NewInt(1), big.NewInt(200), big.NewInt(20), big.NewInt(f.now+2*day))
	require.NoError(t, err)
	require.Equal(t, 0, order.BuyPrice.Cmp(big.NewInt(200)))
	require.Equal(t, 0, order.StartPrice.Cmp(big.NewInt(20)))
	require.Equal(t, uint64(f.now+2*day), order.EndTime)
	require.Equal(t, f.alice, order.Owner)
	require.Equal(t, []string{EventTypeOrderUpdated}, f.recorder.Types())

	_, err = f.engine.Update(f.bob, f.contract, big.NewInt(1), big.NewInt(300), big.NewInt(0), big.NewInt(0))
	requireKind(t, err, ErrAuthorization)

	_, err = f.engine.Update(f.alice, f.contract, big.NewInt(1), big.NewInt(10), big.NewInt(20), big.NewInt(f.now+day))
	requireKind(t, err, ErrValidation)

	// switch to fixed price
	order, err = f.engine.Update(f.alice, f.contract, big.NewInt(1), big.NewInt(300), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	require.False(t, order.IsAuction())

	_, err = f.engine.Update(f.alice, f.contract, big.NewInt(9), big.NewInt(300), big.NewInt(0), big.NewInt(0))
	requireKind(t, err, ErrState)
}

func TestUpdateRejectedAfterBidOrEnd(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 100, 10, day)
	f.listAuction(2, 100, 10, day)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(20))
	require.NoError(t, err)
	_, err = f.engine.Update(f.alice, f.contract, big.NewInt(1), big.NewInt(200), big.NewInt(20), big.NewInt(f.now+2*day))
	requireKind(t, err, ErrState)

	f.now += day
	_, err = f.engine.Update(f.alice, f.contract, big.NewInt(2), big.NewInt(200), big.NewInt(20), big.NewInt(f.now+2*day))
	requireKind(t, err, ErrState)
	_, err = f.engine.Cancel(f.alice, f.contract, big.NewInt(2))
	requireKind(t, err, ErrState)
}

func TestCancelByApprovedOperator(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listFixed(2, 10)
	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.bob, true))

	order, err := f.engine.Cancel(f.bob, f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, order.Status)
	require.Equal(t, f.alice, f.ownerOf(1))

	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.bob, false))
	_, err = f.engine.Cancel(f.bob, f.contract, big.NewInt(2))
	requireKind(t, err, ErrAuthorization)
	require.Equal(t, f.market, f.ownerOf(2))

	_, err = f.engine.Cancel(f.alice, f.contract, big.NewInt(1))
	requireKind(t, err, ErrState)
}

func TestBatchAtomicity(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.collection.Mint(f.bob, big.NewInt(100)))

	contracts := [][20]byte{f.contract, f.contract, f.contract}
	zeros := []*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0)}
	prices := []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)}
	_, err := f.engine.CreateMany(f.alice, contracts, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(100)}, prices, zeros, zeros)
	requireKind(t, err, ErrAuthorization)
	require.Contains(t, err.Error(), "item 2")
	require.Empty(t, f.store.orders)
	require.Empty(t, f.recorder.Events())
	require.Equal(t, f.alice, f.ownerOf(1))
	require.Equal(t, f.alice, f.ownerOf(2))

	orders, err := f.engine.CreateMany(f.alice, contracts, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}, prices, zeros, zeros)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, []string{EventTypeOrderCreated, EventTypeOrderCreated, EventTypeOrderCreated, EventTypeOrdersCreated}, f.recorder.Types())
	require.Equal(t, "3", f.recorder.Events()[3].Attributes["count"])

	ids := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	_, err = f.engine.BuyMany(f.bob, contracts, ids, prices, big.NewInt(59))
	requireKind(t, err, ErrPayment)

	_, err = f.engine.BuyMany(f.bob, contracts, ids, []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(31)}, big.NewInt(61))
	requireKind(t, err, ErrPayment)
	require.Equal(t, fundings, f.balance(f.bob))
	require.Len(t, f.store.orders, 3)
	for id := int64(1); id <= 3; id++ {
		require.Equal(t, f.market, f.ownerOf(id))
	}

	sold, err := f.engine.BuyMany(f.bob, contracts, ids, prices, big.NewInt(60))
	require.NoError(t, err)
	require.Len(t, sold, 3)
	require.Empty(t, f.store.orders)
	require.Equal(t, fundings-60, f.balance(f.bob))
	for id := int64(1); id <= 3; id++ {
		require.Equal(t, f.bob, f.ownerOf(id))
	}
}

func TestBidManyAndCompleteMany(t *testing.T) {
	f := newFixture(t)
	f.listAuction(1, 100, 1, day)
	f.listAuction(2, 100, 1, day)
	f.listAuction(3, 100, 1, day)

	contracts := [][20]byte{f.contract, f.contract}
	ids := []*big.Int{big.NewInt(1), big.NewInt(2)}
	orders, err := f.engine.BidMany(f.bob, contracts, ids, []*big.Int{big.NewInt(30), big.NewInt(40)}, big.NewInt(70))
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, fundings-70, f.balance(f.bob))

	_, err = f.engine.BidMany(f.carol, contracts, ids, []*big.Int{big.NewInt(31), big.NewInt(40)}, big.NewInt(71))
	requireKind(t, err, ErrPayment)
	require.Equal(t, fundings, f.balance(f.carol))
	require.Equal(t, fundings-70, f.balance(f.bob))

	all := [][20]byte{f.contract, f.contract, f.contract}
	allIDs := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	_, err = f.engine.CompleteMany(f.dave, all, allIDs)
	requireKind(t, err, ErrState)

	f.now += day
	done, err := f.engine.CompleteMany(f.dave, all, allIDs)
	require.NoError(t, err)
	require.Equal(t, StatusSold, done[0].Status)
	require.Equal(t, StatusSold, done[1].Status)
	require.Equal(t, StatusUnsold, done[2].Status)
	require.Equal(t, f.bob, f.ownerOf(1))
	require.Equal(t, f.bob, f.ownerOf(2))
	require.Equal(t, f.alice, f.ownerOf(3))
}

func TestUpdateManyAndCancelMany(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listFixed(2, 10)

	contracts := [][20]byte{f.contract, f.contract}
	ids := []*big.Int{big.NewInt(1), big.NewInt(2)}
	zeros := []*big.Int{big.NewInt(0), big.NewInt(0)}
	_, err := f.engine.UpdateMany(f.alice, contracts, ids, []*big.Int{big.NewInt(15), big.NewInt(0)}, zeros, zeros)
	requireKind(t, err, ErrValidation)
	order, _, err := f.engine.GetOrderInfo(f.contract, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, 0, order.BuyPrice.Cmp(big.NewInt(10)))

	updated, err := f.engine.UpdateMany(f.alice, contracts, ids, []*big.Int{big.NewInt(15), big.NewInt(25)}, zeros, zeros)
	require.NoError(t, err)
	require.Equal(t, 0, updated[1].BuyPrice.Cmp(big.NewInt(25)))

	cancelled, err := f.engine.CancelMany(f.alice, contracts, ids)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	require.Equal(t, f.alice, f.ownerOf(1))
	require.Equal(t, f.alice, f.ownerOf(2))
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)
	other := newTestAddress(0x55)

	requireKind(t, f.engine.RegisterToken(f.bob, other), ErrAuthorization)
	requireKind(t, f.engine.RegisterToken(f.admin, f.contract), ErrRegistry)
	requireKind(t, f.engine.EnableTokenOrders(f.admin, f.contract), ErrRegistry)
	requireKind(t, f.engine.DisableTokenOrders(f.admin, other), ErrRegistry)
	requireKind(t, f.engine.EnableOrders(f.admin), ErrRegistry)
	requireKind(t, f.engine.DisableOrders(f.bob), ErrAuthorization)

	require.NoError(t, f.engine.RegisterToken(f.admin, other))
	flags, err := f.engine.GetTokenFlags(other)
	require.NoError(t, err)
	require.Equal(t, TokenFlags{Registered: true, OrdersEnabled: true}, flags)

	require.NoError(t, f.engine.DisableTokenOrders(f.admin, other))
	requireKind(t, f.engine.DisableTokenOrders(f.admin, other), ErrRegistry)
	require.NoError(t, f.engine.EnableTokenOrders(f.admin, other))
	require.NoError(t, f.engine.DisableOrders(f.admin))
	require.NoError(t, f.engine.EnableOrders(f.admin))

	flags, err = f.engine.GetTokenFlags(newTestAddress(0x56))
	require.NoError(t, err)
	require.Equal(t, TokenFlags{}, flags)

	require.Equal(t, []string{
		EventTypeTokenRegistered,
		EventTypeTokenOrdersDisabled,
		EventTypeTokenOrdersEnabled,
		EventTypeOrdersDisabled,
		EventTypeOrdersEnabled,
	}, f.recorder.Types())
}

func TestFeeAdministration(t *testing.T) {
	f := newFixture(t)

	requireKind(t, f.engine.SetMarketFee(f.admin, 1, 0), ErrValidation)
	requireKind(t, f.engine.SetMarketFee(f.admin, 2, 1), ErrValidation)
	requireKind(t, f.engine.SetMarketFee(f.bob, 1, 100), ErrAuthorization)
	requireKind(t, f.engine.SetMarketFeeCollector(f.admin, [20]byte{}), ErrValidation)
	requireKind(t, f.engine.SetMarketFeeCollector(f.bob, f.bob), ErrAuthorization)

	f.listFixed(1, 1000)
	// fee changes apply to orders listed before the change
	require.NoError(t, f.engine.SetMarketFee(f.admin, 1, 10))
	require.NoError(t, f.engine.SetMarketFeeCollector(f.admin, f.dave))

	schedule, err := f.engine.FeeSchedule()
	require.NoError(t, err)
	require.Equal(t, fees.Schedule{Numerator: 1, Denominator: 10, Collector: f.dave}, schedule)

	_, err = f.engine.Buy(f.bob, f.contract, big.NewInt(1), big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, fundings+100, f.balance(f.dave))
	require.Equal(t, fundings+900, f.balance(f.alice))
	require.Equal(t, int64(0), f.balance(f.collector))
}

func TestSetAdmin(t *testing.T) {
	f := newFixture(t)
	requireKind(t, f.engine.SetAdmin(f.admin, [20]byte{}), ErrValidation)
	requireKind(t, f.engine.SetAdmin(f.bob, f.bob), ErrAuthorization)

	require.NoError(t, f.engine.SetAdmin(f.admin, f.bob))
	admin, err := f.engine.Admin()
	require.NoError(t, err)
	require.Equal(t, f.bob, admin)

	requireKind(t, f.engine.DisableOrders(f.admin), ErrAuthorization)
	require.NoError(t, f.engine.DisableOrders(f.bob))
}

func TestDefaultCollectorIsAdmin(t *testing.T) {
	store := newMockStore()
	engine := NewEngine(newTestAddress(0xEE))
	engine.SetState(store)
	admin := newTestAddress(0xAD)
	require.NoError(t, engine.Initialize(admin, fees.Schedule{Numerator: fees.DefaultNumerator, Denominator: fees.DefaultDenominator}))

	schedule, err := engine.FeeSchedule()
	require.NoError(t, err)
	require.Equal(t, fees.Default(admin), schedule)

	// a second initialisation keeps the stored admin
	require.NoError(t, engine.Initialize(newTestAddress(0x01), fees.Default(newTestAddress(0x01))))
	current, err := engine.Admin()
	require.NoError(t, err)
	require.Equal(t, admin, current)
}

func TestCommitFailureRestoresCustody(t *testing.T) {
	f := newFixture(t)
	f.store.failCommit = true

	_, err := f.engine.Create(f.alice, f.contract, big.NewInt(1), big.NewInt(10), big.NewInt(0), big.NewInt(0))
	require.ErrorIs(t, err, errCommitFailed)
	require.Equal(t, f.alice, f.ownerOf(1))
	require.Empty(t, f.recorder.Events())
}

func TestEscrowInvariant(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listFixed(2, 10)
	f.listAuction(3, 100, 1, day)
	f.listAuction(4, 100, 1, day)

	_, err := f.engine.Cancel(f.alice, f.contract, big.NewInt(1))
	require.NoError(t, err)
	_, err = f.engine.Buy(f.bob, f.contract, big.NewInt(2), big.NewInt(10))
	require.NoError(t, err)
	_, err = f.engine.Bid(f.carol, f.contract, big.NewInt(3), big.NewInt(10))
	require.NoError(t, err)

	check := func() {
		orders, err := f.engine.Orders()
		require.NoError(t, err)
		listed := make(map[int64]bool)
		for _, order := range orders {
			listed[order.TokenID.Int64()] = true
		}
		for id := int64(1); id <= 5; id++ {
			require.Equalf(t, listed[id], f.ownerOf(id) == f.market, "token %d", id)
		}
	}
	check()

	f.now += day
	_, err = f.engine.CompleteMany(f.dave, [][20]byte{f.contract, f.contract}, []*big.Int{big.NewInt(3), big.NewInt(4)})
	require.NoError(t, err)
	check()

	orders, err := f.engine.Orders()
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestKindOf(t *testing.T) {
	err := itemError(1, newError(ErrPayment, "bid", "too low"))
	require.Equal(t, ErrPayment, KindOf(err))
	require.Nil(t, KindOf(errors.New("other")))
	require.Equal(t, "item 1: market: bid: too low", err.Error())
}

func TestNilStateRejected(t *testing.T) {
	engine := NewEngine(newTestAddress(0xEE))
	_, err := engine.Create(newTestAddress(1), newTestAddress(2), big.NewInt(1), big.NewInt(1), nil, nil)
	require.ErrorIs(t, err, errNilState)
}

// flakyToken fails transfers of selected token ids out of escrow.
type flakyToken struct {
	*nft.Collection
	market   [20]byte
	failOut  map[int64]bool
	attempts int
}

func (t *flakyToken) TransferFrom(operator, from, to [20]byte, tokenID *big.Int) error {
	t.attempts++
	if from == t.market && t.failOut[tokenID.Int64()] {
		return errors.New("collection paused")
	}
	return t.Collection.TransferFrom(operator, from, to, tokenID)
}

func (f *fixture) useFlakyToken(failOut ...int64) *flakyToken {
	token := &flakyToken{Collection: f.collection, market: f.market, failOut: make(map[int64]bool)}
	for _, id := range failOut {
		token.failOut[id] = true
	}
	f.engine.SetTokenResolver(ResolverFunc(func(addr [20]byte) (TokenContract, error) {
		if addr != f.contract {
			return nil, nft.ErrUnknownCollection
		}
		return token, nil
	}))
	return token
}

func (f *fixture) requireCustodyMatchesOrders(ids ...int64) {
	f.t.Helper()
	for _, id := range ids {
		listed, err := f.engine.TokenIsListed(f.contract, big.NewInt(id))
		require.NoError(f.t, err)
		require.Equalf(f.t, listed, f.ownerOf(id) == f.market, "token %d", id)
	}
}

func TestFailedReleaseRestoresEscrow(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listFixed(2, 10)
	f.useFlakyToken(2)
	f.recorder.Reset()

	_, err := f.engine.CancelMany(f.alice, [][20]byte{f.contract, f.contract}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	requireKind(t, err, ErrState)
	require.Equal(t, f.market, f.ownerOf(1))
	require.Equal(t, f.market, f.ownerOf(2))
	f.requireCustodyMatchesOrders(1, 2)
	require.Empty(t, f.recorder.Events())
}

func TestCustodyDriftRejectedBeforeTransfers(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.listFixed(2, 10)
	// token 2 leaves escrow behind the market's back
	require.NoError(t, f.collection.TransferFrom(f.market, f.market, f.dave, big.NewInt(2)))
	token := f.useFlakyToken()

	_, err := f.engine.CancelMany(f.alice, [][20]byte{f.contract, f.contract}, []*big.Int{big.NewInt(1), big.NewInt(2)})
	requireKind(t, err, ErrState)
	require.Contains(t, err.Error(), "not held in escrow")
	require.Zero(t, token.attempts)
	require.Equal(t, f.market, f.ownerOf(1))
}

func TestCommitFailureRestoresReleasedToken(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)
	f.store.failCommit = true

	_, err := f.engine.Cancel(f.alice, f.contract, big.NewInt(1))
	require.ErrorIs(t, err, errCommitFailed)
	require.Equal(t, f.market, f.ownerOf(1))

	f.store.failCommit = false
	f.requireCustodyMatchesOrders(1)
}

func TestUpdateLimitedToOwnerAndSeller(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.bob, true))
	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.carol, true))
	order, err := f.engine.Create(f.bob, f.contract, big.NewInt(1), big.NewInt(50), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, f.bob, order.Seller)

	// approved, but not the seller of this order
	_, err = f.engine.Update(f.carol, f.contract, big.NewInt(1), big.NewInt(60), big.NewInt(0), big.NewInt(0))
	requireKind(t, err, ErrAuthorization)

	order, err = f.engine.Update(f.bob, f.contract, big.NewInt(1), big.NewInt(60), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, 0, order.BuyPrice.Cmp(big.NewInt(60)))

	require.NoError(t, f.collection.SetApprovalForAll(f.alice, f.bob, false))
	_, err = f.engine.Update(f.bob, f.contract, big.NewInt(1), big.NewInt(70), big.NewInt(0), big.NewInt(0))
	requireKind(t, err, ErrAuthorization)

	_, err = f.engine.Update(f.alice, f.contract, big.NewInt(1), big.NewInt(70), big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
}

func TestBidRejectedOnFixedPriceOrder(t *testing.T) {
	f := newFixture(t)
	f.listFixed(1, 10)

	_, err := f.engine.Bid(f.bob, f.contract, big.NewInt(1), big.NewInt(10))
	requireKind(t, err, ErrState)
	require.Equal(t, fundings, f.balance(f.bob))
	require.Equal(t, f.market, f.ownerOf(1))
}
