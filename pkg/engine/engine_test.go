package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/order"
)

type nopJournal struct{}

func (nopJournal) AppendEntries([]ledger.Entry) error          { return nil }
func (nopJournal) SaveBalances(string, []ledger.Balance) error { return nil }

type memStore struct {
	mu        sync.Mutex
	orders    map[string]order.Order
	fills     []order.Fill
	failSaves bool
}

func newMemStore() *memStore { return &memStore{orders: map[string]order.Order{}} }

func (s *memStore) SaveOrder(o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return errors.New("store down")
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *memStore) SaveFills(fills []order.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return errors.New("store down")
	}
	s.fills = append(s.fills, fills...)
	return nil
}

type capturePub struct {
	mu      sync.Mutex
	trades  []order.Trade
	updates []order.Order
	books   []uint64
}

func (p *capturePub) PublishBookChange(pair string, seq uint64) {
	p.mu.Lock()
	p.books = append(p.books, seq)
	p.mu.Unlock()
}

func (p *capturePub) PublishTrade(t order.Trade) {
	p.mu.Lock()
	p.trades = append(p.trades, t)
	p.mu.Unlock()
}

func (p *capturePub) PublishOrderUpdate(o order.Order) {
	p.mu.Lock()
	p.updates = append(p.updates, o)
	p.mu.Unlock()
}

// Fixed-point shorthand for the SOL/USDC test pair: SOL 9 decimals,
// USDC 6 decimals, tick 0.01, lot 0.1, both fee schedules 10 bps.
const (
	sol01  = 100_000_000     // 0.1 SOL, the lot step
	sol1   = 1_000_000_000   // 1.0 SOL
	usdc1  = 1_000_000       // 1 USDC
	px100  = 100_000_000     // 100.00 USDC/SOL
	px99   = 99_000_000      // 99.00
	px101  = 101_000_000     // 101.00
	px1015 = 101_500_000     // 101.50
	px105  = 105_000_000     // 105.00
)

type fixture struct {
	eng   *Engine
	lgr   *ledger.Ledger
	store *memStore
	pub   *capturePub
	pair  *asset.Pair
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	reg := asset.NewRegistry()
	solAsset := &asset.Asset{Symbol: "SOL", Chain: "solana", Decimals: 9, Active: true}
	usdcAsset := &asset.Asset{Symbol: "USDC", Chain: "solana", Decimals: 6, Active: true}
	require.NoError(t, reg.RegisterAsset(solAsset))
	require.NoError(t, reg.RegisterAsset(usdcAsset))
	pair := &asset.Pair{
		Symbol: "SOL/USDC", Base: solAsset, Quote: usdcAsset,
		PriceTick: 10_000, LotStep: sol01,
		MinOrderSize: sol01, MaxOrderSize: 1_000_000 * sol1,
		MakerFeeBps: 10, TakerFeeBps: 10, Active: true,
	}
	require.NoError(t, reg.RegisterPair(pair))

	store := newMemStore()
	pub := &capturePub{}
	lgr := ledger.New(nopJournal{})
	eng := New(reg, lgr, store, pub, zap.NewNop().Sugar(), opts)
	return &fixture{eng: eng, lgr: lgr, store: store, pub: pub, pair: pair}
}

func (f *fixture) fund(t *testing.T, user, assetSym string, amount int64) {
	t.Helper()
	require.NoError(t, f.lgr.Credit(user, assetSym, amount, ledger.KindDeposit, "", "test deposit"))
}

func limitReq(user string, side order.Side, tif order.TimeInForce, price, amount int64) SubmitRequest {
	return SubmitRequest{
		UserID: user, Pair: "SOL/USDC", Type: order.Limit,
		Side: side, TimeInForce: tif, Price: price, Amount: amount,
	}
}

func TestLimitRestsWhenUncrossed(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "alice", "USDC", 1000*usdc1)

	res, err := f.eng.Submit(limitReq("alice", order.Buy, order.GTC, px100, sol1))
	require.NoError(t, err)
	require.Equal(t, order.Pending, res.Order.Status)
	require.Empty(t, res.Fills)
	require.Equal(t, uint64(1), res.Order.Seq)

	b := f.lgr.Balance("alice", "USDC")
	require.Equal(t, int64(900*usdc1), b.Available)
	require.Equal(t, int64(100*usdc1), b.Locked)

	snap, err := f.eng.BookSnapshot("SOL/USDC", 10)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	require.Equal(t, int64(px100), snap.Bids[0].Price)
	require.Equal(t, int64(sol1), snap.Bids[0].Amount)
	require.Empty(t, snap.Asks)

	require.Equal(t, []uint64{1}, f.pub.books)
	require.Len(t, f.pub.updates, 1)
}

func TestTakerFilledMakerPartial(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "alice", "USDC", 1000*usdc1)
	f.fund(t, "bob", "SOL", 10*sol1)

	maker, err := f.eng.Submit(limitReq("alice", order.Buy, order.GTC, px100, sol1))
	require.NoError(t, err)

	res, err := f.eng.Submit(limitReq("bob", order.Sell, order.GTC, px100, 3*sol01))
	require.NoError(t, err)
	require.Equal(t, order.Filled, res.Order.Status)
	require.Len(t, res.Fills, 1)
	require.Equal(t, int64(3*sol01), res.Fills[0].Amount)
	require.Equal(t, int64(px100), res.Fills[0].Price)

	// taker fee comes out of the received quote, maker fee out of the
	// received base: 0.03 USDC and 0.0003 SOL on a 0.3 @ 100.00 match
	require.Equal(t, int64(30_000), res.Fills[0].Fee)
	require.Equal(t, "USDC", res.Fills[0].FeeAsset)

	bobUSDC := f.lgr.Balance("bob", "USDC")
	require.Equal(t, int64(30*usdc1-30_000), bobUSDC.Available)
	bobSOL := f.lgr.Balance("bob", "SOL")
	require.Equal(t, int64(97*sol01), bobSOL.Available)
	require.Zero(t, bobSOL.Locked)

	aliceSOL := f.lgr.Balance("alice", "SOL")
	require.Equal(t, int64(3*sol01-300_000), aliceSOL.Available)
	aliceUSDC := f.lgr.Balance("alice", "USDC")
	require.Equal(t, int64(70*usdc1), aliceUSDC.Locked)

	makerNow, ok := f.eng.Order(maker.Order.ID)
	require.True(t, ok)
	require.Equal(t, order.Partial, makerNow.Status)
	require.Equal(t, int64(3*sol01), makerNow.Filled)

	snap, err := f.eng.BookSnapshot("SOL/USDC", 10)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	require.Equal(t, int64(7*sol01), snap.Bids[0].Amount)
	require.Empty(t, snap.Asks)

	// trade sequence follows the maker's insert sequence
	require.Len(t, f.pub.trades, 1)
	require.Equal(t, maker.Order.Seq+1, f.pub.trades[0].Seq)
	require.Equal(t, []uint64{1, 3}, f.pub.books)

	// nothing minted, nothing burned beyond deposits
	totals := f.lgr.TotalsByAsset()
	require.Equal(t, int64(1000*usdc1), totals["USDC"])
	require.Equal(t, int64(10*sol1), totals["SOL"])
}

func TestMarketBuyWalksLevels(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "carol", "SOL", 10*sol1)
	f.fund(t, "dan", "SOL", 10*sol1)
	f.fund(t, "alice", "USDC", 1000*usdc1)

	carol, err := f.eng.Submit(limitReq("carol", order.Sell, order.GTC, px101, 2*sol1))
	require.NoError(t, err)
	dan, err := f.eng.Submit(limitReq("dan", order.Sell, order.GTC, px1015, sol1))
	require.NoError(t, err)

	res, err := f.eng.Submit(SubmitRequest{
		UserID: "alice", Pair: "SOL/USDC", Type: order.Market, Side: order.Buy,
		Amount: 25 * sol01, QuoteBudget: 260 * usdc1,
	})
	require.NoError(t, err)
	require.Equal(t, order.Filled, res.Order.Status)
	require.Len(t, res.Fills, 2)
	require.Equal(t, int64(2*sol1), res.Fills[0].Amount)
	require.Equal(t, int64(px101), res.Fills[0].Price)
	require.Equal(t, int64(5*sol01), res.Fills[1].Amount)
	require.Equal(t, int64(px1015), res.Fills[1].Price)

	// spent 202 + 50.75, unused 7.25 of the 260 budget back to available
	aliceUSDC := f.lgr.Balance("alice", "USDC")
	require.Equal(t, int64(1000*usdc1-252_750_000), aliceUSDC.Available)
	require.Zero(t, aliceUSDC.Locked)

	// 2.5 SOL received minus the 0.1% taker fee per fill
	aliceSOL := f.lgr.Balance("alice", "SOL")
	require.Equal(t, int64(25*sol01-2_500_000), aliceSOL.Available)

	require.Equal(t, int64(101_100_000), res.Order.AvgPrice)

	carolNow, _ := f.eng.Order(carol.Order.ID)
	require.Equal(t, order.Filled, carolNow.Status)
	danNow, _ := f.eng.Order(dan.Order.ID)
	require.Equal(t, order.Partial, danNow.Status)
	require.Equal(t, int64(5*sol01), danNow.Remaining())

	snap, err := f.eng.BookSnapshot("SOL/USDC", 10)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
	require.Equal(t, int64(px1015), snap.Asks[0].Price)
	require.Equal(t, int64(5*sol01), snap.Asks[0].Amount)
}

func TestCancelReleasesRemainingReservation(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "eve", "USDC", 1000*usdc1)
	f.fund(t, "seller", "SOL", 10*sol1)

	res, err := f.eng.Submit(limitReq("eve", order.Buy, order.GTC, px100, 2*sol1))
	require.NoError(t, err)
	_, err = f.eng.Submit(limitReq("seller", order.Sell, order.GTC, px100, 4*sol01))
	require.NoError(t, err)

	b := f.lgr.Balance("eve", "USDC")
	require.Equal(t, int64(160*usdc1), b.Locked)

	cancelled, err := f.eng.Cancel("eve", res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, order.Cancelled, cancelled.Status)
	require.Equal(t, int64(4*sol01), cancelled.Filled)

	b = f.lgr.Balance("eve", "USDC")
	require.Zero(t, b.Locked)
	require.Equal(t, int64(960*usdc1), b.Available)
	require.Equal(t, int64(4*sol01-400_000), f.lgr.Balance("eve", "SOL").Available)
}

func TestFOKAllOrNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "b1", "USDC", 1000*usdc1)
	f.fund(t, "b2", "USDC", 1000*usdc1)
	f.fund(t, "frank", "SOL", 10*sol1)

	_, err := f.eng.Submit(limitReq("b1", order.Buy, order.GTC, px100, 25*sol01))
	require.NoError(t, err)
	_, err = f.eng.Submit(limitReq("b2", order.Buy, order.GTC, px99, 15*sol01))
	require.NoError(t, err)
	booksBefore := len(f.pub.books)

	// 5.0 against 4.0 of resting demand: rejected with no funds moved
	_, err = f.eng.Submit(limitReq("frank", order.Sell, order.FOK, px99, 5*sol1))
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeNoLiquidity, rej.Code)

	b := f.lgr.Balance("frank", "SOL")
	require.Equal(t, int64(10*sol1), b.Available)
	require.Zero(t, b.Locked)
	bids, _ := f.eng.pairs["SOL/USDC"].book.Depth()
	require.Equal(t, 2, bids)
	require.Len(t, f.pub.books, booksBefore)

	// exactly the resting demand fills completely
	res, err := f.eng.Submit(limitReq("frank", order.Sell, order.FOK, px99, 4*sol1))
	require.NoError(t, err)
	require.Equal(t, order.Filled, res.Order.Status)
	require.Len(t, res.Fills, 2)
}

func TestIdempotentCancel(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "gina", "SOL", 10*sol1)

	res, err := f.eng.Submit(limitReq("gina", order.Sell, order.GTC, px105, sol1))
	require.NoError(t, err)

	first, err := f.eng.Cancel("gina", res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, order.Cancelled, first.Status)
	booksAfter := len(f.pub.books)

	second, err := f.eng.Cancel("gina", res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, order.Cancelled, second.Status)
	require.Equal(t, first.CancelledAt, second.CancelledAt)
	require.Len(t, f.pub.books, booksAfter)

	b := f.lgr.Balance("gina", "SOL")
	require.Equal(t, int64(10*sol1), b.Available)
	require.Zero(t, b.Locked)
}

func TestCancelOwnership(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "gina", "SOL", 10*sol1)

	res, err := f.eng.Submit(limitReq("gina", order.Sell, order.GTC, px105, sol1))
	require.NoError(t, err)

	_, err = f.eng.Cancel("mallory", res.Order.ID)
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeNotFound, rej.Code)

	_, err = f.eng.Cancel("gina", "no-such-order")
	rej, ok = AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeNotFound, rej.Code)
}

func TestIOCRemainderDoesNotRest(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "maker", "SOL", 10*sol1)
	f.fund(t, "taker", "USDC", 1000*usdc1)

	_, err := f.eng.Submit(limitReq("maker", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)

	res, err := f.eng.Submit(limitReq("taker", order.Buy, order.IOC, px101, 2*sol1))
	require.NoError(t, err)
	require.Equal(t, order.Partial, res.Order.Status)
	require.Equal(t, int64(sol1), res.Order.Filled)

	b := f.lgr.Balance("taker", "USDC")
	require.Zero(t, b.Locked)

	snap, err := f.eng.BookSnapshot("SOL/USDC", 10)
	require.NoError(t, err)
	require.Empty(t, snap.Bids)
	require.Empty(t, snap.Asks)
	require.Empty(t, f.eng.OpenOrders("taker", ""))
}

func TestIOCNoMatchCancelled(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "taker", "USDC", 1000*usdc1)

	res, err := f.eng.Submit(limitReq("taker", order.Buy, order.IOC, px100, sol1))
	require.NoError(t, err)
	require.Equal(t, order.Cancelled, res.Order.Status)
	require.Zero(t, f.lgr.Balance("taker", "USDC").Locked)
}

func TestMarketBuyNoLiquidity(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "taker", "USDC", 1000*usdc1)

	_, err := f.eng.Submit(SubmitRequest{
		UserID: "taker", Pair: "SOL/USDC", Type: order.Market, Side: order.Buy,
		Amount: sol1, QuoteBudget: 200 * usdc1,
	})
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeNoLiquidity, rej.Code)

	b := f.lgr.Balance("taker", "USDC")
	require.Equal(t, int64(1000*usdc1), b.Available)
	require.Zero(t, b.Locked)
}

func TestValidationRejections(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "u", "USDC", 1000*usdc1)

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"unaligned price", limitReq("u", order.Buy, order.GTC, px100+1, sol1)},
		{"unaligned amount", limitReq("u", order.Buy, order.GTC, px100, sol1+1)},
		{"below min size", limitReq("u", order.Buy, order.GTC, px100, sol01/10)},
		{"market with price", SubmitRequest{UserID: "u", Pair: "SOL/USDC", Type: order.Market, Side: order.Sell, Price: px100, Amount: sol1}},
		{"market buy without budget", SubmitRequest{UserID: "u", Pair: "SOL/USDC", Type: order.Market, Side: order.Buy, Amount: sol1}},
		{"missing user", limitReq("", order.Buy, order.GTC, px100, sol1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.Submit(tc.req)
			rej, ok := AsReject(err)
			require.True(t, ok)
			require.Equal(t, CodeValidation, rej.Code)
		})
	}

	_, err := f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, 1_000_000*sol1))
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeInsufficientAvailable, rej.Code)

	_, err = f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, sol1))
	require.NoError(t, err)

	_, err = f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, sol1))
	require.NoError(t, err, "second order within remaining available")
}

func TestUnknownPair(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, sol1))
	require.Error(t, err)

	req := limitReq("u", order.Buy, order.GTC, px100, sol1)
	req.Pair = "BTC/USDC"
	_, err = f.eng.Submit(req)
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeValidation, rej.Code)
}

func TestSelfMatchSkip(t *testing.T) {
	f := newFixture(t, Options{SkipSelfMatch: true})
	f.fund(t, "u", "SOL", 10*sol1)
	f.fund(t, "u", "USDC", 1000*usdc1)
	f.fund(t, "v", "SOL", 10*sol1)

	own, err := f.eng.Submit(limitReq("u", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)
	_, err = f.eng.Submit(limitReq("v", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)

	res, err := f.eng.Submit(limitReq("u", order.Buy, order.GTC, px101, sol1))
	require.NoError(t, err)
	require.Equal(t, order.Filled, res.Order.Status)

	// the taker crossed v's quote; u's own ask is still resting
	ownNow, ok := f.eng.Order(own.Order.ID)
	require.True(t, ok)
	require.Equal(t, order.Pending, ownNow.Status)
	require.True(t, f.eng.pairs["SOL/USDC"].book.Contains(own.Order.ID))
	require.Equal(t, int64(9*sol1), f.lgr.Balance("v", "SOL").Available)
}

func TestSelfMatchSkipForfeitsQueuePosition(t *testing.T) {
	f := newFixture(t, Options{SkipSelfMatch: true})
	f.fund(t, "alice", "SOL", 10*sol1)
	f.fund(t, "alice", "USDC", 1000*usdc1)
	f.fund(t, "bob", "SOL", 10*sol1)
	f.fund(t, "carol", "USDC", 1000*usdc1)

	aliceAsk, err := f.eng.Submit(limitReq("alice", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)
	bobAsk, err := f.eng.Submit(limitReq("bob", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)

	// Alice lifts half the level. Her own ask at the front is skipped
	// and re-queued, so the fill comes from bob.
	res, err := f.eng.Submit(limitReq("alice", order.Buy, order.IOC, px101, 5*sol01))
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.Equal(t, bobAsk.Order.ID, f.pub.trades[0].MakerOrderID)

	// The skip put alice behind bob: carol's taker hits bob's remainder
	// first even though alice rested before him.
	_, err = f.eng.Submit(limitReq("carol", order.Buy, order.IOC, px101, 5*sol01))
	require.NoError(t, err)
	require.Equal(t, bobAsk.Order.ID, f.pub.trades[1].MakerOrderID)

	bobNow, _ := f.eng.Order(bobAsk.Order.ID)
	require.Equal(t, order.Filled, bobNow.Status)
	aliceNow, _ := f.eng.Order(aliceAsk.Order.ID)
	require.Equal(t, order.Pending, aliceNow.Status)
	require.Zero(t, aliceNow.Filled)
}

func TestSelfMatchAllowedByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "u", "SOL", 10*sol1)
	f.fund(t, "u", "USDC", 1000*usdc1)

	own, err := f.eng.Submit(limitReq("u", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)

	res, err := f.eng.Submit(limitReq("u", order.Buy, order.GTC, px101, sol1))
	require.NoError(t, err)
	require.Equal(t, order.Filled, res.Order.Status)

	ownNow, _ := f.eng.Order(own.Order.ID)
	require.Equal(t, order.Filled, ownNow.Status)

	// both fees still flow to the collector
	totals := f.lgr.TotalsByAsset()
	require.Equal(t, int64(10*sol1), totals["SOL"])
	require.Equal(t, int64(1000*usdc1), totals["USDC"])
	require.Positive(t, f.lgr.Balance("fee-collector", "SOL").Available)
	require.Positive(t, f.lgr.Balance("fee-collector", "USDC").Available)
}

func TestHaltedPairRefusesSubmits(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "u", "USDC", 1000*usdc1)

	pe := f.eng.pairs["SOL/USDC"]
	pe.mu.Lock()
	pe.halted = true
	pe.mu.Unlock()

	_, err := f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, sol1))
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeUnavailable, rej.Code)

	stats, err := f.eng.Stats("SOL/USDC")
	require.NoError(t, err)
	require.True(t, stats.Halted)

	require.NoError(t, f.eng.Resume("SOL/USDC"))
	_, err = f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, sol1))
	require.NoError(t, err)
}

func TestSettlementInconsistencyHaltsMidWalk(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "m1", "SOL", 10*sol1)
	f.fund(t, "m2", "SOL", 10*sol1)
	f.fund(t, "taker", "USDC", 1000*usdc1)

	_, err := f.eng.Submit(limitReq("m1", order.Sell, order.GTC, px100, sol1))
	require.NoError(t, err)
	second, err := f.eng.Submit(limitReq("m2", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)

	// Knock out the second maker's reservation behind the engine's
	// back; settling against it must detect the shortfall.
	require.NoError(t, f.lgr.Unlock("m2", "SOL", sol1, second.Order.ID))

	res, err := f.eng.Submit(limitReq("taker", order.Buy, order.GTC, px101, 2*sol1))
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeLedgerInconsistent, rej.Code)

	// The first fill settled before the failure and stands; the
	// remainder is rejected, not retried.
	require.Equal(t, order.Rejected, res.Order.Status)
	require.Len(t, res.Fills, 1)
	require.Equal(t, int64(sol1), res.Order.Filled)
	require.Equal(t, int64(px100), res.Order.AvgPrice)

	// 202 USDC reserved, 100 consumed by the fill, the rest released.
	b := f.lgr.Balance("taker", "USDC")
	require.Zero(t, b.Locked)
	require.Equal(t, int64(900*usdc1), b.Available)

	stats, err := f.eng.Stats("SOL/USDC")
	require.NoError(t, err)
	require.True(t, stats.Halted)

	_, err = f.eng.Submit(limitReq("taker", order.Buy, order.GTC, px99, sol1))
	rej, ok = AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeUnavailable, rej.Code)

	require.NoError(t, f.eng.Resume("SOL/USDC"))
	res2, err := f.eng.Submit(limitReq("taker", order.Buy, order.GTC, px99, sol1))
	require.NoError(t, err)
	require.Equal(t, order.Pending, res2.Order.Status)
}

func TestStoreDownRefusesAdmission(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "u", "USDC", 1000*usdc1)
	f.store.failSaves = true

	_, err := f.eng.Submit(limitReq("u", order.Buy, order.GTC, px100, sol1))
	rej, ok := AsReject(err)
	require.True(t, ok)
	require.Equal(t, CodeUnavailable, rej.Code)

	b := f.lgr.Balance("u", "USDC")
	require.Equal(t, int64(1000*usdc1), b.Available)
	require.Zero(t, b.Locked)
}

func TestTickerTracksTrades(t *testing.T) {
	f := newFixture(t, Options{})
	f.fund(t, "m", "SOL", 10*sol1)
	f.fund(t, "t", "USDC", 1000*usdc1)

	_, err := f.eng.Submit(limitReq("m", order.Sell, order.GTC, px101, sol1))
	require.NoError(t, err)
	_, err = f.eng.Submit(limitReq("m", order.Sell, order.GTC, px1015, sol1))
	require.NoError(t, err)
	_, err = f.eng.Submit(limitReq("t", order.Buy, order.IOC, px101, sol1))
	require.NoError(t, err)

	tk, err := f.eng.Ticker("SOL/USDC")
	require.NoError(t, err)
	require.Equal(t, int64(px101), tk.LastPrice)
	require.Equal(t, int64(px1015), tk.BestAsk)
	require.Equal(t, int64(sol1), tk.Volume24h)
	require.Equal(t, int64(px101), tk.High24h)
	require.Equal(t, int64(px101), tk.Low24h)
}

func TestRebuildRestoresBook(t *testing.T) {
	f := newFixture(t, Options{})

	orders := []*order.Order{
		{ID: "o1", UserID: "u", Pair: "SOL/USDC", Type: order.Limit, Side: order.Buy,
			Price: px100, Amount: sol1, Status: order.Pending,
			LockedAsset: "USDC", LockedAmount: 100 * usdc1, LockedRemaining: 100 * usdc1},
		{ID: "o2", UserID: "u", Pair: "SOL/USDC", Type: order.Limit, Side: order.Sell,
			Price: px101, Amount: 2 * sol1, Filled: sol1, AvgPrice: px101, Status: order.Partial,
			LockedAsset: "SOL", LockedAmount: 2 * sol1, LockedRemaining: sol1},
		{ID: "o3", UserID: "u", Pair: "SOL/USDC", Type: order.Limit, Side: order.Sell,
			Price: px101, Amount: sol1, Filled: sol1, Status: order.Filled},
	}
	require.NoError(t, f.eng.Rebuild(orders))

	snap, err := f.eng.BookSnapshot("SOL/USDC", 10)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	require.Equal(t, int64(sol1), snap.Bids[0].Amount)
	require.Len(t, snap.Asks, 1)
	require.Equal(t, int64(sol1), snap.Asks[0].Amount)

	open := f.eng.OpenOrders("u", "")
	require.Len(t, open, 2)
}
