// Package maker runs the house market maker: a background actor that
// keeps a two-sided quote ladder on each enabled pair, anchored to the
// external reference price. It trades through the same submit/cancel
// pipeline as any client and holds no special privileges beyond a
// pre-funded account.
package maker

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/engine"
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/num"
	"github.com/helixmarkets/helix/pkg/order"
)

// PairConfig is the per-pair quoting policy.
type PairConfig struct {
	Pair string
	// SpreadBps is the full bid-ask spread around the reference price.
	SpreadBps int64
	// OrderSize in base units, jittered ±10% per quote.
	OrderSize int64
	// MaxOrders per side.
	MaxOrders int
	// DeviationBps: a resting quote further than this from the
	// reference price is cancelled as stale.
	DeviationBps int64
	Enabled      bool
}

// Options configure the actor.
type Options struct {
	// UserID is the maker's trading account.
	UserID string
	// Cadence bounds; each iteration sleeps a uniform random duration
	// in [Min, Max]. Defaults 3s and 8s.
	MinCadence time.Duration
	MaxCadence time.Duration
	// TopUp amounts per asset for the one-shot self-funding retry when
	// the maker account runs dry.
	TopUp map[string]int64
}

func (o Options) withDefaults() Options {
	if o.UserID == "" {
		o.UserID = "market-maker"
	}
	if o.MinCadence <= 0 {
		o.MinCadence = 3 * time.Second
	}
	if o.MaxCadence <= o.MinCadence {
		o.MaxCadence = o.MinCadence + 5*time.Second
	}
	return o
}

// PriceSource yields the latest reference price for a pair, if fresh.
type PriceSource interface {
	Price(pair string) (int64, bool)
}

// levelStepBps is the per-level price offset of the ladder.
const levelStepBps = 10

type Maker struct {
	eng      *engine.Engine
	lgr      *ledger.Ledger
	registry *asset.Registry
	prices   PriceSource
	log      *zap.SugaredLogger
	opts     Options
	pairs    []PairConfig
	rng      *rand.Rand

	toppedUp map[string]bool
}

func New(eng *engine.Engine, lgr *ledger.Ledger, registry *asset.Registry, prices PriceSource, log *zap.SugaredLogger, pairs []PairConfig, opts Options) *Maker {
	return &Maker{
		eng:      eng,
		lgr:      lgr,
		registry: registry,
		prices:   prices,
		log:      log,
		opts:     opts.withDefaults(),
		pairs:    pairs,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		toppedUp: make(map[string]bool),
	}
}

// Run quotes until the context is cancelled. In-flight submits finish;
// resting quotes stay on the book for the engine to manage.
func (m *Maker) Run(ctx context.Context) {
	for {
		for _, cfg := range m.pairs {
			if !cfg.Enabled {
				continue
			}
			m.quoteOnce(cfg)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cadence()):
		}
	}
}

func (m *Maker) cadence() time.Duration {
	span := m.opts.MaxCadence - m.opts.MinCadence
	return m.opts.MinCadence + time.Duration(m.rng.Int63n(int64(span)))
}

// quoteOnce runs one iteration for one pair: drop stale quotes, then
// top up the thinner side of the ladder with one fresh order.
func (m *Maker) quoteOnce(cfg PairConfig) {
	ref, ok := m.prices.Price(cfg.Pair)
	if !ok {
		m.log.Debugw("maker_no_reference_price", "pair", cfg.Pair)
		return
	}
	pair, ok := m.registry.Pair(cfg.Pair)
	if !ok {
		return
	}

	open := m.eng.OpenOrders(m.opts.UserID, cfg.Pair)
	var bids, asks int
	for _, o := range open {
		if stale(o.Price, ref, cfg.DeviationBps) {
			if _, err := m.eng.Cancel(m.opts.UserID, o.ID); err != nil {
				m.log.Warnw("maker_cancel_failed", "order", o.ID, "err", err)
			}
			continue
		}
		if o.Side == order.Buy {
			bids++
		} else {
			asks++
		}
	}

	side, ok := m.pickSide(bids, asks, cfg.MaxOrders)
	if !ok {
		return
	}

	price := m.ladderPrice(side, ref, cfg.SpreadBps, pair.PriceTick, cfg.MaxOrders)
	size := m.jitterSize(cfg.OrderSize, pair.LotStep, pair.MinOrderSize)

	req := engine.SubmitRequest{
		UserID: m.opts.UserID, Pair: cfg.Pair, Type: order.Limit,
		Side: side, TimeInForce: order.GTC, Price: price, Amount: size,
	}
	if _, err := m.eng.Submit(req); err != nil {
		if rej, ok := engine.AsReject(err); ok && rej.Code == engine.CodeInsufficientAvailable {
			if m.topUpAndRetry(req, pair) {
				return
			}
		}
		m.log.Warnw("maker_quote_rejected", "pair", cfg.Pair, "side", side, "err", err)
	}
}

// pickSide chooses which side to quote: random while both have room,
// otherwise the deficient one.
func (m *Maker) pickSide(bids, asks, max int) (order.Side, bool) {
	switch {
	case bids < max && asks < max:
		if m.rng.Intn(2) == 0 {
			return order.Buy, true
		}
		return order.Sell, true
	case bids < max:
		return order.Buy, true
	case asks < max:
		return order.Sell, true
	default:
		return 0, false
	}
}

// ladderPrice is the target price for a new quote: half the spread off
// the reference, pushed out by a random level step, snapped to tick.
func (m *Maker) ladderPrice(side order.Side, ref, spreadBps, tick int64, maxOrders int) int64 {
	half := num.MulDiv(ref, spreadBps, 2*num.BpsDenominator)
	level := int64(m.rng.Intn(maxOrders))
	offset := num.MulDiv(ref, level*levelStepBps, num.BpsDenominator)

	var p int64
	if side == order.Buy {
		p = ref - half - offset
	} else {
		p = ref + half + offset
	}
	p = num.SnapDown(p, tick)
	if p < tick {
		p = tick
	}
	return p
}

// jitterSize varies the quote size ±10%, keeping it lot-aligned and at
// least the pair minimum.
func (m *Maker) jitterSize(size, lot, min int64) int64 {
	jittered := num.MulDiv(size, int64(900+m.rng.Intn(201)), 1000)
	jittered = num.SnapDown(jittered, lot)
	if jittered < min {
		jittered = min
	}
	return jittered
}

// topUpAndRetry funds the maker account once per asset from thin air
// (the account is house-owned) and retries the quote a single time.
func (m *Maker) topUpAndRetry(req engine.SubmitRequest, pair *asset.Pair) bool {
	assetSym := pair.Quote.Symbol
	if req.Side == order.Sell {
		assetSym = pair.Base.Symbol
	}
	amount, ok := m.opts.TopUp[assetSym]
	if !ok || m.toppedUp[assetSym] {
		return false
	}
	m.toppedUp[assetSym] = true

	if err := m.lgr.Credit(m.opts.UserID, assetSym, amount, ledger.KindDeposit, "", "maker top-up"); err != nil {
		m.log.Errorw("maker_top_up_failed", "asset", assetSym, "err", err)
		return false
	}
	m.log.Infow("maker_topped_up", "asset", assetSym, "amount", amount)

	if _, err := m.eng.Submit(req); err != nil {
		m.log.Warnw("maker_quote_rejected_after_top_up", "pair", req.Pair, "err", err)
		return false
	}
	return true
}

// stale reports whether a resting quote has drifted beyond the allowed
// deviation from the reference price.
func stale(price, ref, deviationBps int64) bool {
	diff := price - ref
	if diff < 0 {
		diff = -diff
	}
	return num.MulDiv(diff, num.BpsDenominator, ref) > deviationBps
}
