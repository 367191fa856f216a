// Package feed polls an external HTTP price source and stores the
// latest reference price per pair in the price cache. The trading core
// never blocks on the feed; consumers read the cache and treat a stale
// value as no price.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/cache"
	"github.com/helixmarkets/helix/pkg/num"
)

// Options configure the poller.
type Options struct {
	// BaseURL of the price endpoint; queried as
	// GET <BaseURL>?base=<SYM>&quote=<SYM>.
	BaseURL string
	// Interval between polls, ~5s.
	Interval time.Duration
	// Timeout per HTTP request.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	return o
}

// quoteResponse is the upstream payload: price as a decimal string.
type quoteResponse struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
	Price string `json:"price"`
}

// Poller fetches reference prices for every active pair.
type Poller struct {
	registry *asset.Registry
	cache    *cache.PriceCache
	client   *http.Client
	log      *zap.SugaredLogger
	opts     Options
}

func NewPoller(registry *asset.Registry, c *cache.PriceCache, log *zap.SugaredLogger, opts Options) *Poller {
	opts = opts.withDefaults()
	return &Poller{
		registry: registry,
		cache:    c,
		client:   &http.Client{Timeout: opts.Timeout},
		log:      log,
		opts:     opts,
	}
}

// Run polls until the context is cancelled. The first poll happens
// immediately so the market maker has a price at startup.
func (p *Poller) Run(ctx context.Context) {
	p.pollOnce(ctx)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for _, pair := range p.registry.ActivePairs() {
		price, err := p.fetch(ctx, pair)
		if err != nil {
			p.log.Warnw("price_fetch_failed", "pair", pair.Symbol, "err", err)
			continue
		}
		if err := p.cache.SetPrice(pair.Symbol, price); err != nil {
			p.log.Warnw("price_cache_write_failed", "pair", pair.Symbol, "err", err)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, pair *asset.Pair) (int64, error) {
	u, err := url.Parse(p.opts.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("bad feed url: %w", err)
	}
	q := u.Query()
	q.Set("base", pair.Base.Symbol)
	q.Set("quote", pair.Quote.Symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed returned %s", resp.Status)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, fmt.Errorf("decode quote: %w", err)
	}
	price, err := num.Parse(quote.Price, pair.Quote.Decimals)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", quote.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %q", quote.Price)
	}
	return price, nil
}
