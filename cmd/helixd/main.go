// Command helixd runs the exchange: matching engine, ledger, REST and
// WebSocket API, reference-price feed, and the house market maker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helixmarkets/helix/params"
	"github.com/helixmarkets/helix/pkg/api"
	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/bus"
	"github.com/helixmarkets/helix/pkg/cache"
	"github.com/helixmarkets/helix/pkg/engine"
	"github.com/helixmarkets/helix/pkg/feed"
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/maker"
	"github.com/helixmarkets/helix/pkg/metrics"
	"github.com/helixmarkets/helix/pkg/num"
	"github.com/helixmarkets/helix/pkg/order"
	"github.com/helixmarkets/helix/pkg/store"
	"github.com/helixmarkets/helix/pkg/util"
)

func main() {
	var configPath, envPath, listen string

	root := &cobra.Command{
		Use:   "helixd",
		Short: "helix spot exchange daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := params.Load(configPath, envPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Listen = listen
			}
			return run(cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file path")
	root.Flags().StringVar(&envPath, "env", "", ".env file path")
	root.Flags().StringVar(&listen, "listen", "", "override api.listen")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// publisher fans engine events out to the bus and records them in the
// trade metrics and the recent-trade journal.
type publisher struct {
	bus     *bus.Bus
	metrics *metrics.Collector
	trades  *cache.PriceCache
	log     *zap.SugaredLogger
}

var _ engine.Publisher = (*publisher)(nil)

func (p *publisher) PublishBookChange(pair string, seq uint64) {
	p.bus.PublishBookChange(pair, seq)
}

func (p *publisher) PublishTrade(t order.Trade) {
	p.metrics.TradesTotal.WithLabelValues(t.Pair).Inc()
	p.metrics.TradeVolume.WithLabelValues(t.Pair).Add(float64(t.Amount))
	if err := p.trades.RecordTrade(t); err != nil {
		p.log.Warnw("trade_journal_write_failed", "pair", t.Pair, "seq", t.Seq, "err", err)
	}
	p.bus.PublishTrade(t)
}

func (p *publisher) PublishOrderUpdate(o order.Order) {
	p.bus.PublishOrderUpdate(o)
}

func run(cfg params.Config) error {
	var logger *zap.Logger
	var err error
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Persistence ----
	var db store.Store
	if cfg.Persistence.PostgresURL != "" {
		db, err = store.OpenPostgres(ctx, store.PostgresConfig{URL: cfg.Persistence.PostgresURL})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		log.Infow("store_postgres")
	} else {
		db = store.NewMemory()
		log.Infow("store_memory")
	}
	defer db.Close()

	// ---- Assets and pairs ----
	registry := asset.NewRegistry()
	if err := seedRegistry(registry); err != nil {
		return fmt.Errorf("seed registry: %w", err)
	}

	// ---- Ledger, restored from the balance snapshots ----
	lgr := ledger.New(db)
	balances, err := db.LoadBalances()
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	for user, rows := range balances {
		for _, b := range rows {
			lgr.Restore(user, b)
		}
	}

	// ---- Recent-trade and reference-price cache ----
	trades, err := cache.Open(cfg.Cache.Path, cfg.Cache.PriceTTL)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer trades.Close()

	// ---- Engine and fan-out ----
	collector := metrics.NewCollector()
	pub := &publisher{metrics: collector, trades: trades, log: log}
	eng := engine.New(registry, lgr, db, pub, log, engine.Options{})
	pub.bus = bus.New(eng, log, bus.Options{
		QueueSize:      cfg.Bus.QueueSize,
		SnapshotDepth:  cfg.Bus.SnapshotDepth,
		TickerInterval: cfg.Bus.TickerInterval,
	})

	open, err := db.LoadOpenOrders()
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	if err := eng.Rebuild(open); err != nil {
		return fmt.Errorf("rebuild books: %w", err)
	}
	log.Infow("books_rebuilt", "orders", len(open))

	srv := api.NewServer(api.Deps{
		Registry: registry,
		Engine:   eng,
		Ledger:   lgr,
		Store:    db,
		Bus:      pub.bus,
		Trades:   trades,
		Metrics:  collector,
		Log:      log,
	}, api.Config{
		AllowedOrigins: cfg.API.AllowedOrigins,
		AdminKey:       cfg.API.AdminKey,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Start(cfg.API.Listen) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pub.bus.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Feed.Enabled {
		poller := feed.NewPoller(registry, trades, log, feed.Options{
			BaseURL:  cfg.Feed.BaseURL,
			Interval: cfg.Feed.Interval,
			Timeout:  cfg.Feed.Timeout,
		})
		g.Go(func() error {
			poller.Run(ctx)
			return nil
		})
	}

	if cfg.Maker.Enabled {
		mk, err := buildMaker(cfg, registry, eng, lgr, trades, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			mk.Run(ctx)
			return nil
		})
	}

	log.Infow("helixd_started", "listen", cfg.API.Listen,
		"feed", cfg.Feed.Enabled, "maker", cfg.Maker.Enabled)
	return g.Wait()
}

// seedRegistry installs the launch assets and pairs. Listings are a
// deploy-time decision; adding one means a new row here and a restart.
func seedRegistry(r *asset.Registry) error {
	sol := &asset.Asset{
		Symbol: "SOL", Chain: "solana", Decimals: 9,
		MinDeposit: 100_000_000, MinWithdraw: 100_000_000, Active: true,
	}
	usdc := &asset.Asset{
		Symbol: "USDC", Chain: "solana", Decimals: 6,
		MinDeposit: 1_000_000, MinWithdraw: 1_000_000, Active: true,
	}
	for _, a := range []*asset.Asset{sol, usdc} {
		if err := r.RegisterAsset(a); err != nil {
			return err
		}
	}
	return r.RegisterPair(&asset.Pair{
		Symbol: asset.PairSymbol("SOL", "USDC"), Base: sol, Quote: usdc,
		PriceTick:    10_000,          // 0.01 USDC
		LotStep:      100_000_000,     // 0.1 SOL
		MinOrderSize: 100_000_000,     // 0.1 SOL
		MaxOrderSize: 100_000_000_000, // 100 SOL
		MakerFeeBps:  10,
		TakerFeeBps:  20,
		Active:       true,
	})
}

func buildMaker(cfg params.Config, registry *asset.Registry, eng *engine.Engine, lgr *ledger.Ledger, prices maker.PriceSource, log *zap.SugaredLogger) (*maker.Maker, error) {
	var pairs []maker.PairConfig
	topUp := make(map[string]int64)
	for _, p := range registry.ActivePairs() {
		size, err := num.Parse(cfg.Maker.OrderSize, p.Base.Decimals)
		if err != nil {
			return nil, fmt.Errorf("maker.orderSize: %w", err)
		}
		size = num.SnapDown(size, p.LotStep)
		if size < p.MinOrderSize {
			return nil, fmt.Errorf("maker.orderSize below minimum for %s", p.Symbol)
		}
		pairs = append(pairs, maker.PairConfig{
			Pair:         p.Symbol,
			SpreadBps:    cfg.Maker.SpreadBps,
			OrderSize:    size,
			MaxOrders:    cfg.Maker.MaxOrders,
			DeviationBps: cfg.Maker.DeviationBps,
			Enabled:      true,
		})
		// Enough for roughly 100 maker-sized orders per asset, assuming
		// the reference price stays under 1000 quote per base.
		topUp[p.Base.Symbol] = size * 100
		topUp[p.Quote.Symbol] = p.QuoteValueCeil(size, 1000*p.Quote.Unit()) * 100
	}
	return maker.New(eng, lgr, registry, prices, log, pairs, maker.Options{
		UserID: cfg.Maker.UserID,
		TopUp:  topUp,
	}), nil
}
