// Package api is the HTTP surface: REST endpoints under /api/v1, the
// /ws streaming upgrade, /metrics, and /health. Identity is the
// X-User-Id header; signatures and sessions live outside this service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/bus"
	"github.com/helixmarkets/helix/pkg/cache"
	"github.com/helixmarkets/helix/pkg/engine"
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/metrics"
	"github.com/helixmarkets/helix/pkg/num"
	"github.com/helixmarkets/helix/pkg/order"
	"github.com/helixmarkets/helix/pkg/store"
)

// Deps wires the server to the rest of the system.
type Deps struct {
	Registry *asset.Registry
	Engine   *engine.Engine
	Ledger   *ledger.Ledger
	Store    store.Store
	Bus      *bus.Bus
	Trades   *cache.PriceCache
	Metrics  *metrics.Collector
	Log      *zap.SugaredLogger
}

// Config tunes the HTTP listener.
type Config struct {
	AllowedOrigins []string
	// AdminKey gates the /admin endpoints via the X-Admin-Key header.
	// Empty means open, for devnet.
	AdminKey string
}

// Server handles REST and WebSocket traffic.
type Server struct {
	registry *asset.Registry
	eng      *engine.Engine
	lgr      *ledger.Ledger
	db       store.Store
	bus      *bus.Bus
	trades   *cache.PriceCache
	metrics  *metrics.Collector
	log      *zap.SugaredLogger
	cfg      Config

	router *mux.Router
	srv    *http.Server
}

func NewServer(d Deps, cfg Config) *Server {
	s := &Server{
		registry: d.Registry,
		eng:      d.Engine,
		lgr:      d.Ledger,
		db:       d.Store,
		bus:      d.Bus,
		trades:   d.Trades,
		metrics:  d.Metrics,
		log:      d.Log,
		cfg:      cfg,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market data
	api.HandleFunc("/pairs", s.instrument("pairs", s.handleGetPairs)).Methods("GET")
	api.HandleFunc("/orderbook/{symbol}", s.instrument("orderbook", s.handleGetOrderbook)).Methods("GET")
	api.HandleFunc("/ticker/{symbol}", s.instrument("ticker", s.handleGetTicker)).Methods("GET")
	api.HandleFunc("/trades/{symbol}", s.instrument("trades", s.handleGetTrades)).Methods("GET")

	// Trading
	api.HandleFunc("/orders", s.instrument("submit_order", s.handleSubmitOrder)).Methods("POST")
	api.HandleFunc("/orders/cancel", s.instrument("cancel_order", s.handleCancelOrder)).Methods("POST")
	api.HandleFunc("/orders/open", s.instrument("open_orders", s.handleGetOpenOrders)).Methods("GET")
	api.HandleFunc("/orders/{id}", s.instrument("get_order", s.handleGetOrder)).Methods("GET")
	api.HandleFunc("/orders", s.instrument("list_orders", s.handleListOrders)).Methods("GET")

	// Funds
	api.HandleFunc("/balances", s.instrument("balances", s.handleGetBalances)).Methods("GET")
	api.HandleFunc("/ledger", s.instrument("ledger_history", s.handleLedgerHistory)).Methods("GET")
	api.HandleFunc("/deposit", s.instrument("deposit", s.handleDeposit)).Methods("POST")
	api.HandleFunc("/withdraw", s.instrument("withdraw", s.handleWithdraw)).Methods("POST")

	// Operator surface
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/pairs/{symbol}/stats", s.instrument("admin_stats", s.handlePairStats)).Methods("GET")
	admin.HandleFunc("/pairs/{symbol}/resume", s.instrument("admin_resume", s.handlePairResume)).Methods("POST")
	admin.HandleFunc("/pairs/{symbol}/active", s.instrument("admin_active", s.handlePairActive)).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied; exposed for
// tests.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-User-Id", "X-Admin-Key"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Infow("api_listening", "addr", addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// instrument records request count and latency per logical route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		s.metrics.APIRequestsTotal.WithLabelValues(route, statusClass(sw.status)).Inc()
		s.metrics.APILatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey != "" && r.Header.Get("X-Admin-Key") != s.cfg.AdminKey {
			respondError(w, http.StatusForbidden, "forbidden", "", "bad admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userID pulls the caller identity from the request. Empty means the
// endpoint cannot serve the request.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// pathSymbol maps the URL form "SOL-USDC" to the canonical "SOL/USDC".
func pathSymbol(r *http.Request) string {
	return strings.ReplaceAll(mux.Vars(r)["symbol"], "-", "/")
}

// ==============================
// Market data
// ==============================

func (s *Server) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := s.registry.Pairs()
	out := make([]PairInfo, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, pairInfo(p))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth := 20
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			respondError(w, http.StatusBadRequest, "invalid depth", "VALIDATION", "depth must be 1..200")
			return
		}
		depth = n
	}
	// Snapshot levels carry fixed-point units, same shape as the stream.
	snap, err := s.eng.BookSnapshot(pathSymbol(r), depth)
	if err != nil {
		s.respondReject(w, err)
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetTicker(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	p, ok := s.registry.Pair(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "pair not found", "NOT_FOUND", symbol)
		return
	}
	t, err := s.eng.Ticker(symbol)
	if err != nil {
		s.respondReject(w, err)
		return
	}
	respondJSON(w, tickerInfo(t, p))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	p, ok := s.registry.Pair(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "pair not found", "NOT_FOUND", symbol)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid limit", "VALIDATION", "limit must be 1..500")
			return
		}
		limit = n
	}
	trades, err := s.trades.RecentTrades(symbol, limit)
	if err != nil {
		s.log.Warnw("trade_journal_read_failed", "pair", symbol, "err", err)
		respondError(w, http.StatusServiceUnavailable, "trade history unavailable", "UNAVAILABLE", "")
		return
	}
	out := make([]TradeInfo, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeInfo(t, p))
	}
	respondJSON(w, out)
}

// ==============================
// Trading
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION", err.Error())
		return
	}

	p, ok := s.registry.Pair(req.Pair)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown pair", "VALIDATION", req.Pair)
		return
	}
	typ, ok := order.ParseType(req.Type)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order type", "VALIDATION", req.Type)
		return
	}
	side, ok := order.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid side", "VALIDATION", req.Side)
		return
	}
	tif := order.GTC
	if req.TimeInForce != "" {
		tif, ok = order.ParseTimeInForce(req.TimeInForce)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid timeInForce", "VALIDATION", req.TimeInForce)
			return
		}
	}

	sub := engine.SubmitRequest{
		UserID:        user,
		Pair:          req.Pair,
		Type:          typ,
		Side:          side,
		TimeInForce:   tif,
		ClientOrderID: req.ClientOrderID,
	}
	var err error
	if sub.Amount, err = num.Parse(req.Amount, p.Base.Decimals); err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", "VALIDATION", err.Error())
		return
	}
	if req.Price != "" {
		if sub.Price, err = num.Parse(req.Price, p.Quote.Decimals); err != nil {
			respondError(w, http.StatusBadRequest, "invalid price", "VALIDATION", err.Error())
			return
		}
	}
	if req.QuoteBudget != "" {
		if sub.QuoteBudget, err = num.Parse(req.QuoteBudget, p.Quote.Decimals); err != nil {
			respondError(w, http.StatusBadRequest, "invalid quoteBudget", "VALIDATION", err.Error())
			return
		}
	}

	res, err := s.eng.Submit(sub)
	if err != nil {
		if rej, ok := engine.AsReject(err); ok {
			s.metrics.OrderRejects.WithLabelValues(req.Pair, string(rej.Code)).Inc()
		}
		s.respondReject(w, err)
		return
	}

	o := res.Order
	s.metrics.OrdersTotal.WithLabelValues(o.Pair, o.Side.String(), o.Status.String()).Inc()
	s.observePair(o.Pair)

	resp := SubmitOrderResponse{
		OrderID:   o.ID,
		Status:    o.Status.String(),
		Filled:    num.Format(o.Filled, p.Base.Decimals),
		Remaining: num.Format(o.Remaining(), p.Base.Decimals),
		Fills:     make([]FillInfo, 0, len(res.Fills)),
	}
	if o.AvgPrice != 0 {
		resp.AveragePrice = num.Format(o.AvgPrice, p.Quote.Decimals)
	}
	for _, f := range res.Fills {
		resp.Fills = append(resp.Fills, fillInfo(f, p, s.registry))
	}
	respondJSON(w, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION", err.Error())
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId", "VALIDATION", "")
		return
	}

	o, err := s.eng.Cancel(user, req.OrderID)
	if err != nil {
		s.respondReject(w, err)
		return
	}
	s.observePair(o.Pair)
	respondJSON(w, CancelOrderResponse{OrderID: o.ID, Status: o.Status.String()})
}

func (s *Server) handleGetOpenOrders(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	open := s.eng.OpenOrders(user, r.URL.Query().Get("pair"))
	out := make([]OrderInfo, 0, len(open))
	for _, o := range open {
		p, ok := s.registry.Pair(o.Pair)
		if !ok {
			continue
		}
		out = append(out, orderInfo(o, p))
	}
	respondJSON(w, out)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	q := r.URL.Query()
	f := store.OrderFilter{
		UserID: user,
		Pair:   q.Get("pair"),
		Status: q.Get("status"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	page, err := s.db.ListOrders(f)
	if err != nil {
		s.log.Errorw("list_orders_failed", "user", user, "err", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable", "UNAVAILABLE", "")
		return
	}
	resp := OrderListResponse{
		Orders:   make([]OrderInfo, 0, len(page.Orders)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for _, o := range page.Orders {
		p, ok := s.registry.Pair(o.Pair)
		if !ok {
			continue
		}
		resp.Orders = append(resp.Orders, orderInfo(o, p))
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	id := mux.Vars(r)["id"]
	o, ok, err := s.db.Order(id)
	if err != nil {
		s.log.Errorw("get_order_failed", "order", id, "err", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable", "UNAVAILABLE", "")
		return
	}
	// Ownership before existence: a foreign id looks like a missing one.
	if !ok || o.UserID != user {
		respondError(w, http.StatusNotFound, "order not found", "NOT_FOUND", id)
		return
	}
	p, pok := s.registry.Pair(o.Pair)
	if !pok {
		respondError(w, http.StatusNotFound, "order not found", "NOT_FOUND", id)
		return
	}
	fills, err := s.db.Fills(id)
	if err != nil {
		s.log.Errorw("get_fills_failed", "order", id, "err", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable", "UNAVAILABLE", "")
		return
	}
	info := orderInfo(o, p)
	out := struct {
		OrderInfo
		Fills []FillInfo `json:"fills"`
	}{OrderInfo: info, Fills: make([]FillInfo, 0, len(fills))}
	for _, f := range fills {
		out.Fills = append(out.Fills, fillInfo(f, p, s.registry))
	}
	respondJSON(w, out)
}

// ==============================
// Funds
// ==============================

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	balances := s.lgr.Balances(user)
	out := make([]BalanceInfo, 0, len(balances))
	for _, b := range balances {
		decimals := 0
		if a, ok := s.registry.Asset(b.Asset); ok {
			decimals = a.Decimals
		}
		out = append(out, balanceInfo(b, decimals))
	}
	respondJSON(w, out)
}

func (s *Server) handleLedgerHistory(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	q := r.URL.Query()
	f := store.EntryFilter{
		UserID: user,
		Asset:  q.Get("asset"),
		Kind:   q.Get("kind"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	page, err := s.db.ListEntries(f)
	if err != nil {
		s.log.Errorw("ledger_history_failed", "user", user, "err", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable", "UNAVAILABLE", "")
		return
	}
	resp := LedgerHistoryResponse{
		Entries:  make([]LedgerEntryInfo, 0, len(page.Entries)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for _, e := range page.Entries {
		resp.Entries = append(resp.Entries, entryInfo(e, s.registry))
	}
	respondJSON(w, resp)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION", err.Error())
		return
	}
	a, ok := s.registry.Asset(req.Asset)
	if !ok || !a.Active {
		respondError(w, http.StatusBadRequest, "unknown asset", "VALIDATION", req.Asset)
		return
	}
	amount, err := num.Parse(req.Amount, a.Decimals)
	if err != nil || amount <= 0 {
		respondError(w, http.StatusBadRequest, "invalid amount", "VALIDATION", req.Amount)
		return
	}
	if amount < a.MinDeposit {
		respondError(w, http.StatusBadRequest, "below minimum deposit", "VALIDATION",
			num.Format(a.MinDeposit, a.Decimals))
		return
	}
	if err := s.lgr.Credit(user, a.Symbol, amount, ledger.KindDeposit, "", "deposit"); err != nil {
		s.log.Errorw("deposit_failed", "user", user, "asset", a.Symbol, "err", err)
		respondError(w, http.StatusServiceUnavailable, "deposit failed", "UNAVAILABLE", "")
		return
	}
	respondJSON(w, balanceInfo(s.lgr.Balance(user, a.Symbol), a.Decimals))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "", "missing X-User-Id header")
		return
	}
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION", err.Error())
		return
	}
	a, ok := s.registry.Asset(req.Asset)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown asset", "VALIDATION", req.Asset)
		return
	}
	amount, err := num.Parse(req.Amount, a.Decimals)
	if err != nil || amount <= 0 {
		respondError(w, http.StatusBadRequest, "invalid amount", "VALIDATION", req.Amount)
		return
	}
	if amount < a.MinWithdraw {
		respondError(w, http.StatusBadRequest, "below minimum withdrawal", "VALIDATION",
			num.Format(a.MinWithdraw, a.Decimals))
		return
	}
	if err := s.lgr.Debit(user, a.Symbol, amount, ledger.KindWithdrawal, "", "withdrawal"); err != nil {
		if errors.Is(err, ledger.ErrInsufficientAvailable) {
			respondError(w, http.StatusBadRequest, "insufficient available balance",
				string(engine.CodeInsufficientAvailable), err.Error())
			return
		}
		s.log.Errorw("withdraw_failed", "user", user, "asset", a.Symbol, "err", err)
		respondError(w, http.StatusServiceUnavailable, "withdrawal failed", "UNAVAILABLE", "")
		return
	}
	respondJSON(w, balanceInfo(s.lgr.Balance(user, a.Symbol), a.Decimals))
}

// ==============================
// Operator surface
// ==============================

func (s *Server) handlePairStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.eng.Stats(pathSymbol(r))
	if err != nil {
		s.respondReject(w, err)
		return
	}
	respondJSON(w, stats)
}

func (s *Server) handlePairResume(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	if err := s.eng.Resume(symbol); err != nil {
		s.respondReject(w, err)
		return
	}
	s.log.Infow("pair_resumed", "pair", symbol)
	respondJSON(w, map[string]string{"pair": symbol, "status": "resumed"})
}

func (s *Server) handlePairActive(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "VALIDATION", err.Error())
		return
	}
	if err := s.registry.SetPairActive(symbol, req.Active); err != nil {
		respondError(w, http.StatusNotFound, "pair not found", "NOT_FOUND", symbol)
		return
	}
	s.log.Infow("pair_active_set", "pair", symbol, "active", req.Active)
	respondJSON(w, map[string]any{"pair": symbol, "active": req.Active})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// observePair refreshes the depth and spread gauges after a mutation.
func (s *Server) observePair(pair string) {
	stats, err := s.eng.Stats(pair)
	if err != nil {
		return
	}
	s.metrics.BookDepth.WithLabelValues(pair, "buy").Set(float64(stats.BidCount))
	s.metrics.BookDepth.WithLabelValues(pair, "sell").Set(float64(stats.AskCount))
	if stats.MidPrice > 0 {
		s.metrics.SpreadBps.WithLabelValues(pair).Set(float64(stats.Spread) / float64(stats.MidPrice) * 10000)
	}
}

// ==============================
// Helpers
// ==============================

// respondReject maps an engine rejection to an HTTP status. Anything
// that is not a Reject is an internal error.
func (s *Server) respondReject(w http.ResponseWriter, err error) {
	rej, ok := engine.AsReject(err)
	if !ok {
		s.log.Errorw("internal_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "", "")
		return
	}
	var status int
	switch rej.Code {
	case engine.CodeNotFound:
		status = http.StatusNotFound
	case engine.CodeUnavailable:
		status = http.StatusServiceUnavailable
	case engine.CodeLedgerInconsistent:
		status = http.StatusInternalServerError
	default:
		// VALIDATION, INSUFFICIENT_*, NO_LIQUIDITY: the request was
		// understood and refused.
		status = http.StatusBadRequest
	}
	respondError(w, status, rej.Reason, string(rej.Code), "")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Code: code, Message: detail})
}
