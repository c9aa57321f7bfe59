package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yhanyi/BasicEngine/db"
	"github.com/yhanyi/BasicEngine/internal/config"
	"github.com/yhanyi/BasicEngine/internal/engine"
	"github.com/yhanyi/BasicEngine/internal/logging"
	"github.com/yhanyi/BasicEngine/pricefeed"
)

type placeOrderRequest struct {
	Pair     string  `json:"pair"` // "BTC/USD"
	Side     string  `json:"side"` // "BUY" | "SELL"
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type placeOrderResponse struct {
	OrderID    uint64    `json:"order_id"`
	Pair       string    `json:"pair"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	RequestID  string    `json:"request_id"`
	ReceivedAt time.Time `json:"received_at"`
}

type server struct {
	inbox   chan<- engine.Message
	orderID atomic.Uint64
}

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := engine.NewMetrics(reg)

	var store engine.TradeStore
	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("database connect failed", zap.Error(err))
		}
		defer pool.Close()
		store = db.NewTradeStore(pool)
		logger.Info("trade persistence enabled")
	}

	cache := pricefeed.NewPriceCache()

	eng := engine.New(engine.Options{
		QueueSize: cfg.Engine.QueueSize,
		Logger:    logger,
		Metrics:   metrics,
		Store:     store,
		Prices:    cache,
	})
	// the engine lives past signal delivery so the shutdown message can drain it
	go eng.Run(context.Background())
	inbox := eng.Inbox()

	if cfg.Pricefeed.Enabled {
		go pricefeed.StartPriceUpdater(ctx, pricefeed.NewCoinGeckoFeed(), inbox,
			cfg.Pricefeed.Markets, time.Duration(cfg.Pricefeed.Interval), logger)
	}

	s := &server{inbox: inbox}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(3 * time.Second))

	r.Post("/orders", s.handlePlaceOrder)
	r.Post("/match/{base}/{quote}", s.handleMatch)
	r.Get("/price/{base}/{quote}", s.handleGetPrice)
	r.Get("/orderbook/{base}/{quote}", s.handleGetOrderBook)
	r.Get("/trades/{base}/{quote}", s.handleGetTrades)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: r}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	// stop the engine after the API surface is quiet
	inbox <- engine.ShutdownMessage()
	select {
	case <-eng.Done():
	case <-shutCtx.Done():
		logger.Warn("engine did not stop in time")
	}
}

func (s *server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	pair, err := engine.ParseTradingPair(req.Pair)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	order := engine.Order{
		ID:        s.orderID.Add(1),
		Pair:      pair,
		Side:      side,
		Price:     req.Price,
		Quantity:  req.Quantity,
		CreatedAt: time.Now().UTC(),
	}
	if err := order.Validate(); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if !s.send(r.Context(), engine.NewOrderMessage(order)) {
		writeProblem(w, r, http.StatusServiceUnavailable, "engine_busy", "order queue full")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(placeOrderResponse{
		OrderID:    order.ID,
		Pair:       pair.String(),
		Side:       string(side),
		Price:      order.Price,
		Quantity:   order.Quantity,
		RequestID:  middleware.GetReqID(r.Context()),
		ReceivedAt: time.Now().UTC(),
	})
}

func (s *server) handleMatch(w http.ResponseWriter, r *http.Request) {
	pair, ok := pairParam(w, r)
	if !ok {
		return
	}
	if !s.send(r.Context(), engine.MatchOrdersMessage(pair)) {
		writeProblem(w, r, http.StatusServiceUnavailable, "engine_busy", "order queue full")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	pair, ok := pairParam(w, r)
	if !ok {
		return
	}
	msg, reply := engine.GetPriceMessage(pair)
	if !s.send(r.Context(), msg) {
		writeProblem(w, r, http.StatusServiceUnavailable, "engine_busy", "order queue full")
		return
	}
	select {
	case price := <-reply:
		respondJSON(w, map[string]any{"pair": pair.String(), "price": price})
	case <-r.Context().Done():
		// abandoning the reply channel is fine; the engine drops the send
		writeProblem(w, r, http.StatusGatewayTimeout, "timeout", "engine did not respond in time")
	}
}

func (s *server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := pairParam(w, r)
	if !ok {
		return
	}
	msg, reply := engine.GetOrderBookMessage(pair)
	if !s.send(r.Context(), msg) {
		writeProblem(w, r, http.StatusServiceUnavailable, "engine_busy", "order queue full")
		return
	}
	select {
	case snap := <-reply:
		respondJSON(w, snap)
	case <-r.Context().Done():
		writeProblem(w, r, http.StatusGatewayTimeout, "timeout", "engine did not respond in time")
	}
}

func (s *server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	pair, ok := pairParam(w, r)
	if !ok {
		return
	}
	msg, reply := engine.GetTradeHistoryMessage(pair)
	if !s.send(r.Context(), msg) {
		writeProblem(w, r, http.StatusServiceUnavailable, "engine_busy", "order queue full")
		return
	}
	select {
	case trades := <-reply:
		respondJSON(w, trades)
	case <-r.Context().Done():
		writeProblem(w, r, http.StatusGatewayTimeout, "timeout", "engine did not respond in time")
	}
}

// send enqueues a message, blocking for backpressure until the request
// context expires.
func (s *server) send(ctx context.Context, msg engine.Message) bool {
	select {
	case s.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func pairParam(w http.ResponseWriter, r *http.Request) (engine.TradingPair, bool) {
	raw := chi.URLParam(r, "base") + "/" + chi.URLParam(r, "quote")
	pair, err := engine.ParseTradingPair(raw)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return engine.TradingPair{}, false
	}
	return pair, true
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, title, detail string) {
	reqID := middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":      title,
		"status":     code,
		"detail":     detail,
		"instance":   r.URL.Path,
		"request_id": reqID,
	})
}
