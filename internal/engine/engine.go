package engine

import (
	"context"

	"go.uber.org/zap"
)

// DefaultQueueSize bounds the inbound message queue; producers block when it
// is full, which is the engine's only admission control.
const DefaultQueueSize = 100

// TradeStore persists executed trades. A store failure is logged and never
// aborts message processing.
type TradeStore interface {
	SaveTrades(ctx context.Context, trades []Trade) error
}

// PriceSink receives external reference prices forwarded from PriceUpdate
// messages. Reference prices live outside book state.
type PriceSink interface {
	Set(market string, price float64)
}

type Options struct {
	QueueSize int
	Logger    *zap.Logger
	Metrics   *Metrics
	Store     TradeStore // optional
	Prices    PriceSink  // optional
}

// Engine owns every order book and is the single point of mutation for them.
// One goroutine runs the loop; all other components interact through the
// inbound message channel, so book operations never need locks.
type Engine struct {
	books map[TradingPair]*OrderBook
	msgs  chan Message
	done  chan struct{}

	log     *zap.Logger
	metrics *Metrics
	store   TradeStore
	prices  PriceSink

	nextTradeID uint64
}

func New(opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Engine{
		books:   make(map[TradingPair]*OrderBook),
		msgs:    make(chan Message, opts.QueueSize),
		done:    make(chan struct{}),
		log:     opts.Logger,
		metrics: opts.Metrics,
		store:   opts.Store,
		prices:  opts.Prices,
	}
}

// Start builds an engine, spawns its loop and returns only the inbound
// sender. Callers that need lifecycle control use New + Run directly.
func Start(opts Options) chan<- Message {
	e := New(opts)
	go e.Run(context.Background())
	return e.msgs
}

// Inbox is the only way into the engine.
func (e *Engine) Inbox() chan<- Message { return e.msgs }

// Done is closed once the loop has fully stopped.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Run processes messages strictly in arrival order, one to completion at a
// time, until a Shutdown message arrives, the inbox is closed, or ctx is
// cancelled. Messages queued behind a Shutdown are never processed.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.log.Info("engine started", zap.Int("queue_size", cap(e.msgs)))

	for {
		select {
		case msg, ok := <-e.msgs:
			if !ok {
				// no senders left: implicit shutdown
				e.shutdown(ctx)
				return
			}
			if msg.Type == MsgShutdown {
				e.log.Info("received shutdown signal")
				e.shutdown(ctx)
				return
			}
			e.handle(ctx, msg)
		case <-ctx.Done():
			e.log.Info("engine context cancelled")
			return
		}
	}
}

func (e *Engine) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case MsgNewOrder:
		book := e.book(msg.Order.Pair)
		book.AddOrder(*msg.Order)
		e.metrics.OrdersReceived.Inc()
		e.metrics.ActiveOrders.Inc()
		e.log.Debug("order accepted",
			zap.Uint64("order_id", msg.Order.ID),
			zap.String("pair", msg.Order.Pair.String()),
			zap.String("side", string(msg.Order.Side)),
			zap.Float64("price", msg.Order.Price),
			zap.Float64("quantity", msg.Order.Quantity))

	case MsgMatchOrders:
		book, ok := e.books[msg.Pair]
		if !ok {
			return // no book, nothing to match
		}
		e.runMatch(ctx, book)

	case MsgGetPrice:
		// Lazily creates the book, matching the write path: a price query
		// for an unseen pair leaves an empty book behind.
		book := e.book(msg.Pair)
		var price *float64
		if p, ok := book.CurrentPrice(); ok {
			price = &p
		}
		sendReply(e.log, msg.PriceReply, price, "get_price")

	case MsgGetOrderBook:
		var snap BookSnapshot
		if book, ok := e.books[msg.Pair]; ok {
			snap.Bids, snap.Asks = book.Snapshot()
		} else {
			snap.Bids = make([]BookEntry, 0)
			snap.Asks = make([]BookEntry, 0)
		}
		sendReply(e.log, msg.BookReply, snap, "get_order_book")

	case MsgGetTradeHistory:
		trades := make([]Trade, 0)
		if book, ok := e.books[msg.Pair]; ok {
			trades = book.TradeHistory()
		}
		sendReply(e.log, msg.TradesReply, trades, "get_trade_history")

	case MsgPriceUpdate:
		u := msg.Update
		e.log.Info("price update",
			zap.String("pair", u.Pair.String()),
			zap.Float64("price", u.Price))
		if e.prices != nil {
			e.prices.Set(u.Pair.String(), u.Price)
		}
	}
}

func (e *Engine) runMatch(ctx context.Context, book *OrderBook) {
	trades := book.MatchOrders()
	if len(trades) == 0 {
		return
	}
	e.metrics.TradesExecuted.Add(float64(len(trades)))
	e.metrics.ActiveOrders.Set(float64(e.totalActiveOrders()))
	e.log.Info("trades executed",
		zap.String("pair", book.pair.String()),
		zap.Int("count", len(trades)))
	e.persist(ctx, trades)
}

func (e *Engine) persist(ctx context.Context, trades []Trade) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrades(ctx, trades); err != nil {
		e.log.Warn("trade persistence failed", zap.Error(err))
	}
}

// shutdown runs a final matching pass on every book, then reports and stops.
func (e *Engine) shutdown(ctx context.Context) {
	e.log.Info("engine shutting down", zap.Int("books", len(e.books)))
	for pair, book := range e.books {
		trades := book.MatchOrders()
		if len(trades) == 0 {
			continue
		}
		e.metrics.TradesExecuted.Add(float64(len(trades)))
		e.log.Info("final trades executed",
			zap.String("pair", pair.String()),
			zap.Int("count", len(trades)))
		e.persist(ctx, trades)
	}
	total := e.totalActiveOrders()
	e.metrics.ActiveOrders.Set(float64(total))
	e.log.Info("engine stopped", zap.Int("active_orders", total))
}

func (e *Engine) book(pair TradingPair) *OrderBook {
	b, ok := e.books[pair]
	if !ok {
		b = NewOrderBook(pair, e.tradeID)
		e.books[pair] = b
		e.metrics.OpenBooks.Inc()
		e.log.Info("order book created", zap.String("pair", pair.String()))
	}
	return b
}

func (e *Engine) tradeID() uint64 {
	e.nextTradeID++
	return e.nextTradeID
}

func (e *Engine) totalActiveOrders() int {
	n := 0
	for _, b := range e.books {
		n += b.ActiveOrderCount()
	}
	return n
}

// sendReply delivers a query response on a caller-owned channel. A caller
// that has gone away must never block or crash the loop, so the failed send
// is logged and dropped.
func sendReply[T any](log *zap.Logger, ch chan T, v T, query string) {
	select {
	case ch <- v:
	default:
		log.Warn("reply dropped, caller gone", zap.String("query", query))
	}
}
