package engine

import (
	"container/list"
	"math"
	"sort"
	"time"
)

// restingOrder is book-internal state for one submitted order. The submitted
// Order value is never mutated; only remaining shrinks as trades consume it.
type restingOrder struct {
	order     Order
	remaining float64
	seq       uint64 // arrival order within this book
}

// priceLevel holds FIFO resting orders for one price, oldest first.
type priceLevel struct {
	price  float64
	orders *list.List // of *restingOrder
}

// BookEntry is one resting order in a book snapshot.
type BookEntry struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds resting bids and asks for a single trading pair plus its
// trade ledger. All access is serialized by the engine loop, so there is no
// internal locking.
type OrderBook struct {
	pair TradingPair

	bids map[float64]*priceLevel
	asks map[float64]*priceLevel

	// kept sorted so best prices are at index 0
	bidPrices []float64 // descending
	askPrices []float64 // ascending

	trades    []Trade
	lastPrice float64
	hasTraded bool

	nextSeq uint64
	tradeID func() uint64 // engine-scoped monotonic trade IDs
}

func NewOrderBook(pair TradingPair, tradeID func() uint64) *OrderBook {
	return &OrderBook{
		pair:    pair,
		bids:    make(map[float64]*priceLevel),
		asks:    make(map[float64]*priceLevel),
		tradeID: tradeID,
	}
}

// AddOrder rests an order on its side. Insertion never triggers matching;
// MatchOrders is a separate, explicit operation.
func (b *OrderBook) AddOrder(o Order) {
	b.nextSeq++
	r := &restingOrder{order: o, remaining: o.Quantity, seq: b.nextSeq}
	if o.Side == Buy {
		b.bidLevel(o.Price).orders.PushBack(r)
	} else {
		b.askLevel(o.Price).orders.PushBack(r)
	}
}

func (b *OrderBook) bidLevel(price float64) *priceLevel {
	lvl, ok := b.bids[price]
	if !ok {
		lvl = &priceLevel{price: price, orders: list.New()}
		b.bids[price] = lvl
		i := sort.Search(len(b.bidPrices), func(i int) bool { return b.bidPrices[i] < price })
		b.bidPrices = append(b.bidPrices, 0)
		copy(b.bidPrices[i+1:], b.bidPrices[i:])
		b.bidPrices[i] = price
	}
	return lvl
}

func (b *OrderBook) askLevel(price float64) *priceLevel {
	lvl, ok := b.asks[price]
	if !ok {
		lvl = &priceLevel{price: price, orders: list.New()}
		b.asks[price] = lvl
		i := sort.Search(len(b.askPrices), func(i int) bool { return b.askPrices[i] > price })
		b.askPrices = append(b.askPrices, 0)
		copy(b.askPrices[i+1:], b.askPrices[i:])
		b.askPrices[i] = price
	}
	return lvl
}

func (b *OrderBook) bestBid() *priceLevel {
	if len(b.bidPrices) == 0 {
		return nil
	}
	return b.bids[b.bidPrices[0]]
}

func (b *OrderBook) bestAsk() *priceLevel {
	if len(b.askPrices) == 0 {
		return nil
	}
	return b.asks[b.askPrices[0]]
}

func (b *OrderBook) removeBidLevel(price float64) {
	delete(b.bids, price)
	for i, p := range b.bidPrices {
		if p == price {
			b.bidPrices = append(b.bidPrices[:i], b.bidPrices[i+1:]...)
			return
		}
	}
}

func (b *OrderBook) removeAskLevel(price float64) {
	delete(b.asks, price)
	for i, p := range b.askPrices {
		if p == price {
			b.askPrices = append(b.askPrices[:i], b.askPrices[i+1:]...)
			return
		}
	}
}

// MatchOrders crosses the book until best bid < best ask or a side empties.
// Each trade prints at the earlier-arrived order's price and its quantity is
// the smaller remaining of the two resting orders. Returned trades are in
// generation order; an uncrossed book yields an empty slice.
func (b *OrderBook) MatchOrders() []Trade {
	trades := make([]Trade, 0)
	for {
		bid, ask := b.bestBid(), b.bestAsk()
		if bid == nil || ask == nil || bid.price < ask.price {
			break
		}

		buyer := bid.orders.Front().Value.(*restingOrder)
		seller := ask.orders.Front().Value.(*restingOrder)

		// the earlier order was resting when the other crossed it
		price := buyer.order.Price
		if seller.seq < buyer.seq {
			price = seller.order.Price
		}
		qty := math.Min(buyer.remaining, seller.remaining)

		t := Trade{
			ID:          b.tradeID(),
			Pair:        b.pair,
			BuyOrderID:  buyer.order.ID,
			SellOrderID: seller.order.ID,
			Price:       price,
			Quantity:    qty,
			ExecutedAt:  time.Now().UTC(),
		}
		trades = append(trades, t)
		b.trades = append(b.trades, t)
		b.lastPrice = price
		b.hasTraded = true

		buyer.remaining -= qty
		seller.remaining -= qty

		if buyer.remaining == 0 {
			bid.orders.Remove(bid.orders.Front())
			if bid.orders.Len() == 0 {
				b.removeBidLevel(bid.price)
			}
		}
		if seller.remaining == 0 {
			ask.orders.Remove(ask.orders.Front())
			if ask.orders.Len() == 0 {
				b.removeAskLevel(ask.price)
			}
		}
	}
	return trades
}

// CurrentPrice returns the last traded price; ok is false until the first
// trade for this pair.
func (b *OrderBook) CurrentPrice() (float64, bool) {
	return b.lastPrice, b.hasTraded
}

// Snapshot returns both sides as per-order (price, remaining) entries in
// priority order: bids by price descending, asks ascending, FIFO within a
// level. The returned slices are detached from book state.
func (b *OrderBook) Snapshot() (bids, asks []BookEntry) {
	bids = make([]BookEntry, 0)
	for _, p := range b.bidPrices {
		for e := b.bids[p].orders.Front(); e != nil; e = e.Next() {
			bids = append(bids, BookEntry{Price: p, Quantity: e.Value.(*restingOrder).remaining})
		}
	}
	asks = make([]BookEntry, 0)
	for _, p := range b.askPrices {
		for e := b.asks[p].orders.Front(); e != nil; e = e.Next() {
			asks = append(asks, BookEntry{Price: p, Quantity: e.Value.(*restingOrder).remaining})
		}
	}
	return bids, asks
}

// TradeHistory returns the trade ledger in chronological order.
func (b *OrderBook) TradeHistory() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// ActiveOrderCount is the number of resting orders across both sides.
func (b *OrderBook) ActiveOrderCount() int {
	n := 0
	for _, lvl := range b.bids {
		n += lvl.orders.Len()
	}
	for _, lvl := range b.asks {
		n += lvl.orders.Len()
	}
	return n
}
