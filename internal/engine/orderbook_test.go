package engine

import (
	"testing"
	"time"
)

var testPair = TradingPair{Base: "BTC", Quote: "USD"}

func newTestBook() *OrderBook {
	var next uint64
	return NewOrderBook(testPair, func() uint64 {
		next++
		return next
	})
}

func newTestOrder(id uint64, side Side, price, qty float64) Order {
	return Order{
		ID:        id,
		Pair:      testPair,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		CreatedAt: time.Now(),
	}
}

func TestAddOrderRests(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 100, 5))
	b.AddOrder(newTestOrder(2, Sell, 110, 3))

	if n := b.ActiveOrderCount(); n != 2 {
		t.Fatalf("expected 2 resting orders, got %d", n)
	}
	bids, asks := b.Snapshot()
	if len(bids) != 1 || bids[0].Price != 100 || bids[0].Quantity != 5 {
		t.Fatalf("unexpected bids: %+v", bids)
	}
	if len(asks) != 1 || asks[0].Price != 110 || asks[0].Quantity != 3 {
		t.Fatalf("unexpected asks: %+v", asks)
	}
}

func TestSnapshotPriorityOrdering(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 99, 1))
	b.AddOrder(newTestOrder(2, Buy, 101, 1))
	b.AddOrder(newTestOrder(3, Buy, 100, 1))
	b.AddOrder(newTestOrder(4, Sell, 105, 1))
	b.AddOrder(newTestOrder(5, Sell, 103, 1))
	b.AddOrder(newTestOrder(6, Sell, 104, 1))

	bids, asks := b.Snapshot()
	for i := 1; i < len(bids); i++ {
		if bids[i-1].Price < bids[i].Price {
			t.Fatalf("bids not descending: %+v", bids)
		}
	}
	for i := 1; i < len(asks); i++ {
		if asks[i-1].Price > asks[i].Price {
			t.Fatalf("asks not ascending: %+v", asks)
		}
	}
	if bids[0].Price != 101 || asks[0].Price != 103 {
		t.Fatalf("best levels wrong: bid=%v ask=%v", bids[0], asks[0])
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 100, 5))

	bids, _ := b.Snapshot()
	bids[0].Quantity = 999

	again, _ := b.Snapshot()
	if again[0].Quantity != 5 {
		t.Fatalf("snapshot mutation leaked into book: %+v", again)
	}
}

func TestMatchFullFill(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 100, 10))
	b.AddOrder(newTestOrder(2, Sell, 100, 10))

	trades := b.MatchOrders()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Quantity != 10 || tr.Price != 100 || tr.BuyOrderID != 1 || tr.SellOrderID != 2 {
		t.Fatalf("unexpected trade: %+v", tr)
	}
	if n := b.ActiveOrderCount(); n != 0 {
		t.Fatalf("expected empty book, got %d resting orders", n)
	}
	price, ok := b.CurrentPrice()
	if !ok || price != 100 {
		t.Fatalf("expected current price 100, got %v ok=%v", price, ok)
	}
	if len(b.TradeHistory()) != 1 {
		t.Fatalf("expected 1 ledger entry")
	}
}

func TestMatchTakesRestingOrderPrice(t *testing.T) {
	// the sell rested first, so the crossing buy trades at the sell's price
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Sell, 100, 10))
	b.AddOrder(newTestOrder(2, Buy, 105, 10))

	trades := b.MatchOrders()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price != 100 {
		t.Fatalf("expected resting price 100, got %v", trades[0].Price)
	}
}

func TestMatchPartialWithTimePriority(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 101, 5))
	b.AddOrder(newTestOrder(2, Sell, 100, 3))
	b.AddOrder(newTestOrder(3, Sell, 100, 4))

	trades := b.MatchOrders()
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	// first trade consumes the earlier sell; the buy was resting first, so
	// both trades print at its price
	if trades[0].SellOrderID != 2 || trades[0].Quantity != 3 || trades[0].Price != 101 {
		t.Fatalf("unexpected first trade: %+v", trades[0])
	}
	if trades[1].SellOrderID != 3 || trades[1].Quantity != 2 || trades[1].Price != 101 {
		t.Fatalf("unexpected second trade: %+v", trades[1])
	}

	// buy fully consumed, second sell rests with 2 remaining
	bids, asks := b.Snapshot()
	if len(bids) != 0 {
		t.Fatalf("expected no bids, got %+v", bids)
	}
	if len(asks) != 1 || asks[0].Price != 100 || asks[0].Quantity != 2 {
		t.Fatalf("expected one ask 2@100, got %+v", asks)
	}
}

func TestMatchFIFOWithinLevel(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Sell, 100, 3))
	b.AddOrder(newTestOrder(2, Sell, 100, 3))
	b.AddOrder(newTestOrder(3, Buy, 100, 3))

	trades := b.MatchOrders()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].SellOrderID != 1 {
		t.Fatalf("expected earlier sell to fill first, got %+v", trades[0])
	}
	if n := b.ActiveOrderCount(); n != 1 {
		t.Fatalf("expected later sell still resting, got %d", n)
	}
}

func TestMatchWalksLevels(t *testing.T) {
	b := newTestBook()
	for i := 0; i < 10; i++ {
		b.AddOrder(newTestOrder(uint64(i+1), Sell, float64(100+i), 1))
	}
	b.AddOrder(newTestOrder(99, Buy, 104, 5))

	trades := b.MatchOrders()
	if len(trades) != 5 {
		t.Fatalf("expected 5 trades, got %d", len(trades))
	}
	// cheapest asks first
	for i, tr := range trades {
		if tr.SellOrderID != uint64(i+1) {
			t.Fatalf("trade %d filled sell %d", i, tr.SellOrderID)
		}
	}
	if n := b.ActiveOrderCount(); n != 5 {
		t.Fatalf("expected 5 asks left, got %d", n)
	}
}

func TestNoMatchWhenNotCrossed(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 90, 1))
	b.AddOrder(newTestOrder(2, Sell, 100, 1))

	if trades := b.MatchOrders(); len(trades) != 0 {
		t.Fatalf("expected no trades, got %+v", trades)
	}
	// idempotent: a second pass with no intervening insert is also empty
	if trades := b.MatchOrders(); len(trades) != 0 {
		t.Fatalf("second pass not empty: %+v", trades)
	}
	if n := b.ActiveOrderCount(); n != 2 {
		t.Fatalf("orders went missing: %d", n)
	}
}

func TestMatchNeverLeavesCrossedBook(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 102, 2))
	b.AddOrder(newTestOrder(2, Buy, 101, 2))
	b.AddOrder(newTestOrder(3, Sell, 100, 3))
	b.AddOrder(newTestOrder(4, Sell, 101, 5))

	b.MatchOrders()

	bids, asks := b.Snapshot()
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
		t.Fatalf("book left crossed: bid %v ask %v", bids[0], asks[0])
	}
}

func TestMatchConservesQuantity(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 105, 7))
	b.AddOrder(newTestOrder(2, Buy, 104, 2))
	b.AddOrder(newTestOrder(3, Sell, 100, 4))
	b.AddOrder(newTestOrder(4, Sell, 103, 6))

	bidQty, askQty := 9.0, 10.0
	var traded float64
	for _, tr := range b.MatchOrders() {
		traded += tr.Quantity
	}
	if traded > bidQty || traded > askQty {
		t.Fatalf("traded %v exceeds a side's resting quantity", traded)
	}

	bids, asks := b.Snapshot()
	var restBid, restAsk float64
	for _, e := range bids {
		restBid += e.Quantity
	}
	for _, e := range asks {
		restAsk += e.Quantity
	}
	if restBid+traded != bidQty || restAsk+traded != askQty {
		t.Fatalf("quantity not conserved: bid %v+%v != %v, ask %v+%v != %v",
			restBid, traded, bidQty, restAsk, traded, askQty)
	}
}

func TestCurrentPriceBeforeAnyTrade(t *testing.T) {
	b := newTestBook()
	if _, ok := b.CurrentPrice(); ok {
		t.Fatalf("expected no price before first trade")
	}
	b.AddOrder(newTestOrder(1, Buy, 100, 1))
	if _, ok := b.CurrentPrice(); ok {
		t.Fatalf("inserting an order must not set a price")
	}
}

func TestTradeIDsMonotonic(t *testing.T) {
	b := newTestBook()
	b.AddOrder(newTestOrder(1, Buy, 100, 1))
	b.AddOrder(newTestOrder(2, Sell, 100, 1))
	b.MatchOrders()
	b.AddOrder(newTestOrder(3, Buy, 100, 1))
	b.AddOrder(newTestOrder(4, Sell, 100, 1))
	b.MatchOrders()

	hist := b.TradeHistory()
	if len(hist) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(hist))
	}
	if hist[1].ID <= hist[0].ID {
		t.Fatalf("trade IDs not monotonic: %d then %d", hist[0].ID, hist[1].ID)
	}
}
