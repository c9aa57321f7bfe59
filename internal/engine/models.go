package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// ErrInvalidPair is returned for trading pair text that is not exactly
// "BASE/QUOTE".
var ErrInvalidPair = errors.New("invalid trading pair: use BASE/QUOTE")

// TradingPair identifies one instrument. It is comparable, so it can key the
// engine's book map directly.
type TradingPair struct {
	Base  string
	Quote string
}

func NewTradingPair(base, quote string) (TradingPair, error) {
	if base == "" || quote == "" {
		return TradingPair{}, fmt.Errorf("%w: empty symbol", ErrInvalidPair)
	}
	return TradingPair{Base: base, Quote: quote}, nil
}

// ParseTradingPair parses "BASE/QUOTE" text. This is the only serialized
// format the engine defines; it fails here, at the boundary, never inside the
// engine loop.
func ParseTradingPair(s string) (TradingPair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TradingPair{}, fmt.Errorf("%w: %q", ErrInvalidPair, s)
	}
	return TradingPair{Base: parts[0], Quote: parts[1]}, nil
}

func (p TradingPair) String() string {
	return p.Base + "/" + p.Quote
}

// Order is a submitted buy/sell intent. It is immutable once submitted; the
// book tracks remaining quantity separately as it fills.
type Order struct {
	ID        uint64
	Pair      TradingPair
	Side      Side
	Price     float64
	Quantity  float64
	CreatedAt time.Time
}

// Validate checks an order before it is sent to the engine. The engine
// assumes orders it receives already passed here.
func (o Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("unknown side %q", string(o.Side))
	}
	if !(o.Price > 0) || math.IsInf(o.Price, 1) {
		return errors.New("price must be positive and finite")
	}
	if !(o.Quantity > 0) || math.IsInf(o.Quantity, 1) {
		return errors.New("quantity must be positive and finite")
	}
	return nil
}

// Trade records one matching event. IDs are monotonic per engine.
type Trade struct {
	ID          uint64
	Pair        TradingPair
	BuyOrderID  uint64
	SellOrderID uint64
	Price       float64
	Quantity    float64
	ExecutedAt  time.Time
}

// PriceUpdate is an external reference-price notification. It never touches
// book state.
type PriceUpdate struct {
	Pair      TradingPair
	Price     float64
	UpdatedAt time.Time
}
