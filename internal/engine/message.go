package engine

type MessageType int

const (
	MsgNewOrder MessageType = iota
	MsgPriceUpdate
	MsgMatchOrders
	MsgGetPrice
	MsgGetOrderBook
	MsgGetTradeHistory
	MsgShutdown
)

// BookSnapshot carries both sides of a book in priority order.
type BookSnapshot struct {
	Bids []BookEntry `json:"bids"`
	Asks []BookEntry `json:"asks"`
}

// Message is the engine's inbound protocol. Commands are fire-and-forget;
// queries carry a single-use reply channel owned by the caller. The engine
// sends at most one value on a reply channel and never holds it afterwards.
type Message struct {
	Type MessageType

	Order  *Order      // MsgNewOrder
	Pair   TradingPair // pair-scoped messages
	Update *PriceUpdate

	PriceReply  chan *float64     // MsgGetPrice; nil price = no trade yet
	BookReply   chan BookSnapshot // MsgGetOrderBook
	TradesReply chan []Trade      // MsgGetTradeHistory
}

func NewOrderMessage(o Order) Message {
	return Message{Type: MsgNewOrder, Order: &o, Pair: o.Pair}
}

func PriceUpdateMessage(u PriceUpdate) Message {
	return Message{Type: MsgPriceUpdate, Update: &u, Pair: u.Pair}
}

func MatchOrdersMessage(pair TradingPair) Message {
	return Message{Type: MsgMatchOrders, Pair: pair}
}

// GetPriceMessage returns the message and the channel the reply arrives on.
// Reply channels are buffered so the engine's send never blocks; a caller
// that stops listening just abandons the channel.
func GetPriceMessage(pair TradingPair) (Message, <-chan *float64) {
	ch := make(chan *float64, 1)
	return Message{Type: MsgGetPrice, Pair: pair, PriceReply: ch}, ch
}

func GetOrderBookMessage(pair TradingPair) (Message, <-chan BookSnapshot) {
	ch := make(chan BookSnapshot, 1)
	return Message{Type: MsgGetOrderBook, Pair: pair, BookReply: ch}, ch
}

func GetTradeHistoryMessage(pair TradingPair) (Message, <-chan []Trade) {
	ch := make(chan []Trade, 1)
	return Message{Type: MsgGetTradeHistory, Pair: pair, TradesReply: ch}, ch
}

func ShutdownMessage() Message {
	return Message{Type: MsgShutdown}
}
