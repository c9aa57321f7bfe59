package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yhanyi/BasicEngine/internal/engine"
	"github.com/yhanyi/BasicEngine/internal/logging"
)

func main() {
	logger, err := logging.New("info")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	eng := engine.New(engine.Options{Logger: logger})
	go eng.Run(context.Background())
	inbox := eng.Inbox()

	pair, err := engine.ParseTradingPair("BTC/USD")
	if err != nil {
		panic(err)
	}

	// Maker: someone wants to SELL 10 @ 100
	inbox <- engine.NewOrderMessage(engine.Order{
		ID:        1,
		Pair:      pair,
		Side:      engine.Sell,
		Price:     100,
		Quantity:  10,
		CreatedAt: time.Now().UTC(),
	})

	// Taker: someone wants to BUY 10 @ 100
	inbox <- engine.NewOrderMessage(engine.Order{
		ID:        2,
		Pair:      pair,
		Side:      engine.Buy,
		Price:     100,
		Quantity:  10,
		CreatedAt: time.Now().UTC(),
	})

	inbox <- engine.MatchOrdersMessage(pair)

	priceMsg, priceReply := engine.GetPriceMessage(pair)
	inbox <- priceMsg
	if price := <-priceReply; price != nil {
		fmt.Printf("last price: %.2f\n", *price)
	}

	tradesMsg, tradesReply := engine.GetTradeHistoryMessage(pair)
	inbox <- tradesMsg
	for _, t := range <-tradesReply {
		fmt.Printf("trade %d: buy=%d sell=%d %.2f @ %.2f\n",
			t.ID, t.BuyOrderID, t.SellOrderID, t.Quantity, t.Price)
	}

	inbox <- engine.ShutdownMessage()
	<-eng.Done()
}
