package pricefeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yhanyi/BasicEngine/internal/engine"
)

// PriceCache stores latest reference prices for markets in memory. The engine
// writes it when it processes PriceUpdate messages; anyone may read it.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]float64)}
}

func (c *PriceCache) Set(market string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[market] = price
}

func (c *PriceCache) Get(market string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[market]
	return p, ok
}

// StartPriceUpdater periodically polls the feed for the given markets and
// publishes the results as PriceUpdate messages. Sends block when the engine
// queue is full; that backpressure is deliberate.
func StartPriceUpdater(
	ctx context.Context,
	feed PriceFeed,
	inbox chan<- engine.Message,
	markets []string,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshOnce(ctx, feed, inbox, markets, log)

	for {
		select {
		case <-ticker.C:
			refreshOnce(ctx, feed, inbox, markets, log)
		case <-ctx.Done():
			return
		}
	}
}

func refreshOnce(ctx context.Context, feed PriceFeed, inbox chan<- engine.Message, markets []string, log *zap.Logger) {
	for _, m := range markets {
		pair, err := engine.ParseTradingPair(m)
		if err != nil {
			log.Warn("skipping malformed market", zap.String("market", m), zap.Error(err))
			continue
		}
		price, err := feed.GetSpot(ctx, m)
		if err != nil {
			log.Warn("price update failed", zap.String("market", m), zap.Error(err))
			continue
		}
		msg := engine.PriceUpdateMessage(engine.PriceUpdate{
			Pair:      pair,
			Price:     price,
			UpdatedAt: time.Now().UTC(),
		})
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}
