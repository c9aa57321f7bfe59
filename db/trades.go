package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yhanyi/BasicEngine/internal/engine"
)

const insertTradeSQL = `
INSERT INTO trades (id, trade_seq, pair, buy_order_id, sell_order_id, price, quantity, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// TradeStore writes executed trades to Postgres. It implements
// engine.TradeStore; the engine tolerates failures, so errors here only
// surface in logs.
type TradeStore struct {
	pool *pgxpool.Pool
}

func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// SaveTrades inserts one matching pass's trades in a single transaction.
func (s *TradeStore) SaveTrades(ctx context.Context, trades []engine.Trade) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		rowID, err := newUUID()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insertTradeSQL,
			rowID,
			int64(t.ID),
			t.Pair.String(),
			int64(t.BuyOrderID),
			int64(t.SellOrderID),
			t.Price,
			t.Quantity,
			t.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("insert trade %d: %w", t.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func newUUID() (pgtype.UUID, error) {
	uid, err := uuid.NewRandom()
	if err != nil {
		return pgtype.UUID{}, err
	}
	var out pgtype.UUID
	out.Valid = true
	out.Bytes = uid
	return out, nil
}
