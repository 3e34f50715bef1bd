package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/ccx/internal/models"
)

// DefaultTradeLimit caps GetUserTrades when the caller passes a non-positive limit
const DefaultTradeLimit = 100

// DB wraps a PostgreSQL connection pool used as the trade journal
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Migrate runs a schema script such as migrations/001_init.sql
func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RecordTrades appends trades to the journal in a single transaction
func (db *DB) RecordTrades(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(
			`INSERT INTO trades (id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, side, price, quantity, executed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.MakerOrderID, t.TakerOrderID, t.MakerUserID, t.TakerUserID,
			string(t.Side), t.Price.String(), t.Quantity.String(), t.Timestamp)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert trades: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetUserTrades retrieves the most recent trades where the user was maker or taker
func (db *DB) GetUserTrades(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, maker_order_id, taker_order_id, maker_user_id, taker_user_id, side,
		       price::text, quantity::text, executed_at
		FROM trades
		WHERE maker_user_id = $1 OR taker_user_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		var (
			trade           models.Trade
			side            string
			price, quantity string
			executedAt      time.Time
		)
		if err := rows.Scan(&trade.ID, &trade.MakerOrderID, &trade.TakerOrderID,
			&trade.MakerUserID, &trade.TakerUserID, &side, &price, &quantity, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trade.Side = models.Side(side)
		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse trade price: %w", err)
		}
		if trade.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("failed to parse trade quantity: %w", err)
		}
		trade.Timestamp = executedAt.UTC()
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}
