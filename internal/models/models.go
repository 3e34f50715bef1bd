package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid reports whether s is BUY or SELL
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of side s matches against
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the fill state of an order
type OrderStatus string

const (
	StatusOpen      OrderStatus = "OPEN"      // never traded
	StatusPartial   OrderStatus = "PARTIAL"   // 0 < filled < quantity
	StatusFilled    OrderStatus = "FILLED"    // remaining == 0
	StatusCancelled OrderStatus = "CANCELLED" // removed by its owner
)

// Order represents a buy or sell limit order
type Order struct {
	ID        string          `json:"id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
	Timestamp time.Time       `json:"timestamp"` // display only, not used for priority
	UserID    string          `json:"user_id"`
	Status    OrderStatus     `json:"status"`
}

// Trade represents an executed match between a resting and an incoming order
type Trade struct {
	ID           string          `json:"id"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	MakerUserID  string          `json:"maker_user_id"`
	TakerUserID  string          `json:"taker_user_id"`
	Price        decimal.Decimal `json:"price"` // always the maker's price
	Quantity     decimal.Decimal `json:"quantity"`
	Timestamp    time.Time       `json:"timestamp"`
	Side         Side            `json:"side"` // taker side
}

// PriceLevel aggregates the resting orders at one price
type PriceLevel struct {
	Price         decimal.Decimal `json:"price"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// BookState is a depth-limited market data snapshot
type BookState struct {
	Bids           []PriceLevel    `json:"bids"`
	Asks           []PriceLevel    `json:"asks"`
	BestBid        decimal.Decimal `json:"best_bid"`
	BestAsk        decimal.Decimal `json:"best_ask"`
	LastPrice      decimal.Decimal `json:"last_price"`
	OpenPrice      decimal.Decimal `json:"open_price"`
	PriceChange    decimal.Decimal `json:"price_change"`
	PriceChangePct decimal.Decimal `json:"price_change_pct"`
	Volume         decimal.Decimal `json:"volume"`
	Volume24h      decimal.Decimal `json:"volume_24h"`
}

// Execution is the outcome of submitting one order
type Execution struct {
	Order  Order   `json:"order"`
	Trades []Trade `json:"trades"`
}

// Quote is a price/quantity pair used to seed liquidity
type Quote struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}
