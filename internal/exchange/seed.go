package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/ccx/internal/models"
)

// MarketMakerID is the user the default liquidity ladder is placed under
const MarketMakerID = "market_maker"

func quote(price, qty string) models.Quote {
	return models.Quote{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

// DefaultBids is the opening bid ladder, best first
func DefaultBids() []models.Quote {
	return []models.Quote{
		quote("9.95", "500"),
		quote("9.90", "1200"),
		quote("9.85", "800"),
		quote("9.80", "2000"),
		quote("9.75", "1500"),
	}
}

// DefaultAsks is the opening ask ladder, best first
func DefaultAsks() []models.Quote {
	return []models.Quote{
		quote("10.05", "400"),
		quote("10.10", "900"),
		quote("10.15", "1500"),
		quote("10.20", "600"),
		quote("10.25", "3000"),
	}
}

// SeedMarket places resting liquidity on both sides as ordinary limit orders.
// It stops at the first invalid quote.
func (e *Engine) SeedMarket(userID string, bids, asks []models.Quote) error {
	for _, q := range bids {
		if _, err := e.PlaceOrder(models.SideBuy, q.Price, q.Quantity, userID); err != nil {
			return fmt.Errorf("seed bid %s: %w", q.Price, err)
		}
	}
	for _, q := range asks {
		if _, err := e.PlaceOrder(models.SideSell, q.Price, q.Quantity, userID); err != nil {
			return fmt.Errorf("seed ask %s: %w", q.Price, err)
		}
	}
	return nil
}
