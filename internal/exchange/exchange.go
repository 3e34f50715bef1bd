// Package exchange implements the limit order book and matching engine for a
// single instrument. Orders match under price-time priority: better prices first,
// and among equal prices, earlier arrivals first. Trades always execute at the
// resting (maker) order's price.
package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/ccx/internal/models"
)

// DefaultTradeLogCap is how many trades the tape keeps
const DefaultTradeLogCap = 50

// Precision accepted for prices and quantities; matches the journal's NUMERIC(20, 8)
const (
	MaxScale         = 8
	MaxIntegerDigits = 12
)

// 10^20 < 2^67, so any coefficient wider than this is out of range whatever its exponent
const maxCoefficientBits = 67

var maxMagnitude = decimal.New(1, MaxIntegerDigits)

// Config holds engine settings. Zero fields fall back to defaults.
type Config struct {
	TradeLogCap int             // trades retained on the tape (default: 50)
	OpenPrice   decimal.Decimal // reference open for price change; zero means first trade
	LastPrice   decimal.Decimal // last price reported before any trade
	Now         func() time.Time
	NewID       func() string
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		TradeLogCap: DefaultTradeLogCap,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// Engine owns both sides of the book, the trade tape and market statistics.
// All methods are safe for concurrent use.
type Engine struct {
	mu sync.RWMutex

	cfg    Config
	store  *orderStore
	bids   bookSide
	asks   bookSide
	trades []models.Trade // oldest first
	stats  marketStats
}

// NewEngine creates an empty engine
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.TradeLogCap <= 0 {
		cfg.TradeLogCap = def.TradeLogCap
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = def.NewID
	}
	e := &Engine{cfg: cfg}
	e.reset()
	return e
}

// Reset drops every order, trade and statistic, returning the engine to its
// freshly constructed state
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.store = newOrderStore()
	e.bids = bookSide{side: models.SideBuy}
	e.asks = bookSide{side: models.SideSell}
	e.trades = make([]models.Trade, 0, e.cfg.TradeLogCap)
	e.stats = newMarketStats(e.cfg.OpenPrice, e.cfg.LastPrice)
}

// PlaceOrder submits a limit order, matches it against the opposite side and rests
// any remainder. The returned order reflects its fill state after matching.
func (e *Engine) PlaceOrder(side models.Side, price, quantity decimal.Decimal, userID string) (models.Order, error) {
	exec, err := e.Execute(side, price, quantity, userID)
	if err != nil {
		return models.Order{}, err
	}
	return exec.Order, nil
}

// Execute is PlaceOrder that also returns the trades the submission produced
func (e *Engine) Execute(side models.Side, price, quantity decimal.Decimal, userID string) (models.Execution, error) {
	if err := validate(side, price, quantity); err != nil {
		return models.Execution{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.cfg.Now()
	taker := models.Order{
		ID:        e.cfg.NewID(),
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Filled:    decimal.Zero,
		Remaining: quantity,
		Timestamp: now,
		UserID:    userID,
		Status:    models.StatusOpen,
	}

	trades := e.match(&taker, now)

	if taker.Remaining.IsPositive() {
		h := e.store.alloc(taker)
		e.side(side).insert(e.store, h)
	}

	return models.Execution{Order: taker, Trades: trades}, nil
}

func validate(side models.Side, price, quantity decimal.Decimal) error {
	if !side.IsValid() {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidOrder, side)
	}
	// bounded before anything formats or compares the values
	if err := checkPrecision("price", price); err != nil {
		return err
	}
	if err := checkPrecision("quantity", quantity); err != nil {
		return err
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidOrder, price)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidOrder, quantity)
	}
	return nil
}

// checkPrecision keeps v within MaxScale decimal places and MaxIntegerDigits
// integer digits. Comparisons rescale to the smaller exponent, so an unbounded
// exponent makes every later book operation work on a huge integer.
func checkPrecision(field string, v decimal.Decimal) error {
	exp := v.Exponent()
	if exp < -MaxScale {
		return fmt.Errorf("%w: %s allows at most %d decimal places", ErrInvalidOrder, field, MaxScale)
	}
	if exp > MaxIntegerDigits || v.Coefficient().BitLen() > maxCoefficientBits || !v.Abs().LessThan(maxMagnitude) {
		return fmt.Errorf("%w: %s allows at most %d integer digits", ErrInvalidOrder, field, MaxIntegerDigits)
	}
	return nil
}

func (e *Engine) side(s models.Side) *bookSide {
	if s == models.SideBuy {
		return &e.bids
	}
	return &e.asks
}

// crosses reports whether a taker may trade at the maker's price
func crosses(taker *models.Order, makerPrice decimal.Decimal) bool {
	if taker.Side == models.SideBuy {
		return makerPrice.LessThanOrEqual(taker.Price)
	}
	return makerPrice.GreaterThanOrEqual(taker.Price)
}

// match walks the opposite side best price first until the taker is filled, the
// side is empty, or the next maker does not cross. Caller holds the write lock.
func (e *Engine) match(taker *models.Order, now time.Time) []models.Trade {
	trades := []models.Trade{}
	book := e.side(taker.Side.Opposite())

	for taker.Remaining.IsPositive() {
		h, ok := book.front()
		if !ok {
			break
		}
		maker := e.store.get(h)
		if !crosses(taker, maker.Price) {
			// sorted, so nothing further down can cross either
			break
		}

		qty := decimal.Min(taker.Remaining, maker.Remaining)
		fill(taker, qty)
		fill(maker, qty)

		trade := models.Trade{
			ID:           e.cfg.NewID(),
			MakerOrderID: maker.ID,
			TakerOrderID: taker.ID,
			MakerUserID:  maker.UserID,
			TakerUserID:  taker.UserID,
			Price:        maker.Price,
			Quantity:     qty,
			Timestamp:    now,
			Side:         taker.Side,
		}
		e.recordTrade(trade)
		trades = append(trades, trade)

		if maker.Remaining.IsZero() {
			book.popFront()
			e.store.release(h)
		}
	}
	return trades
}

// fill applies a matched quantity to one side of a trade
func fill(o *models.Order, qty decimal.Decimal) {
	o.Filled = o.Filled.Add(qty)
	o.Remaining = o.Remaining.Sub(qty)
	if o.Remaining.IsNegative() {
		panic(fmt.Sprintf("exchange: order %s overfilled: remaining %s", o.ID, o.Remaining))
	}
	if o.Remaining.IsZero() {
		o.Status = models.StatusFilled
	} else {
		o.Status = models.StatusPartial
	}
}

func (e *Engine) recordTrade(t models.Trade) {
	e.trades = append(e.trades, t)
	if over := len(e.trades) - e.cfg.TradeLogCap; over > 0 {
		e.trades = append(e.trades[:0], e.trades[over:]...)
	}
	e.stats.record(t.Price, t.Quantity, t.Timestamp)
}

// CancelOrder removes a resting order from the book. A non-empty userID must match
// the order's owner.
func (e *Engine) CancelOrder(orderID, userID string) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.store.lookup(orderID)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	o := e.store.get(h)
	if userID != "" && o.UserID != userID {
		return models.Order{}, fmt.Errorf("%w: %s", ErrNotOwner, orderID)
	}

	e.side(o.Side).remove(h)
	o.Status = models.StatusCancelled
	cancelled := *o
	e.store.release(h)
	return cancelled, nil
}

// Order returns a copy of a resting order
func (e *Engine) Order(orderID string) (models.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h, ok := e.store.lookup(orderID)
	if !ok {
		return models.Order{}, false
	}
	return *e.store.get(h), true
}

// OpenOrders returns the user's resting orders, bids first, each side in book order
func (e *Engine) OpenOrders(userID string) []models.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	orders := []models.Order{}
	for _, b := range []*bookSide{&e.bids, &e.asks} {
		for _, h := range b.orders {
			if o := e.store.get(h); o.UserID == userID {
				orders = append(orders, *o)
			}
		}
	}
	return orders
}

// BookState aggregates up to depth price levels per side, best price first,
// together with the market statistics
func (e *Engine) BookState(depth int) (models.BookState, error) {
	if depth <= 0 {
		return models.BookState{}, fmt.Errorf("%w: got %d", ErrInvalidDepth, depth)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	state := models.BookState{
		Bids:        e.bids.levels(e.store, depth),
		Asks:        e.asks.levels(e.store, depth),
		LastPrice:   e.stats.lastPrice,
		OpenPrice:   e.stats.openPrice,
		PriceChange: e.stats.priceChange(),
		Volume:      e.stats.volume,
		Volume24h:   e.stats.volume24h(e.cfg.Now()),
	}
	state.PriceChangePct = state.PriceChange.Mul(hundred)
	if len(state.Bids) > 0 {
		state.BestBid = state.Bids[0].Price
	}
	if len(state.Asks) > 0 {
		state.BestAsk = state.Asks[0].Price
	}
	return state, nil
}

// RecentTrades returns the retained trades, most recent first
func (e *Engine) RecentTrades() []models.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Trade, len(e.trades))
	for i, t := range e.trades {
		out[len(e.trades)-1-i] = t
	}
	return out
}

// Len returns the number of resting orders on both sides
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.len()
}
