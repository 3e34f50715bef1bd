package exchange

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/ccx/internal/models"
)

// handle is a stable index into an orderStore
type handle int

// orderStore owns every resting order. Book sides only hold handles into it,
// so fills mutate orders in place and removal is a slot release.
type orderStore struct {
	slots []slot
	free  []handle
	byID  map[string]handle
}

type slot struct {
	order models.Order
	used  bool
}

func newOrderStore() *orderStore {
	return &orderStore{byID: make(map[string]handle)}
}

func (s *orderStore) alloc(o models.Order) handle {
	var h handle
	if n := len(s.free); n > 0 {
		h = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[h] = slot{order: o, used: true}
	} else {
		h = handle(len(s.slots))
		s.slots = append(s.slots, slot{order: o, used: true})
	}
	s.byID[o.ID] = h
	return h
}

func (s *orderStore) get(h handle) *models.Order {
	return &s.slots[h].order
}

func (s *orderStore) lookup(id string) (handle, bool) {
	h, ok := s.byID[id]
	return h, ok
}

func (s *orderStore) release(h handle) {
	delete(s.byID, s.slots[h].order.ID)
	s.slots[h] = slot{}
	s.free = append(s.free, h)
}

func (s *orderStore) len() int {
	return len(s.byID)
}

// bookSide keeps one side's handles sorted best price first, FIFO within a price.
type bookSide struct {
	side   models.Side
	orders []handle
}

// worse reports whether price a is strictly worse than b for this side
func (b *bookSide) worse(a, c decimal.Decimal) bool {
	if b.side == models.SideBuy {
		return a.LessThan(c)
	}
	return a.GreaterThan(c)
}

// insert places h before the first order with a strictly worse price, which puts it
// behind every order already resting at the same price.
func (b *bookSide) insert(store *orderStore, h handle) {
	price := store.get(h).Price
	idx := sort.Search(len(b.orders), func(i int) bool {
		return b.worse(store.get(b.orders[i]).Price, price)
	})
	b.orders = slices.Insert(b.orders, idx, h)
}

func (b *bookSide) front() (handle, bool) {
	if len(b.orders) == 0 {
		return 0, false
	}
	return b.orders[0], true
}

func (b *bookSide) popFront() {
	b.orders = b.orders[1:]
}

func (b *bookSide) remove(h handle) bool {
	for i, oh := range b.orders {
		if oh == h {
			b.orders = slices.Delete(b.orders, i, i+1)
			return true
		}
	}
	return false
}

// levels aggregates contiguous equal-price runs into at most depth price levels
func (b *bookSide) levels(store *orderStore, depth int) []models.PriceLevel {
	levels := make([]models.PriceLevel, 0, min(depth, len(b.orders)))
	for _, h := range b.orders {
		o := store.get(h)
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(o.Price) {
			levels[n-1].TotalQuantity = levels[n-1].TotalQuantity.Add(o.Remaining)
			levels[n-1].OrderCount++
			continue
		}
		if len(levels) == depth {
			break
		}
		levels = append(levels, models.PriceLevel{
			Price:         o.Price,
			TotalQuantity: o.Remaining,
			OrderCount:    1,
		})
	}
	return levels
}
