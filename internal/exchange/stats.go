package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	volumeWindow = 24 * time.Hour
	bucketWidth  = time.Hour
)

var hundred = decimal.NewFromInt(100)

// marketStats is updated only as a side effect of trade execution
type marketStats struct {
	lastPrice decimal.Decimal
	openPrice decimal.Decimal
	volume    decimal.Decimal // all-time, never reset
	buckets   []volumeBucket  // oldest first, hour granularity
}

type volumeBucket struct {
	start time.Time
	qty   decimal.Decimal
}

func newMarketStats(open, last decimal.Decimal) marketStats {
	return marketStats{lastPrice: last, openPrice: open}
}

func (m *marketStats) record(price, qty decimal.Decimal, at time.Time) {
	if m.openPrice.IsZero() {
		m.openPrice = price
	}
	m.lastPrice = price
	m.volume = m.volume.Add(qty)

	start := at.Truncate(bucketWidth)
	if n := len(m.buckets); n > 0 && m.buckets[n-1].start.Equal(start) {
		m.buckets[n-1].qty = m.buckets[n-1].qty.Add(qty)
	} else {
		m.buckets = append(m.buckets, volumeBucket{start: start, qty: qty})
	}
	m.prune(at)
}

func (m *marketStats) prune(now time.Time) {
	cutoff := now.Add(-volumeWindow)
	i := 0
	for i < len(m.buckets) && !m.buckets[i].start.After(cutoff) {
		i++
	}
	m.buckets = m.buckets[i:]
}

// volume24h sums the buckets that started within the last 24h. It does not prune,
// so it is safe under a read lock.
func (m *marketStats) volume24h(now time.Time) decimal.Decimal {
	cutoff := now.Add(-volumeWindow)
	total := decimal.Zero
	for _, b := range m.buckets {
		if b.start.After(cutoff) {
			total = total.Add(b.qty)
		}
	}
	return total
}

// priceChange is (last - open) / open, or zero before an open price is known
func (m *marketStats) priceChange() decimal.Decimal {
	if m.openPrice.IsZero() {
		return decimal.Zero
	}
	return m.lastPrice.Sub(m.openPrice).Div(m.openPrice)
}
