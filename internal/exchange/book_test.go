package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/ccx/internal/models"
)

func TestOrderStore_ReusesReleasedSlots(t *testing.T) {
	s := newOrderStore()
	a := s.alloc(models.Order{ID: "a"})
	b := s.alloc(models.Order{ID: "b"})
	require.NotEqual(t, a, b)

	s.release(a)
	_, ok := s.lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.len())

	c := s.alloc(models.Order{ID: "c"})
	assert.Equal(t, a, c, "released slot should be reused")
	assert.Equal(t, "c", s.get(c).ID)
	h, ok := s.lookup("b")
	require.True(t, ok)
	assert.Equal(t, b, h)
}

func TestBookSide_Insert(t *testing.T) {
	tests := []struct {
		name   string
		side   models.Side
		prices []string
		want   []string // order IDs (index into prices) in book order
	}{
		{
			name:   "BidsDescending",
			side:   models.SideBuy,
			prices: []string{"9.90", "10.00", "9.90", "9.80", "10.00"},
			want:   []string{"1", "4", "0", "2", "3"},
		},
		{
			name:   "AsksAscending",
			side:   models.SideSell,
			prices: []string{"10.10", "10.00", "10.10", "10.20", "10.00"},
			want:   []string{"1", "4", "0", "2", "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOrderStore()
			b := bookSide{side: tt.side}
			for i, p := range tt.prices {
				h := s.alloc(models.Order{ID: string(rune('0' + i)), Price: d(p), Remaining: d("1")})
				b.insert(s, h)
			}

			var got []string
			for _, h := range b.orders {
				got = append(got, s.get(h).ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBookSide_LevelsDepth(t *testing.T) {
	s := newOrderStore()
	b := bookSide{side: models.SideSell}
	for i, p := range []string{"1", "1", "2", "3", "3", "4"} {
		b.insert(s, s.alloc(models.Order{ID: string(rune('a' + i)), Price: d(p), Remaining: d("2")}))
	}

	levels := b.levels(s, 3)
	require.Len(t, levels, 3)
	assert.Equal(t, 2, levels[0].OrderCount)
	assert.True(t, levels[0].TotalQuantity.Equal(d("4")))
	assert.Equal(t, 1, levels[1].OrderCount)
	assert.Equal(t, 2, levels[2].OrderCount, "the last level still aggregates every order at its price")

	assert.Len(t, b.levels(s, 10), 4)

	h, _ := s.lookup("c")
	assert.True(t, b.remove(h))
	assert.False(t, b.remove(h))
	assert.Len(t, b.levels(s, 10), 3)
}
