package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PriceLevel is a single [price, size] entry of one side of the book.
type PriceLevel struct {
	Price float64
	Size  float64
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{l.Price, l.Size})
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("price level must be a [price, size] pair: %w", err)
	}

	l.Price, l.Size = pair[0], pair[1]
	return nil
}

// priceLadder keeps the levels of one side sorted best-first.
type priceLadder struct {
	levels []PriceLevel
	better func(a, b float64) bool
}

func newBidLadder() *priceLadder {
	return &priceLadder{better: func(a, b float64) bool { return a > b }}
}

func newAskLadder() *priceLadder {
	return &priceLadder{better: func(a, b float64) bool { return a < b }}
}

// search returns the index of price, or the index it would be inserted at.
func (l *priceLadder) search(price float64) (int, bool) {
	i := sort.Search(len(l.levels), func(i int) bool {
		return !l.better(l.levels[i].Price, price)
	})

	return i, i < len(l.levels) && l.levels[i].Price == price
}

func (l *priceLadder) set(price, size float64) {
	i, found := l.search(price)
	if found {
		l.levels[i].Size = size
		return
	}

	l.levels = append(l.levels, PriceLevel{})
	copy(l.levels[i+1:], l.levels[i:])
	l.levels[i] = PriceLevel{Price: price, Size: size}
}

func (l *priceLadder) remove(price float64) bool {
	i, found := l.search(price)
	if !found {
		return false
	}

	l.levels = append(l.levels[:i], l.levels[i+1:]...)
	return true
}

// truncate drops the worst levels until at most depth remain.
func (l *priceLadder) truncate(depth int) int {
	if len(l.levels) <= depth {
		return 0
	}

	removed := len(l.levels) - depth
	l.levels = l.levels[:depth]
	return removed
}

func (l *priceLadder) reset() {
	l.levels = l.levels[:0]
}

func (l *priceLadder) len() int {
	return len(l.levels)
}

func (l *priceLadder) head(limit int) []PriceLevel {
	n := len(l.levels)
	if limit > 0 && limit < n {
		n = limit
	}

	levels := make([]PriceLevel, n)
	copy(levels, l.levels[:n])
	return levels
}
