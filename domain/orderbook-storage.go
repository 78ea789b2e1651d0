package domain

import (
	"errors"
	"sort"
	"sync"
)

var ErrOrderBookNotFound = errors.New("order book not found")

// BookStore hands out one OrderBook per symbol.
type BookStore interface {
	GetOrCreate(symbol string) *OrderBook
	Get(symbol string) (*OrderBook, error)
	Symbols() []string
}

type OrderBookStorage struct {
	storage sync.Map
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{}
}

// GetOrCreate never returns two distinct books for the same symbol.
func (o *OrderBookStorage) GetOrCreate(symbol string) *OrderBook {
	if ob, ok := o.storage.Load(symbol); ok {
		return ob.(*OrderBook)
	}

	ob, _ := o.storage.LoadOrStore(symbol, NewOrderBook(symbol))
	return ob.(*OrderBook)
}

func (o *OrderBookStorage) Get(symbol string) (*OrderBook, error) {
	ob, ok := o.storage.Load(symbol)
	if !ok {
		return nil, ErrOrderBookNotFound
	}

	return ob.(*OrderBook), nil
}

func (o *OrderBookStorage) Symbols() []string {
	symbols := make([]string, 0)
	o.storage.Range(func(key, _ any) bool {
		symbols = append(symbols, key.(string))
		return true
	})

	sort.Strings(symbols)
	return symbols
}

func (o *OrderBookStorage) OrderBookCount() int {
	return len(o.Symbols())
}
