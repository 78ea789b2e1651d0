package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMarketSymbol = errors.New("invalid market symbol")

// MarketSymbol is a KuCoin spot pair such as BTC-USDT.
type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))

	if base == "" || quote == "" {
		return nil, fmt.Errorf("%w: base and quote must not be empty", ErrInvalidMarketSymbol)
	}
	if base == quote {
		return nil, fmt.Errorf("%w: base and quote must be different", ErrInvalidMarketSymbol)
	}

	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString accepts "BTC-USDT" and "btc_usdt".
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })

	if len(split) != 2 || strings.Count(s, "-")+strings.Count(s, "_") != 1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarketSymbol, s)
	}

	return NewMarketSymbol(split[0], split[1])
}

// NormalizeSymbol returns the canonical KuCoin form of s.
func NormalizeSymbol(s string) (string, error) {
	ms, err := NewMarketSymbolFromString(s)
	if err != nil {
		return "", err
	}

	return ms.String(), nil
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

func (ms *MarketSymbol) String() string {
	return ms.Join("-")
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
