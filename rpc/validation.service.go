package rpc

import (
	"sync"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
)

type ValidationServiceConfig struct {
	AvailableSymbols []string
}

// ValidationService checks request symbols against the mirrored set.
type ValidationService struct {
	mu     sync.RWMutex
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

// NormalizeSymbol returns the canonical symbol or domain.ErrInvalidMarketSymbol.
func (s *ValidationService) NormalizeSymbol(symbol string) (string, error) {
	return domain.NormalizeSymbol(symbol)
}

// IsSupportedSymbol reports whether symbol is mirrored. An empty list allows
// every symbol.
func (s *ValidationService) IsSupportedSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.config.AvailableSymbols) == 0 {
		return true
	}

	for _, p := range s.config.AvailableSymbols {
		if p == symbol {
			return true
		}
	}
	return false
}

func (s *ValidationService) SetSymbols(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = &ValidationServiceConfig{AvailableSymbols: append([]string(nil), symbols...)}
}
