// Package marketdata supplies closing prices for valuation. The core only
// ever consumes the Provider interface; valuation always uses the closing
// price field exclusively.
package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPriceUnavailable is returned when no closing price is known for a
// symbol (or symbol/date combination).
var ErrPriceUnavailable = errors.New("price not available")

// Provider looks up the latest known closing price for an instrument. A zero
// date means "most recent".
type Provider interface {
	ClosingPrice(ctx context.Context, symbol string, date time.Time) (float64, error)
}

// StaticProvider is an in-memory Provider for tests and offline use.
type StaticProvider struct {
	prices map[string]float64
	mu     sync.RWMutex
}

// NewStaticProvider creates a provider seeded with the given closing prices.
func NewStaticProvider(prices map[string]float64) *StaticProvider {
	p := &StaticProvider{prices: make(map[string]float64)}
	for sym, px := range prices {
		p.prices[sym] = px
	}
	return p
}

// SetPrice records the latest closing price for a symbol.
func (p *StaticProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// ClosingPrice returns the seeded price regardless of date.
func (p *StaticProvider) ClosingPrice(_ context.Context, symbol string, _ time.Time) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	px, ok := p.prices[symbol]
	if !ok {
		return 0, ErrPriceUnavailable
	}
	return px, nil
}

var _ Provider = (*StaticProvider)(nil)
