package prices

import (
	"context"

	"github.com/brojonat/vialytics/service/solana"
)

// Oracle maps a mint to its current unit price in currency.
// It returns 0 when the mint is unknown or the lookup fails.
type Oracle interface {
	Price(ctx context.Context, mint, currency string) float64
}

// DefaultCurrency is used when a caller passes an empty currency.
const DefaultCurrency = "USD"

// Static serves prices from a fixed table. It ignores currency.
type Static struct {
	prices map[string]float64
}

// NewStatic returns the built-in fixed price table.
func NewStatic() *Static {
	return NewStaticWith(map[string]float64{
		solana.WrappedSOLMint: 136.00,
		solana.USDCMint:       1.00,
		solana.USDTMint:       1.00,
		solana.RAYMint:        1.25,
		solana.BONKMint:       0.00002,
	})
}

// NewStaticWith serves prices from the given table.
func NewStaticWith(prices map[string]float64) *Static {
	table := make(map[string]float64, len(prices))
	for k, v := range prices {
		table[k] = v
	}
	return &Static{prices: table}
}

func (s *Static) Price(ctx context.Context, mint, currency string) float64 {
	return s.prices[mint]
}
