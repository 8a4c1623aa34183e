package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StaticPriceSource is a config-driven PriceSource for deployments that
// haven't wired a real oracle yet. spec.md §6 treats Price Source as an
// external collaborator; this is the minimal implementation that keeps
// the Gas Source's USD conversion working (rather than silently
// defaulting to profitability's own static-estimate fallback) until one
// is wired.
type StaticPriceSource struct {
	prices map[string]decimal.Decimal
}

// NewStaticPriceSource builds a source from a symbol->USD map (e.g.
// {"ETH": 2500}).
func NewStaticPriceSource(pricesUSD map[string]float64) *StaticPriceSource {
	prices := make(map[string]decimal.Decimal, len(pricesUSD))
	for symbol, usd := range pricesUSD {
		prices[symbol] = decimal.NewFromFloat(usd)
	}
	return &StaticPriceSource{prices: prices}
}

func (s *StaticPriceSource) GetPrice(ctx context.Context, symbol string, quote string) (decimal.Decimal, error) {
	price, ok := s.prices[symbol]
	if !ok || !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("gateway: no static price configured for %s/%s", symbol, quote)
	}
	return price, nil
}
