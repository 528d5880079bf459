package redis

import (
	"context"

	"github.com/quantfold/predictbot/internal/domain"
)

// SpotFeed implements domain.PriceFeed over the price cache. Spot prices for
// underlying symbols (BTC, ETH, SOL) are written by external tooling under
// "spot:{symbol}"; consumers get ErrNotFound or ErrStalePrice when nothing
// fresh is available, and the caller decides whether to degrade.
type SpotFeed struct {
	cache *PriceCache
}

func NewSpotFeed(c *Client) *SpotFeed {
	return &SpotFeed{cache: NewPriceCache(c)}
}

// SpotPrice returns the cached spot price for symbol.
func (f *SpotFeed) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	price, _, err := f.cache.GetPrice(ctx, "spot:"+symbol)
	if err != nil {
		return 0, err
	}
	return price, nil
}

var _ domain.PriceFeed = (*SpotFeed)(nil)
