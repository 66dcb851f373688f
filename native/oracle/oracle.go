package oracle

import (
	"errors"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the precision every oracle price is reported in.
const PriceDecimals = 18

// DefaultFeedID names the native/USD feed.
const DefaultFeedID = "NATIVE/USD"

// ErrPriceUnavailable is returned when the feed has no price.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// PriceOracle reports 18-decimal prices per whole unit of the base asset.
// Risk checks in the vault never consult it; it backs valuation output only.
type PriceOracle interface {
	TWAPPrice(feedID string) (*uint256.Int, error)
	LatestPrice(feedID string) (*uint256.Int, error)
}

// DefaultStaticPrice is 0.02 USD expressed with 18 decimals.
var DefaultStaticPrice = uint256.NewInt(20_000_000_000_000_000)

// StaticOracle serves fixed prices per feed. It stands in for a real price
// feed in demos and tests.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]*uint256.Int
}

// NewStaticOracle returns an oracle that reports price for DefaultFeedID.
func NewStaticOracle(price *uint256.Int) *StaticOracle {
	o := &StaticOracle{prices: make(map[string]*uint256.Int)}
	if price == nil {
		price = DefaultStaticPrice
	}
	o.Set(DefaultFeedID, price)
	return o
}

// Set overrides the price of a feed.
func (o *StaticOracle) Set(feedID string, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if price == nil {
		delete(o.prices, normalizeFeed(feedID))
		return
	}
	o.prices[normalizeFeed(feedID)] = new(uint256.Int).Set(price)
}

// TWAPPrice implements PriceOracle. A static feed's average is its price.
func (o *StaticOracle) TWAPPrice(feedID string) (*uint256.Int, error) {
	return o.LatestPrice(feedID)
}

// LatestPrice implements PriceOracle.
func (o *StaticOracle) LatestPrice(feedID string) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[normalizeFeed(feedID)]
	if !ok {
		return nil, ErrPriceUnavailable
	}
	return new(uint256.Int).Set(price), nil
}

func normalizeFeed(feedID string) string {
	return strings.ToUpper(strings.TrimSpace(feedID))
}

// Value converts an amount with the given precision into quote currency
// using the feed's TWAP price.
func Value(o PriceOracle, feedID string, amount *uint256.Int, decimals int32) (decimal.Decimal, error) {
	if o == nil {
		return decimal.Zero, ErrPriceUnavailable
	}
	price, err := o.TWAPPrice(feedID)
	if err != nil {
		return decimal.Zero, err
	}
	if amount == nil {
		return decimal.Zero, nil
	}
	units := decimal.NewFromBigInt(amount.ToBig(), -decimals)
	quote := decimal.NewFromBigInt(price.ToBig(), -PriceDecimals)
	return units.Mul(quote), nil
}
