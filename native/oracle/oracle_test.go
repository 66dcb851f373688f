package oracle

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(nil)
	price, err := o.LatestPrice("native/usd")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !price.Eq(DefaultStaticPrice) {
		t.Fatalf("unexpected price %s", price)
	}
	if _, err := o.TWAPPrice("BTC/USD"); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestValue(t *testing.T) {
	o := NewStaticOracle(nil)
	// 1000 whole coins at 0.02 is 20.
	value, err := Value(o, DefaultFeedID, uint256.NewInt(1_000_000_000_000), 9)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value.String() != "20" {
		t.Fatalf("unexpected value %s", value)
	}
}
