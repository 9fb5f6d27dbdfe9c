package vault

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

func newTestAdapter(t *testing.T, feed PriceFeed, now time.Time) *OracleAdapter {
	t.Helper()
	factor, err := NormalizationFactor(18, 8)
	if err != nil {
		t.Fatalf("factor: %v", err)
	}
	adapter := NewOracleAdapter(feed, time.Hour, factor)
	adapter.SetClock(func() time.Time { return now })
	return adapter
}

func TestConvertStalenessBoundary(t *testing.T) {
	feed := NewManualFeed(price2000, testNow)

	atLimit := newTestAdapter(t, feed, testNow.Add(time.Hour))
	if _, err := atLimit.Convert(context.Background(), oneNative(t)); err != nil {
		t.Fatalf("report exactly max staleness old must convert: %v", err)
	}

	pastLimit := newTestAdapter(t, feed, testNow.Add(time.Hour+time.Second))
	_, err := pastLimit.Convert(context.Background(), oneNative(t))
	var stale *StalePriceError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StalePriceError, got %v", err)
	}
	if stale.Age != time.Hour+time.Second || stale.MaxStaleness != time.Hour {
		t.Fatalf("unexpected stale context %+v", stale)
	}
}

func TestQuoteAncientReportIsStale(t *testing.T) {
	cases := []struct {
		name    string
		now     time.Time
		updated time.Time
	}{
		{"duration overflow", testNow, time.Unix(-(1 << 62), 0)},
		{"seconds overflow", time.Unix(1<<62, 0), time.Unix(-(1<<62)-10, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter := newTestAdapter(t, NewManualFeed(price2000, tc.updated), tc.now)
			_, err := adapter.Quote(context.Background())
			var stale *StalePriceError
			if !errors.As(err, &stale) {
				t.Fatalf("expected StalePriceError, got %v", err)
			}
			if stale.Age != time.Duration(math.MaxInt64) {
				t.Fatalf("expected saturated age, got %s", stale.Age)
			}
		})
	}
}

func TestConvertFutureTimestampIsFresh(t *testing.T) {
	feed := NewManualFeed(price2000, testNow.Add(10*time.Minute))
	adapter := newTestAdapter(t, feed, testNow)
	quote, err := adapter.Quote(context.Background())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Age != 0 {
		t.Fatalf("expected zero age, got %s", quote.Age)
	}
}

func TestConvertRejectsNonPositivePrice(t *testing.T) {
	for _, price := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		adapter := newTestAdapter(t, NewManualFeed(price, testNow), testNow)
		if _, err := adapter.Convert(context.Background(), oneNative(t)); !errors.Is(err, ErrOracleInvalidPrice) {
			t.Fatalf("price %v: expected invalid price, got %v", price, err)
		}
	}
}

func TestConvertTruncates(t *testing.T) {
	// 1 wei at $2000 is 2e11 / 1e20: floors to zero.
	adapter := newTestAdapter(t, NewManualFeed(price2000, testNow), testNow)
	usd, err := adapter.Convert(context.Background(), uint256.NewInt(1))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !usd.IsZero() {
		t.Fatalf("expected floor to zero, got %s", usd)
	}

	// 749999999 wei at $2000 is 1.499999998 USD6 units.
	usd, err = adapter.Convert(context.Background(), uint256.NewInt(749_999_999))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if usd.Uint64() != 1 {
		t.Fatalf("expected floored 1, got %s", usd)
	}

	// Odd price with a remainder.
	adapter = newTestAdapter(t, NewManualFeed(big.NewInt(123_456_789), testNow), testNow)
	usd, err = adapter.Convert(context.Background(), dec(t, "3000000000000000000"))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 3e18 * 123456789 / 1e20 = 3703703.67 -> 3703703
	if usd.Uint64() != 3_703_703 {
		t.Fatalf("expected 3703703, got %s", usd)
	}
}

func TestConvertUsesWideIntermediate(t *testing.T) {
	adapter := newTestAdapter(t, NewManualFeed(price2000, testNow), testNow)
	// 2^230 wei overflows a 256-bit product with the price but not the quotient.
	amount := new(uint256.Int).Lsh(uint256.NewInt(1), 230)
	usd, err := adapter.Convert(context.Background(), amount)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := new(big.Int).Lsh(big.NewInt(1), 230)
	want.Mul(want, price2000)
	want.Div(want, new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil))
	if usd.ToBig().Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, usd.Dec())
	}

	huge := NewManualFeed(new(big.Int).Lsh(big.NewInt(1), 255), testNow)
	adapter = newTestAdapter(t, huge, testNow)
	maxAmount := new(uint256.Int).Not(new(uint256.Int))
	if _, err := adapter.Convert(context.Background(), maxAmount); !errors.Is(err, ErrConversionOverflow) {
		t.Fatalf("expected conversion overflow, got %v", err)
	}
}

func TestConvertPropagatesFeedError(t *testing.T) {
	feed := NewManualFeed(price2000, testNow)
	down := errors.New("feed unavailable")
	feed.Fail(down)
	adapter := newTestAdapter(t, feed, testNow)
	if _, err := adapter.Convert(context.Background(), oneNative(t)); !errors.Is(err, down) {
		t.Fatalf("expected feed error, got %v", err)
	}
}

func TestNormalizationFactor(t *testing.T) {
	factor, err := NormalizationFactor(18, 8)
	if err != nil {
		t.Fatalf("factor: %v", err)
	}
	if factor.Dec() != "100000000000000000000" {
		t.Fatalf("expected 1e20, got %s", factor.Dec())
	}
	if f, err := NormalizationFactor(0, 6); err != nil || f.Uint64() != 1 {
		t.Fatalf("expected factor 1, got %v %v", f, err)
	}
	if _, err := NormalizationFactor(2, 2); err == nil {
		t.Fatalf("expected error for precision below usd6")
	}
}
