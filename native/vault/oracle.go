package vault

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// Round is a single price report.
type Round struct {
	// Price is the USD price of one whole native unit scaled by the feed's
	// decimals. Feeds report signed values; non-positive prices are invalid.
	Price     *big.Int
	UpdatedAt time.Time
}

// PriceFeed supplies the latest native/USD report.
type PriceFeed interface {
	LatestRound(ctx context.Context) (Round, error)
}

// Quote is a validated price report.
type Quote struct {
	Price     *uint256.Int
	UpdatedAt time.Time
	Age       time.Duration
}

// OracleAdapter validates price reports and converts native amounts into USD6.
type OracleAdapter struct {
	feed         PriceFeed
	maxStaleness time.Duration
	factor       *uint256.Int
	now          func() time.Time
}

// NewOracleAdapter binds feed to the staleness bound and normalization factor.
func NewOracleAdapter(feed PriceFeed, maxStaleness time.Duration, factor *uint256.Int) *OracleAdapter {
	adapter := &OracleAdapter{feed: feed, maxStaleness: maxStaleness, now: time.Now}
	if factor != nil {
		adapter.factor = factor.Clone()
	}
	return adapter
}

// SetClock overrides the time source used for staleness checks.
func (o *OracleAdapter) SetClock(now func() time.Time) {
	if o == nil || now == nil {
		return
	}
	o.now = now
}

// Quote reads the feed and validates the report. Ages are measured in whole
// seconds; a report exactly maxStaleness old is still fresh and a report
// stamped in the future has age zero.
func (o *OracleAdapter) Quote(ctx context.Context) (Quote, error) {
	if o == nil || o.feed == nil {
		return Quote{}, errNilFeed
	}
	round, err := o.feed.LatestRound(ctx)
	if err != nil {
		return Quote{}, err
	}
	if round.Price == nil || round.Price.Sign() <= 0 {
		return Quote{}, ErrOracleInvalidPrice
	}
	price, overflow := uint256.FromBig(round.Price)
	if overflow {
		return Quote{}, ErrConversionOverflow
	}
	nowSec, updatedSec := o.now().Unix(), round.UpdatedAt.Unix()
	if updatedSec < nowSec-int64(o.maxStaleness/time.Second) {
		return Quote{}, &StalePriceError{Age: secondsBetween(updatedSec, nowSec), MaxStaleness: o.maxStaleness}
	}
	var age time.Duration
	if updatedSec < nowSec {
		age = time.Duration(nowSec-updatedSec) * time.Second
	}
	return Quote{Price: price, UpdatedAt: round.UpdatedAt, Age: age}, nil
}

// secondsBetween returns to-from as a Duration, saturating at the largest
// Duration when the gap does not fit.
func secondsBetween(from, to int64) time.Duration {
	delta := to - from
	if delta < 0 || delta > math.MaxInt64/int64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delta) * time.Second
}

// Value computes floor(amount * price / factor) with a 512-bit intermediate.
func (o *OracleAdapter) Value(amount *uint256.Int, quote Quote) (*uint256.Int, error) {
	if o == nil || o.factor == nil || o.factor.IsZero() {
		return nil, errNilFeed
	}
	if quote.Price == nil || quote.Price.IsZero() {
		return nil, ErrOracleInvalidPrice
	}
	if amount == nil {
		return new(uint256.Int), nil
	}
	usd, overflow := new(uint256.Int).MulDivOverflow(amount, quote.Price, o.factor)
	if overflow {
		return nil, ErrConversionOverflow
	}
	return usd, nil
}

// Convert returns the USD6 value of amount at the latest valid price.
func (o *OracleAdapter) Convert(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	quote, err := o.Quote(ctx)
	if err != nil {
		return nil, err
	}
	return o.Value(amount, quote)
}

// ManualFeed is an operator-set price feed for local deployments and tests.
type ManualFeed struct {
	mu    sync.RWMutex
	round Round
	err   error
}

// NewManualFeed returns a feed reporting price as of updatedAt.
func NewManualFeed(price *big.Int, updatedAt time.Time) *ManualFeed {
	feed := &ManualFeed{}
	feed.Set(price, updatedAt)
	return feed
}

// Set replaces the reported round and clears any injected failure.
func (f *ManualFeed) Set(price *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = Round{UpdatedAt: updatedAt}
	if price != nil {
		f.round.Price = new(big.Int).Set(price)
	}
	f.err = nil
}

// Fail makes every subsequent read return err until the next Set.
func (f *ManualFeed) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// LatestRound implements PriceFeed.
func (f *ManualFeed) LatestRound(ctx context.Context) (Round, error) {
	if f == nil {
		return Round{}, errors.New("manual feed: not configured")
	}
	if err := ctx.Err(); err != nil {
		return Round{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return Round{}, f.err
	}
	round := Round{UpdatedAt: f.round.UpdatedAt}
	if f.round.Price != nil {
		round.Price = new(big.Int).Set(f.round.Price)
	}
	return round, nil
}
