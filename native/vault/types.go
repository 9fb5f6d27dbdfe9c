package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// USDDecimals is the fixed-point precision of every USD valuation (USD6).
const USDDecimals = 6

const moduleName = "vault"

// Totals captures the global accounting state.
type Totals struct {
	// TotalValueUSD6 accumulates the valuation recorded at each operation. It
	// is an accounting total, not a live mark-to-market figure.
	TotalValueUSD6  *uint256.Int
	DepositCount    uint64
	WithdrawalCount uint64
}

// Clone returns a deep copy of the totals.
func (t Totals) Clone() Totals {
	clone := Totals{DepositCount: t.DepositCount, WithdrawalCount: t.WithdrawalCount}
	if t.TotalValueUSD6 != nil {
		clone.TotalValueUSD6 = t.TotalValueUSD6.Clone()
	} else {
		clone.TotalValueUSD6 = new(uint256.Int)
	}
	return clone
}

// Params groups the construction-time configuration of an engine. None of the
// values change after NewEngine.
type Params struct {
	// StableAsset names the stable asset reference (symbol or contract).
	StableAsset string
	// GlobalCapUSD6 bounds the total value held.
	GlobalCapUSD6 *uint256.Int
	// WithdrawalCapUSD6 bounds the valuation of a single withdrawal.
	WithdrawalCapUSD6 *uint256.Int
	// MaxStaleness is the oldest acceptable oracle report, whole seconds.
	MaxStaleness time.Duration
	// NormalizationFactor folds native and price precision into USD6.
	NormalizationFactor *uint256.Int
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := Params{StableAsset: p.StableAsset, MaxStaleness: p.MaxStaleness}
	if p.GlobalCapUSD6 != nil {
		clone.GlobalCapUSD6 = p.GlobalCapUSD6.Clone()
	}
	if p.WithdrawalCapUSD6 != nil {
		clone.WithdrawalCapUSD6 = p.WithdrawalCapUSD6.Clone()
	}
	if p.NormalizationFactor != nil {
		clone.NormalizationFactor = p.NormalizationFactor.Clone()
	}
	return clone
}

// Validate reports the first unusable parameter.
func (p Params) Validate() error {
	if p.GlobalCapUSD6 == nil || p.GlobalCapUSD6.IsZero() {
		return errors.New("vault params: global cap must be positive")
	}
	if p.WithdrawalCapUSD6 == nil || p.WithdrawalCapUSD6.IsZero() {
		return errors.New("vault params: withdrawal cap must be positive")
	}
	if p.MaxStaleness <= 0 {
		return errors.New("vault params: max staleness must be positive")
	}
	if p.MaxStaleness%time.Second != 0 {
		return errors.New("vault params: max staleness must be whole seconds")
	}
	if p.NormalizationFactor == nil || p.NormalizationFactor.IsZero() {
		return errors.New("vault params: normalization factor must be positive")
	}
	return nil
}

// NormalizationFactor returns 10^(nativeDecimals + priceDecimals - 6), the
// divisor that maps nativeAmount*price onto USD6.
func NormalizationFactor(nativeDecimals, priceDecimals uint8) (*uint256.Int, error) {
	exp := int(nativeDecimals) + int(priceDecimals) - USDDecimals
	if exp < 0 {
		return nil, fmt.Errorf("vault params: combined precision %d below usd precision", exp+USDDecimals)
	}
	if exp > 77 {
		return nil, fmt.Errorf("vault params: normalization exponent %d overflows", exp)
	}
	factor := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
	return factor, nil
}
