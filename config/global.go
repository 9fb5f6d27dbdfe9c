package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"nhbvault/crypto"
)

// VaultLimits represents the parsed engine caps.
type VaultLimits struct {
	GlobalCapUSD6     *uint256.Int
	WithdrawalCapUSD6 *uint256.Int
	MaxStaleness      time.Duration
}

// Limits parses the configured caps into runtime values.
func (v Vault) Limits() (VaultLimits, error) {
	limits := VaultLimits{MaxStaleness: time.Duration(v.MaxStalenessSeconds) * time.Second}
	globalCap, err := parseUintAmount(v.GlobalCapUSD6)
	if err != nil {
		return limits, fmt.Errorf("invalid vault.GlobalCapUSD6: %w", err)
	}
	limits.GlobalCapUSD6 = globalCap
	withdrawalCap, err := parseUintAmount(v.WithdrawalCapUSD6)
	if err != nil {
		return limits, fmt.Errorf("invalid vault.WithdrawalCapUSD6: %w", err)
	}
	limits.WithdrawalCapUSD6 = withdrawalCap
	return limits, nil
}

// AdminAddress parses the administrator address.
func (v Vault) AdminAddress() (crypto.Address, error) {
	addr, err := crypto.ParseAddress(v.Admin)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid vault.Admin: %w", err)
	}
	return addr, nil
}

// Price parses the manual oracle price.
func (o Oracle) Price() (*big.Int, error) {
	trimmed := strings.TrimSpace(o.ManualPrice)
	if trimmed == "" {
		return nil, fmt.Errorf("oracle.ManualPrice required for manual source")
	}
	price, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid oracle.ManualPrice %q", o.ManualPrice)
	}
	return price, nil
}

func parseUintAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, err
	}
	return value, nil
}
