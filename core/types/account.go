package types

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"nhbvault/crypto"
)

// AssetKind identifies which of the two custodied assets an amount refers to.
type AssetKind uint8

const (
	// AssetNative is the volatile chain asset, in 18-decimal smallest units.
	AssetNative AssetKind = iota + 1
	// AssetStable is the USD pegged asset, in USD6 fixed point.
	AssetStable
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetStable:
		return "stable"
	default:
		return fmt.Sprintf("asset(%d)", uint8(k))
	}
}

// ParseAssetKind maps the textual asset name back to its kind.
func ParseAssetKind(raw string) (AssetKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "native":
		return AssetNative, nil
	case "stable":
		return AssetStable, nil
	default:
		return 0, fmt.Errorf("unknown asset %q", raw)
	}
}

// Account is the per-depositor ledger record. Records are created on the first
// deposit and never deleted.
type Account struct {
	Address         crypto.Address `json:"address"`
	BalanceNative   *uint256.Int   `json:"balanceNative"`
	BalanceStable   *uint256.Int   `json:"balanceStable"`
	DepositCount    uint64         `json:"depositCount"`
	WithdrawalCount uint64         `json:"withdrawalCount"`
}

// NewAccount returns an empty record for addr.
func NewAccount(addr crypto.Address) *Account {
	return &Account{
		Address:       addr,
		BalanceNative: new(uint256.Int),
		BalanceStable: new(uint256.Int),
	}
}

// Balance returns the stored balance for kind. Unknown kinds read as zero.
func (a *Account) Balance(kind AssetKind) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	var bal *uint256.Int
	switch kind {
	case AssetNative:
		bal = a.BalanceNative
	case AssetStable:
		bal = a.BalanceStable
	}
	if bal == nil {
		return new(uint256.Int)
	}
	return bal.Clone()
}

// SetBalance replaces the stored balance for kind.
func (a *Account) SetBalance(kind AssetKind, amount *uint256.Int) {
	value := new(uint256.Int)
	if amount != nil {
		value.Set(amount)
	}
	switch kind {
	case AssetNative:
		a.BalanceNative = value
	case AssetStable:
		a.BalanceStable = value
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if !a.Address.IsZero() {
		clone.Address = crypto.MustNewAddress(a.Address.Prefix(), a.Address.Bytes())
	}
	clone.BalanceNative = a.Balance(AssetNative)
	clone.BalanceStable = a.Balance(AssetStable)
	return &clone
}
