package events

import (
	"github.com/holiman/uint256"

	"nhbvault/crypto"
)

func formatAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

func formatAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

func cloneAmount(amount *uint256.Int) *uint256.Int {
	if amount == nil {
		return new(uint256.Int)
	}
	return amount.Clone()
}
