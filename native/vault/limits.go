package vault

import "github.com/holiman/uint256"

// LimitPolicy enforces the global value cap and the per-withdrawal ceiling.
type LimitPolicy struct {
	globalCap     *uint256.Int
	withdrawalCap *uint256.Int
}

// NewLimitPolicy copies the supplied caps.
func NewLimitPolicy(globalCap, withdrawalCap *uint256.Int) LimitPolicy {
	policy := LimitPolicy{globalCap: new(uint256.Int), withdrawalCap: new(uint256.Int)}
	if globalCap != nil {
		policy.globalCap.Set(globalCap)
	}
	if withdrawalCap != nil {
		policy.withdrawalCap.Set(withdrawalCap)
	}
	return policy
}

// CheckGlobalCap rejects a prospective total above the cap. Equality passes.
func (p LimitPolicy) CheckGlobalCap(prospective *uint256.Int) error {
	if prospective.Gt(p.globalCap) {
		return &GlobalCapError{Attempted: prospective.Clone(), Cap: p.globalCap.Clone()}
	}
	return nil
}

// CheckWithdrawalCap rejects a withdrawal valued above the ceiling. Stable
// withdrawals pass their raw USD6 amount.
func (p LimitPolicy) CheckWithdrawalCap(usd *uint256.Int) error {
	if usd.Gt(p.withdrawalCap) {
		return &WithdrawalLimitError{Requested: usd.Clone(), Cap: p.withdrawalCap.Clone()}
	}
	return nil
}

// GlobalCap returns a copy of the global cap.
func (p LimitPolicy) GlobalCap() *uint256.Int { return p.globalCap.Clone() }

// WithdrawalCap returns a copy of the per-withdrawal ceiling.
func (p LimitPolicy) WithdrawalCap() *uint256.Int { return p.withdrawalCap.Clone() }
