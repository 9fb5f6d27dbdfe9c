package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	nativecommon "nhbvault/native/common"
)

var (
	ErrReentrancyDetected      = nativecommon.ErrReentrancyDetected
	ErrOperationPaused         = nativecommon.ErrModulePaused
	ErrZeroAmount              = errors.New("vault: amount must be positive")
	ErrZeroValue               = errors.New("vault: deposit is worth less than one USD6 unit")
	ErrOracleInvalidPrice      = errors.New("vault: oracle price must be positive")
	ErrOracleStalePrice        = errors.New("vault: oracle price is stale")
	ErrGlobalCapExceeded       = errors.New("vault: global cap exceeded")
	ErrWithdrawalLimitExceeded = errors.New("vault: withdrawal limit exceeded")
	ErrInsufficientBalance     = errors.New("vault: insufficient balance")
	ErrTransferFailed          = errors.New("vault: transfer failed")

	ErrUnauthorized        = errors.New("vault: caller is not the administrator")
	ErrUnknownMethod       = errors.New("vault: unknown method")
	ErrUnsolicitedTransfer = errors.New("vault: value sent without a method")
	ErrValueNotAccepted    = errors.New("vault: method does not accept value")
	ErrConversionOverflow  = errors.New("vault: usd conversion overflow")
	ErrBalanceOverflow     = errors.New("vault: balance overflow")
	ErrTotalValueUnderflow = errors.New("vault: withdrawal valued above recorded total")
	ErrInvalidAccount      = errors.New("vault: account address required")
	ErrInvalidArgument     = errors.New("vault: invalid call argument")

	errNilEngine  = errors.New("vault engine: not configured")
	errNilFeed    = errors.New("vault engine: price feed not configured")
	errNilGateway = errors.New("vault engine: transfer gateway not configured")
)

// GlobalCapError reports a deposit that would lift total value above the cap.
type GlobalCapError struct {
	Attempted *uint256.Int
	Cap       *uint256.Int
}

func (e *GlobalCapError) Error() string {
	return fmt.Sprintf("%s: attempted %s, cap %s", ErrGlobalCapExceeded, e.Attempted.Dec(), e.Cap.Dec())
}

func (e *GlobalCapError) Unwrap() error { return ErrGlobalCapExceeded }

// WithdrawalLimitError reports a withdrawal valued above the per-transaction cap.
type WithdrawalLimitError struct {
	Requested *uint256.Int
	Cap       *uint256.Int
}

func (e *WithdrawalLimitError) Error() string {
	return fmt.Sprintf("%s: requested %s, cap %s", ErrWithdrawalLimitExceeded, e.Requested.Dec(), e.Cap.Dec())
}

func (e *WithdrawalLimitError) Unwrap() error { return ErrWithdrawalLimitExceeded }

// InsufficientBalanceError reports a withdrawal above the account balance.
type InsufficientBalanceError struct {
	Requested *uint256.Int
	Available *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: requested %s, available %s", ErrInsufficientBalance, e.Requested.Dec(), e.Available.Dec())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// TransferError wraps a failed outbound native transfer.
type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTransferFailed, e.Reason)
}

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

func (e *TransferError) Unwrap() error { return e.Err }

// StalePriceError carries the observed report age.
type StalePriceError struct {
	Age          time.Duration
	MaxStaleness time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("%s: age %s exceeds %s", ErrOracleStalePrice, e.Age, e.MaxStaleness)
}

func (e *StalePriceError) Unwrap() error { return ErrOracleStalePrice }

// TotalValueUnderflowError reports a withdrawal whose current valuation exceeds
// the recorded total. Total value is accumulated at historical prices, so a
// price rise can make the recorded total smaller than a fresh valuation.
type TotalValueUnderflowError struct {
	Requested *uint256.Int
	Total     *uint256.Int
}

func (e *TotalValueUnderflowError) Error() string {
	return fmt.Sprintf("%s: requested %s, total %s", ErrTotalValueUnderflow, e.Requested.Dec(), e.Total.Dec())
}

func (e *TotalValueUnderflowError) Unwrap() error { return ErrTotalValueUnderflow }

// Code maps an error to a stable machine readable identifier. Unknown errors
// map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReentrancyDetected):
		return "reentrancy_detected"
	case errors.Is(err, ErrOperationPaused):
		return "operation_paused"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrZeroValue):
		return "zero_value"
	case errors.Is(err, ErrOracleInvalidPrice):
		return "oracle_invalid_price"
	case errors.Is(err, ErrOracleStalePrice):
		return "oracle_stale_price"
	case errors.Is(err, ErrGlobalCapExceeded):
		return "global_cap_exceeded"
	case errors.Is(err, ErrWithdrawalLimitExceeded):
		return "withdrawal_limit_exceeded"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, ErrUnsolicitedTransfer):
		return "unsolicited_transfer"
	case errors.Is(err, ErrValueNotAccepted):
		return "value_not_accepted"
	case errors.Is(err, ErrConversionOverflow):
		return "conversion_overflow"
	case errors.Is(err, ErrBalanceOverflow):
		return "balance_overflow"
	case errors.Is(err, ErrTotalValueUnderflow):
		return "total_value_underflow"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
