package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"nhbvault/core/types"
	"nhbvault/crypto"
)

const (
	// TypeDepositNative is emitted when native value is credited to an account.
	TypeDepositNative = "vault.deposit.native"
	// TypeDepositStable is emitted when stable units are pulled into custody.
	TypeDepositStable = "vault.deposit.stable"
	// TypeWithdrawNative is emitted when native value leaves custody.
	TypeWithdrawNative = "vault.withdraw.native"
	// TypeWithdrawStable is emitted when stable units leave custody.
	TypeWithdrawStable = "vault.withdraw.stable"
	// TypePauseChanged is emitted whenever the administrator sets the pause flag.
	TypePauseChanged = "vault.pause"
	// TypeAdminChanged is emitted when administration is handed over.
	TypeAdminChanged = "vault.admin"
)

type DepositNative struct {
	Account  crypto.Address
	Amount   *uint256.Int
	USDValue *uint256.Int
}

func NewDepositNative(account crypto.Address, amount, usd *uint256.Int) DepositNative {
	return DepositNative{Account: account, Amount: cloneAmount(amount), USDValue: cloneAmount(usd)}
}

func (DepositNative) EventType() string { return TypeDepositNative }

func (e DepositNative) Event() *types.Event {
	return &types.Event{
		Type: TypeDepositNative,
		Attributes: map[string]string{
			"account":  formatAddress(e.Account),
			"amount":   formatAmount(e.Amount),
			"usdValue": formatAmount(e.USDValue),
		},
	}
}

type DepositStable struct {
	Account crypto.Address
	Amount  *uint256.Int
}

func NewDepositStable(account crypto.Address, amount *uint256.Int) DepositStable {
	return DepositStable{Account: account, Amount: cloneAmount(amount)}
}

func (DepositStable) EventType() string { return TypeDepositStable }

func (e DepositStable) Event() *types.Event {
	return &types.Event{
		Type: TypeDepositStable,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

type WithdrawNative struct {
	Account  crypto.Address
	Amount   *uint256.Int
	USDValue *uint256.Int
}

func NewWithdrawNative(account crypto.Address, amount, usd *uint256.Int) WithdrawNative {
	return WithdrawNative{Account: account, Amount: cloneAmount(amount), USDValue: cloneAmount(usd)}
}

func (WithdrawNative) EventType() string { return TypeWithdrawNative }

func (e WithdrawNative) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawNative,
		Attributes: map[string]string{
			"account":  formatAddress(e.Account),
			"amount":   formatAmount(e.Amount),
			"usdValue": formatAmount(e.USDValue),
		},
	}
}

type WithdrawStable struct {
	Account crypto.Address
	Amount  *uint256.Int
}

func NewWithdrawStable(account crypto.Address, amount *uint256.Int) WithdrawStable {
	return WithdrawStable{Account: account, Amount: cloneAmount(amount)}
}

func (WithdrawStable) EventType() string { return TypeWithdrawStable }

func (e WithdrawStable) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawStable,
		Attributes: map[string]string{
			"account": formatAddress(e.Account),
			"amount":  formatAmount(e.Amount),
		},
	}
}

type PauseChanged struct {
	Paused bool
}

func (PauseChanged) EventType() string { return TypePauseChanged }

func (e PauseChanged) Event() *types.Event {
	return &types.Event{
		Type:       TypePauseChanged,
		Attributes: map[string]string{"paused": strconv.FormatBool(e.Paused)},
	}
}

type AdminChanged struct {
	Previous crypto.Address
	Next     crypto.Address
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeAdminChanged,
		Attributes: map[string]string{
			"previous": formatAddress(e.Previous),
			"next":     formatAddress(e.Next),
		},
	}
}
