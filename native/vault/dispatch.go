package vault

import (
	"context"
	"fmt"
	"strings"

	"nhbvault/core/types"
	"nhbvault/crypto"
)

// Dispatch routes a decoded call to the matching engine entry point on behalf
// of caller. Native value is accepted only by depositNative.
func Dispatch(ctx context.Context, engine *Engine, caller crypto.Address, call *types.Call) error {
	if engine == nil {
		return errNilEngine
	}
	if call == nil {
		return ErrUnknownMethod
	}
	value, err := call.ValueAmount()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	method := strings.TrimSpace(call.Method)
	if method == "" {
		if !value.IsZero() {
			return ErrUnsolicitedTransfer
		}
		return ErrUnknownMethod
	}
	if method != types.MethodDepositNative && !value.IsZero() {
		switch method {
		case types.MethodDepositStable, types.MethodWithdrawNative, types.MethodWithdrawStable,
			types.MethodSetPaused, types.MethodTransferAdmin:
			return ErrValueNotAccepted
		default:
			return ErrUnknownMethod
		}
	}

	switch method {
	case types.MethodDepositNative:
		return engine.DepositNative(ctx, caller, value)
	case types.MethodDepositStable:
		amount, err := call.ArgAmount()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return engine.DepositStable(ctx, caller, amount)
	case types.MethodWithdrawNative:
		amount, err := call.ArgAmount()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return engine.WithdrawNative(ctx, caller, amount)
	case types.MethodWithdrawStable:
		amount, err := call.ArgAmount()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return engine.WithdrawStable(ctx, caller, amount)
	case types.MethodSetPaused:
		if call.Paused == nil {
			return fmt.Errorf("%w: paused flag required", ErrInvalidArgument)
		}
		return engine.SetPaused(ctx, caller, *call.Paused)
	case types.MethodTransferAdmin:
		next, err := crypto.ParseAddress(call.Admin)
		if err != nil {
			return fmt.Errorf("%w: admin: %v", ErrInvalidArgument, err)
		}
		return engine.TransferAdmin(ctx, caller, next)
	default:
		return ErrUnknownMethod
	}
}
