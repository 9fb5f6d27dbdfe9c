package vault

import (
	"context"

	"github.com/holiman/uint256"

	"nhbvault/crypto"
)

// TransferGateway moves assets between depositors and custody. Implementations
// are untrusted: any call may fail or re-enter the engine.
type TransferGateway interface {
	// CollectNative accepts the native value attached to a deposit.
	CollectNative(ctx context.Context, from crypto.Address, amount *uint256.Int) error
	// SendNative pays native value out of custody.
	SendNative(ctx context.Context, to crypto.Address, amount *uint256.Int) error
	// PullStable debits a pre-authorised allowance into custody.
	PullStable(ctx context.Context, from crypto.Address, amount *uint256.Int) error
	// PushStable credits stable units out of custody.
	PushStable(ctx context.Context, to crypto.Address, amount *uint256.Int) error
	NativeHeld(ctx context.Context) (*uint256.Int, error)
	StableHeld(ctx context.Context) (*uint256.Int, error)
}
