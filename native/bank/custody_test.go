package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"nhbvault/core/types"
	"nhbvault/crypto"
)

func testAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.MustNewAddress(crypto.NHBPrefix, raw)
}

func TestCollectAndSendNative(t *testing.T) {
	ctx := context.Background()
	bank := NewCustody(testAddr(0xAA))
	alice := testAddr(1)

	if err := bank.CollectNative(ctx, alice, uint256.NewInt(5)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := bank.Mint(types.AssetNative, alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.CollectNative(ctx, alice, uint256.NewInt(7)); err != nil {
		t.Fatalf("collect: %v", err)
	}
	held, _ := bank.NativeHeld(ctx)
	if held.Uint64() != 7 {
		t.Fatalf("expected 7 held, got %s", held)
	}
	if got := bank.BalanceOf(types.AssetNative, alice); got.Uint64() != 3 {
		t.Fatalf("expected wallet 3, got %s", got)
	}
	if err := bank.SendNative(ctx, alice, uint256.NewInt(8)); !errors.Is(err, ErrInsufficientCustody) {
		t.Fatalf("expected insufficient custody, got %v", err)
	}
	if err := bank.SendNative(ctx, alice, uint256.NewInt(7)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := bank.BalanceOf(types.AssetNative, alice); got.Uint64() != 10 {
		t.Fatalf("expected wallet restored to 10, got %s", got)
	}
}

func TestPullStableRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	bank := NewCustody(testAddr(0xAA))
	bob := testAddr(2)
	if err := bank.Mint(types.AssetStable, bob, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.PullStable(ctx, bob, uint256.NewInt(500_000)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance failure, got %v", err)
	}
	if err := bank.Approve(bob, uint256.NewInt(600_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := bank.PullStable(ctx, bob, uint256.NewInt(500_000)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := bank.Allowance(bob); got.Uint64() != 100_000 {
		t.Fatalf("expected remaining allowance 100000, got %s", got)
	}
	held, _ := bank.StableHeld(ctx)
	if held.Uint64() != 500_000 {
		t.Fatalf("expected 500000 held, got %s", held)
	}
	if err := bank.PushStable(ctx, bob, uint256.NewInt(200_000)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := bank.BalanceOf(types.AssetStable, bob); got.Uint64() != 700_000 {
		t.Fatalf("expected wallet 700000, got %s", got)
	}
}

func TestHookAbortsMovement(t *testing.T) {
	ctx := context.Background()
	bank := NewCustody(testAddr(0xAA))
	carol := testAddr(3)
	_ = bank.Mint(types.AssetNative, carol, uint256.NewInt(10))

	refused := errors.New("refused")
	var seen string
	bank.SetHook(func(ctx context.Context, op string, account crypto.Address, amount *uint256.Int) error {
		seen = op
		// Re-entering the bank from a hook must not deadlock.
		_ = bank.BalanceOf(types.AssetNative, account)
		return refused
	})
	if err := bank.CollectNative(ctx, carol, uint256.NewInt(1)); !errors.Is(err, refused) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if seen != OpCollectNative {
		t.Fatalf("unexpected hook op %q", seen)
	}
	if got := bank.BalanceOf(types.AssetNative, carol); got.Uint64() != 10 {
		t.Fatalf("aborted movement changed wallet: %s", got)
	}
}
