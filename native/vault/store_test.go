package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"nhbvault/core/types"
	"nhbvault/crypto"
	"nhbvault/storage"
)

func TestStorePersistsAndReloads(t *testing.T) {
	db := storage.NewMemDB()
	fx := newFixture(t)
	fx.engine.SetStore(NewStore(db))
	alice, bob := addr(1), addr(2)
	fx.fundNative(t, alice, oneNative(t))
	fx.fundStable(t, bob, u(700))

	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit native: %v", err)
	}
	if err := fx.engine.DepositStable(bg, bob, u(700)); err != nil {
		t.Fatalf("deposit stable: %v", err)
	}
	if err := fx.engine.WithdrawStable(bg, bob, u(200)); err != nil {
		t.Fatalf("withdraw stable: %v", err)
	}
	next := addr(0x77)
	if err := fx.engine.TransferAdmin(bg, fx.admin, next); err != nil {
		t.Fatalf("transfer admin: %v", err)
	}
	if err := fx.engine.SetPaused(bg, next, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	restored := newFixture(t)
	found, err := LoadEngineState(restored.engine, NewStore(db))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("expected persisted state")
	}
	if got := restored.engine.NativeBalance(alice); !got.Eq(oneNative(t)) {
		t.Fatalf("native balance not restored: %s", got)
	}
	if got := restored.engine.StableBalance(bob); got.Uint64() != 500 {
		t.Fatalf("stable balance not restored: %s", got)
	}
	acct, ok := restored.engine.Account(bob)
	if !ok || acct.DepositCount != 1 || acct.WithdrawalCount != 1 {
		t.Fatalf("counters not restored: %+v", acct)
	}
	if got, want := restored.engine.Totals(), fx.engine.Totals(); !got.TotalValueUSD6.Eq(want.TotalValueUSD6) || got.DepositCount != want.DepositCount {
		t.Fatalf("totals mismatch %+v vs %+v", got, want)
	}
	if !restored.engine.Paused() || !restored.engine.Admin().Equal(next) {
		t.Fatalf("meta not restored")
	}
}

func TestStoreCompensatesLateFailure(t *testing.T) {
	db := storage.NewMemDB()
	fx := newFixture(t)
	fx.engine.SetStore(NewStore(db))
	alice := addr(1)
	fx.fundStable(t, alice, u(100))
	if err := fx.engine.DepositStable(bg, alice, u(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	boom := errors.New("push refused")
	newcomer := addr(3)
	fx.custody.SetHook(func(ctx context.Context, op string, account crypto.Address, amount *uint256.Int) error {
		return boom
	})
	if err := fx.engine.WithdrawStable(bg, alice, u(60)); !errors.Is(err, boom) {
		t.Fatalf("expected push failure, got %v", err)
	}
	if err := fx.engine.DepositStable(bg, newcomer, u(10)); !errors.Is(err, boom) {
		t.Fatalf("expected pull failure, got %v", err)
	}

	state, found, err := NewStore(db).Load()
	if err != nil || !found {
		t.Fatalf("load: %v %v", found, err)
	}
	if len(state.Accounts) != 1 {
		t.Fatalf("expected only alice persisted, got %d accounts", len(state.Accounts))
	}
	if got := state.Accounts[0].Balance(types.AssetStable); got.Uint64() != 100 {
		t.Fatalf("persisted balance must be compensated, got %s", got)
	}
	if state.Totals.TotalValueUSD6.Uint64() != 100 || state.Totals.WithdrawalCount != 0 {
		t.Fatalf("persisted totals must be compensated: %+v", state.Totals)
	}
}

func TestLoadEngineStateEmptyStore(t *testing.T) {
	fx := newFixture(t)
	found, err := LoadEngineState(fx.engine, NewStore(storage.NewMemDB()))
	if err != nil || found {
		t.Fatalf("expected empty store, got %v %v", found, err)
	}
	if !fx.engine.Admin().Equal(fx.admin) {
		t.Fatalf("admin must survive an empty load")
	}
}
