package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"nhbvault/core/events"
	"nhbvault/crypto"
	"nhbvault/native/bank"
)

func TestDepositNativeValuesAtOraclePrice(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))

	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	totals := fx.engine.Totals()
	if totals.TotalValueUSD6.Uint64() != 2_000_000_000 {
		t.Fatalf("expected total 2000000000, got %s", totals.TotalValueUSD6)
	}
	if got := fx.engine.NativeBalance(alice); !got.Eq(oneNative(t)) {
		t.Fatalf("unexpected native balance %s", got)
	}
	held, _ := fx.engine.TotalNativeHeld(bg)
	if !held.Eq(oneNative(t)) {
		t.Fatalf("custody should hold the deposit, got %s", held)
	}
	evts := fx.recorder.Events()
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	deposit, ok := evts[0].(events.DepositNative)
	if !ok {
		t.Fatalf("unexpected event %T", evts[0])
	}
	if deposit.USDValue.Uint64() != 2_000_000_000 || !deposit.Account.Equal(alice) {
		t.Fatalf("unexpected event payload %+v", deposit)
	}
}

func TestDepositStableRejectedPastGlobalCap(t *testing.T) {
	fx := newFixture(t, func(p *Params) { p.GlobalCapUSD6 = u(1_000_000_000) })
	alice := addr(1)
	fx.fundStable(t, alice, u(2_000_000_000))

	before := fx.view(alice)
	err := fx.engine.DepositStable(bg, alice, u(1_000_000_001))
	var capErr *GlobalCapError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected GlobalCapError, got %v", err)
	}
	if capErr.Attempted.Uint64() != 1_000_000_001 || capErr.Cap.Uint64() != 1_000_000_000 {
		t.Fatalf("unexpected cap context %s/%s", capErr.Attempted, capErr.Cap)
	}
	if !errors.Is(err, ErrGlobalCapExceeded) {
		t.Fatalf("cap error must match sentinel")
	}
	if after := fx.view(alice); after != before {
		t.Fatalf("state changed on rejected deposit: %+v -> %+v", before, after)
	}
	if held, _ := fx.engine.TotalStableHeld(bg); held.Sign() != 0 {
		t.Fatalf("rejected deposit reached custody: %s", held)
	}

	if err := fx.engine.DepositStable(bg, alice, u(1_000_000_000)); err != nil {
		t.Fatalf("deposit landing exactly on the cap must pass: %v", err)
	}
	if err := fx.engine.DepositStable(bg, alice, u(1)); !errors.Is(err, ErrGlobalCapExceeded) {
		t.Fatalf("expected cap rejection once full, got %v", err)
	}
}

func TestWithdrawStableBeyondBalanceLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundStable(t, alice, u(50))
	if err := fx.engine.DepositStable(bg, alice, u(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before := fx.view(alice)
	err := fx.engine.WithdrawStable(bg, alice, u(51))
	var balErr *InsufficientBalanceError
	if !errors.As(err, &balErr) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if balErr.Requested.Uint64() != 51 || balErr.Available.Uint64() != 50 {
		t.Fatalf("unexpected context %s/%s", balErr.Requested, balErr.Available)
	}
	if after := fx.view(alice); after != before {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
}

func TestNestedWithdrawalRejectedDuringPayout(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	half := new(uint256.Int).Div(oneNative(t), u(2))
	var nested error
	calls := 0
	fx.custody.SetHook(func(ctx context.Context, op string, account crypto.Address, amount *uint256.Int) error {
		if op != bank.OpSendNative {
			return nil
		}
		calls++
		nested = fx.engine.WithdrawNative(ctx, account, half)
		return nil
	})

	if err := fx.engine.WithdrawNative(bg, alice, half); err != nil {
		t.Fatalf("outer withdrawal must complete: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single hook invocation, got %d", calls)
	}
	if !errors.Is(nested, ErrReentrancyDetected) {
		t.Fatalf("expected nested call to be rejected, got %v", nested)
	}
	if got := fx.engine.NativeBalance(alice); !got.Eq(half) {
		t.Fatalf("expected one withdrawal applied, balance %s", got)
	}
	totals := fx.engine.Totals()
	if totals.TotalValueUSD6.Uint64() != 1_000_000_000 || totals.WithdrawalCount != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestPauseBlocksMutationsButNotViews(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundStable(t, alice, u(100))
	fx.fundNative(t, alice, oneNative(t))
	if err := fx.engine.DepositStable(bg, alice, u(40)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.SetPaused(bg, fx.admin, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	ops := map[string]func() error{
		"depositNative":  func() error { return fx.engine.DepositNative(bg, alice, oneNative(t)) },
		"depositStable":  func() error { return fx.engine.DepositStable(bg, alice, u(1)) },
		"withdrawNative": func() error { return fx.engine.WithdrawNative(bg, alice, u(1)) },
		"withdrawStable": func() error { return fx.engine.WithdrawStable(bg, alice, u(1)) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrOperationPaused) {
			t.Fatalf("%s: expected paused, got %v", name, err)
		}
	}
	if got := fx.engine.StableBalance(alice); got.Uint64() != 40 {
		t.Fatalf("views must keep working while paused, got %s", got)
	}
	if held, err := fx.engine.TotalStableHeld(bg); err != nil || held.Uint64() != 40 {
		t.Fatalf("unexpected custody view %v %v", held, err)
	}
	if err := fx.engine.SetPaused(bg, fx.admin, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := fx.engine.WithdrawStable(bg, alice, u(40)); err != nil {
		t.Fatalf("withdraw after unpause: %v", err)
	}
}

func TestSetPausedRequiresAdmin(t *testing.T) {
	fx := newFixture(t)
	if err := fx.engine.SetPaused(bg, addr(1), true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if fx.engine.Paused() {
		t.Fatalf("pause flag changed by non-admin")
	}
	// Repeating the current state still emits.
	if err := fx.engine.SetPaused(bg, fx.admin, false); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	evts := fx.recorder.Events()
	if len(evts) != 1 || evts[0].EventType() != events.TypePauseChanged {
		t.Fatalf("expected pause event, got %v", evts)
	}
}

func TestTransferAdmin(t *testing.T) {
	fx := newFixture(t)
	next := addr(0xBE)
	if err := fx.engine.TransferAdmin(bg, addr(1), next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := fx.engine.TransferAdmin(bg, fx.admin, crypto.Address{}); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected invalid account, got %v", err)
	}
	if err := fx.engine.TransferAdmin(bg, fx.admin, next); err != nil {
		t.Fatalf("transfer admin: %v", err)
	}
	if !fx.engine.Admin().Equal(next) {
		t.Fatalf("admin not updated")
	}
	if err := fx.engine.SetPaused(bg, fx.admin, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous admin must lose rights, got %v", err)
	}
	if err := fx.engine.SetPaused(bg, next, true); err != nil {
		t.Fatalf("new admin pause: %v", err)
	}
	changed, ok := fx.recorder.Events()[0].(events.AdminChanged)
	if !ok || !changed.Previous.Equal(fx.admin) || !changed.Next.Equal(next) {
		t.Fatalf("unexpected admin event %+v", fx.recorder.Events()[0])
	}
}

func TestZeroAmountRejected(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	cases := map[string]func() error{
		"depositNative":  func() error { return fx.engine.DepositNative(bg, alice, u(0)) },
		"depositNil":     func() error { return fx.engine.DepositNative(bg, alice, nil) },
		"depositStable":  func() error { return fx.engine.DepositStable(bg, alice, u(0)) },
		"withdrawNative": func() error { return fx.engine.WithdrawNative(bg, alice, u(0)) },
		"withdrawStable": func() error { return fx.engine.WithdrawStable(bg, alice, u(0)) },
	}
	for name, op := range cases {
		if err := op(); !errors.Is(err, ErrZeroAmount) {
			t.Fatalf("%s: expected zero amount, got %v", name, err)
		}
	}
	if _, ok := fx.engine.Account(alice); ok {
		t.Fatalf("rejected calls must not create accounts")
	}
}

func TestDustNativeDepositRejected(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, u(3))
	before := fx.view(alice)

	// 3 wei at $2000 floors to zero USD6.
	err := fx.engine.DepositNative(bg, alice, u(3))
	if !errors.Is(err, ErrZeroValue) {
		t.Fatalf("expected zero value, got %v", err)
	}
	if Code(err) != "zero_value" {
		t.Fatalf("unexpected code %q", Code(err))
	}
	if after := fx.view(alice); after != before {
		t.Fatalf("ledger changed: %+v -> %+v", before, after)
	}
	if _, ok := fx.engine.Account(alice); ok {
		t.Fatalf("rejected deposit must not create an account")
	}
	if held, _ := fx.engine.TotalNativeHeld(bg); !held.IsZero() {
		t.Fatalf("custody collected %s", held)
	}
	if n := len(fx.recorder.Events()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}

	fx.fundNative(t, alice, oneNative(t))
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.WithdrawNative(bg, alice, u(3)); err != nil {
		t.Fatalf("dust withdrawal: %v", err)
	}
}

func TestWithdrawalCapAppliesToBothAssets(t *testing.T) {
	fx := newFixture(t, func(p *Params) { p.WithdrawalCapUSD6 = u(1_000_000_000) })
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))
	fx.fundStable(t, alice, u(5_000_000_000))
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit native: %v", err)
	}
	if err := fx.engine.DepositStable(bg, alice, u(5_000_000_000)); err != nil {
		t.Fatalf("deposit stable: %v", err)
	}
	before := fx.view(alice)

	var limitErr *WithdrawalLimitError
	err := fx.engine.WithdrawNative(bg, alice, oneNative(t))
	if !errors.As(err, &limitErr) || limitErr.Requested.Uint64() != 2_000_000_000 || limitErr.Cap.Uint64() != 1_000_000_000 {
		t.Fatalf("expected native withdrawal limit, got %v", err)
	}
	err = fx.engine.WithdrawStable(bg, alice, u(1_000_000_001))
	if !errors.As(err, &limitErr) || limitErr.Requested.Uint64() != 1_000_000_001 {
		t.Fatalf("expected stable withdrawal limit, got %v", err)
	}
	if after := fx.view(alice); after != before {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
	if err := fx.engine.WithdrawStable(bg, alice, u(1_000_000_000)); err != nil {
		t.Fatalf("withdrawal at cap must pass: %v", err)
	}
}

func TestWithdrawExactDecrements(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	quarter := dec(t, "250000000000000000")
	if err := fx.engine.WithdrawNative(bg, alice, quarter); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := fx.engine.NativeBalance(alice).Dec(); got != "750000000000000000" {
		t.Fatalf("unexpected balance %s", got)
	}
	totals := fx.engine.Totals()
	if totals.TotalValueUSD6.Uint64() != 1_500_000_000 {
		t.Fatalf("total must drop by the withdrawal valuation, got %s", totals.TotalValueUSD6)
	}
	acct, _ := fx.engine.Account(alice)
	if acct.DepositCount != 1 || acct.WithdrawalCount != 1 || totals.DepositCount != 1 || totals.WithdrawalCount != 1 {
		t.Fatalf("unexpected counters %+v %+v", acct, totals)
	}
	evts := fx.recorder.Events()
	withdraw, ok := evts[len(evts)-1].(events.WithdrawNative)
	if !ok || withdraw.USDValue.Uint64() != 500_000_000 {
		t.Fatalf("unexpected withdraw event %+v", evts[len(evts)-1])
	}
}

func TestLateGatewayFailureRevertsEverything(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))
	fx.fundStable(t, alice, u(1_000))
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.DepositStable(bg, alice, u(1_000)); err != nil {
		t.Fatalf("deposit stable: %v", err)
	}
	fx.recorder.Reset()
	before := fx.view(alice)

	boom := errors.New("receiver rejected")
	var observed string
	fx.custody.SetHook(func(ctx context.Context, op string, account crypto.Address, amount *uint256.Int) error {
		// Effects are committed before the interaction runs.
		observed = fx.engine.NativeBalance(account).Dec()
		return boom
	})

	err := fx.engine.WithdrawNative(bg, alice, oneNative(t))
	var transferErr *TransferError
	if !errors.As(err, &transferErr) || !errors.Is(err, ErrTransferFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected transfer failure wrapping cause, got %v", err)
	}
	if observed != "0" {
		t.Fatalf("interaction observed pre-mutation balance %s", observed)
	}
	if err := fx.engine.WithdrawStable(bg, alice, u(10)); !errors.Is(err, boom) || errors.Is(err, ErrTransferFailed) {
		t.Fatalf("stable failures propagate opaquely, got %v", err)
	}
	if err := fx.engine.DepositStable(bg, addr(2), u(10)); !errors.Is(err, boom) {
		t.Fatalf("expected pull failure, got %v", err)
	}
	if _, ok := fx.engine.Account(addr(2)); ok {
		t.Fatalf("failed first deposit must not create an account")
	}
	if after := fx.view(alice); after != before {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
	if len(fx.recorder.Events()) != 0 {
		t.Fatalf("aborted operations must not emit")
	}
}

func TestOraclePriceFailuresAbortDeposit(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))

	fx.now = testNow.Add(time.Hour + time.Second)
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); !errors.Is(err, ErrOracleStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
	fx.now = testNow
	fx.feed.Set(nil, testNow)
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); !errors.Is(err, ErrOracleInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if _, ok := fx.engine.Account(alice); ok {
		t.Fatalf("failed deposits must not create the account")
	}
	if fx.engine.Totals().TotalValueUSD6.Sign() != 0 {
		t.Fatalf("total value changed")
	}
}

func TestPriceRiseCanUnderflowRecordedTotal(t *testing.T) {
	fx := newFixture(t)
	alice := addr(1)
	fx.fundNative(t, alice, oneNative(t))
	if err := fx.engine.DepositNative(bg, alice, oneNative(t)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	fx.feed.Set(big.NewInt(400_000_000_000), testNow)
	before := fx.view(alice)

	err := fx.engine.WithdrawNative(bg, alice, dec(t, "750000000000000000"))
	var under *TotalValueUnderflowError
	if !errors.As(err, &under) {
		t.Fatalf("expected total value underflow, got %v", err)
	}
	if under.Requested.Uint64() != 3_000_000_000 || under.Total.Uint64() != 2_000_000_000 {
		t.Fatalf("unexpected underflow context %s/%s", under.Requested, under.Total)
	}
	if after := fx.view(alice); after != before {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
	if err := fx.engine.WithdrawNative(bg, alice, dec(t, "500000000000000000")); err != nil {
		t.Fatalf("withdrawal valued at the recorded total must pass: %v", err)
	}
	if fx.engine.Totals().TotalValueUSD6.Sign() != 0 {
		t.Fatalf("expected recorded total drained")
	}
}
