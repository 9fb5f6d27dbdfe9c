package vault

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"nhbvault/core/events"
	"nhbvault/core/types"
	"nhbvault/crypto"
	"nhbvault/native/bank"
)

var testNow = time.Unix(1_700_000_000, 0)

func addr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.MustNewAddress(crypto.NHBPrefix, raw)
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

// oneNative is 1.0 native unit at 18 decimals.
func oneNative(t *testing.T) *uint256.Int { return dec(t, "1000000000000000000") }

// price2000 is $2000.00000000 at 8 decimals.
var price2000 = big.NewInt(200_000_000_000)

type fixture struct {
	engine   *Engine
	feed     *ManualFeed
	custody  *bank.Custody
	recorder *events.Recorder
	admin    crypto.Address
	now      time.Time
}

func testParams(t *testing.T) Params {
	t.Helper()
	factor, err := NormalizationFactor(18, 8)
	if err != nil {
		t.Fatalf("factor: %v", err)
	}
	return Params{
		StableAsset:         "USDC",
		GlobalCapUSD6:       u(1_000_000_000_000), // $1,000,000
		WithdrawalCapUSD6:   u(10_000_000_000),    // $10,000
		MaxStaleness:        time.Hour,
		NormalizationFactor: factor,
	}
}

func newFixture(t *testing.T, mutate ...func(*Params)) *fixture {
	t.Helper()
	params := testParams(t)
	for _, fn := range mutate {
		fn(&params)
	}
	fx := &fixture{
		feed:     NewManualFeed(price2000, testNow),
		custody:  bank.NewCustody(crypto.MustNewAddress(crypto.VaultPrefix, make([]byte, crypto.AddressLength))),
		recorder: &events.Recorder{},
		admin:    addr(0xAD),
		now:      testNow,
	}
	engine, err := NewEngine(params, fx.admin, fx.feed, fx.custody)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetClock(func() time.Time { return fx.now })
	engine.SetEmitter(fx.recorder)
	fx.engine = engine
	return fx
}

func (fx *fixture) fundNative(t *testing.T, who crypto.Address, amount *uint256.Int) {
	t.Helper()
	if err := fx.custody.Mint(types.AssetNative, who, amount); err != nil {
		t.Fatalf("mint native: %v", err)
	}
}

func (fx *fixture) fundStable(t *testing.T, who crypto.Address, amount *uint256.Int) {
	t.Helper()
	if err := fx.custody.Mint(types.AssetStable, who, amount); err != nil {
		t.Fatalf("mint stable: %v", err)
	}
	if err := fx.custody.Approve(who, amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

type ledgerView struct {
	native, stable     string
	deposits, withdraw uint64
	total              string
	totalDeposits      uint64
	totalWithdrawals   uint64
}

func (fx *fixture) view(who crypto.Address) ledgerView {
	v := ledgerView{
		native: fx.engine.NativeBalance(who).Dec(),
		stable: fx.engine.StableBalance(who).Dec(),
	}
	if acct, ok := fx.engine.Account(who); ok {
		v.deposits = acct.DepositCount
		v.withdraw = acct.WithdrawalCount
	}
	totals := fx.engine.Totals()
	v.total = totals.TotalValueUSD6.Dec()
	v.totalDeposits = totals.DepositCount
	v.totalWithdrawals = totals.WithdrawalCount
	return v
}

var bg = context.Background()
