package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"nhbvault/core/events"
	"nhbvault/core/types"
	"nhbvault/crypto"
	nativecommon "nhbvault/native/common"
)

// Operation names used in logs, metrics and event routing.
const (
	OpDepositNative  = "deposit_native"
	OpDepositStable  = "deposit_stable"
	OpWithdrawNative = "withdraw_native"
	OpWithdrawStable = "withdraw_stable"
	OpSetPaused      = "set_paused"
	OpTransferAdmin  = "transfer_admin"
)

// Metrics receives engine observations. observability.Vault satisfies it.
type Metrics interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	ObserveRejection(op, reason string)
	SetTotalValue(usd6 *uint256.Int)
	SetPaused(paused bool)
	ObservePriceAge(age time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) ObserveRejection(string, string)                {}
func (noopMetrics) SetTotalValue(*uint256.Int)                     {}
func (noopMetrics) SetPaused(bool)                                 {}
func (noopMetrics) ObservePriceAge(time.Duration)                  {}

// Engine is the custodial value ledger. Each mutating call runs pause check,
// reentrancy guard, validation, conversion, limit checks, ledger commit and
// only then the gateway interaction. Any failure leaves no trace.
type Engine struct {
	params  Params
	ledger  *Ledger
	oracle  *OracleAdapter
	limits  LimitPolicy
	gateway TransferGateway

	guard  nativecommon.ReentrancyGuard
	pauses *nativecommon.PauseSwitch

	adminMu sync.RWMutex
	admin   crypto.Address

	emitter events.Emitter
	store   *Store
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewEngine constructs an engine administered by admin that prices native
// value through feed and moves assets through gateway.
func NewEngine(params Params, admin crypto.Address, feed PriceFeed, gateway TransferGateway) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if admin.IsZero() {
		return nil, fmt.Errorf("vault engine: administrator required: %w", ErrInvalidAccount)
	}
	if feed == nil {
		return nil, errNilFeed
	}
	if gateway == nil {
		return nil, errNilGateway
	}
	params = params.Clone()
	return &Engine{
		params:  params,
		ledger:  NewLedger(),
		oracle:  NewOracleAdapter(feed, params.MaxStaleness, params.NormalizationFactor),
		limits:  NewLimitPolicy(params.GlobalCapUSD6, params.WithdrawalCapUSD6),
		gateway: gateway,
		pauses:  nativecommon.NewPauseSwitch(moduleName),
		admin:   admin,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: noopMetrics{},
		now:     time.Now,
	}, nil
}

// SetEmitter wires the downstream event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetStore enables durable persistence of ledger effects.
func (e *Engine) SetStore(store *Store) {
	if e == nil {
		return
	}
	e.store = store
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger.With("component", moduleName)
}

func (e *Engine) SetMetrics(metrics Metrics) {
	if e == nil {
		return
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	e.metrics = metrics
}

// SetClock overrides the time source used for oracle staleness and timings.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
	e.oracle.SetClock(now)
}

// LoadEngineState restores a previously persisted ledger, pause flag and
// administrator from store and keeps store wired for future effects.
func LoadEngineState(e *Engine, store *Store) (bool, error) {
	if e == nil {
		return false, errNilEngine
	}
	state, found, err := store.Load()
	if err != nil {
		return false, err
	}
	e.store = store
	if !found {
		return false, nil
	}
	e.ledger.Restore(state.Accounts, state.Totals)
	e.pauses.Set(state.Paused)
	if !state.Admin.IsZero() {
		e.adminMu.Lock()
		e.admin = state.Admin
		e.adminMu.Unlock()
	}
	e.metrics.SetPaused(state.Paused)
	e.metrics.SetTotalValue(state.Totals.TotalValueUSD6)
	return true, nil
}

// DepositNative credits value attached by caller, valued at the current
// oracle price.
func (e *Engine) DepositNative(ctx context.Context, caller crypto.Address, value *uint256.Int) error {
	return e.mutate(ctx, OpDepositNative, caller, true, func(tx *operation) error {
		if isZero(value) {
			return ErrZeroAmount
		}
		usd, err := e.convert(ctx, value)
		if err != nil {
			return err
		}
		if usd.IsZero() {
			return ErrZeroValue
		}
		if err := e.checkGlobalCap(usd); err != nil {
			return err
		}
		if err := e.ledger.RecordDeposit(caller, types.AssetNative, value, usd); err != nil {
			return err
		}
		tx.event = events.NewDepositNative(caller, value, usd)
		return tx.interact(func() error {
			if err := e.gateway.CollectNative(ctx, caller, value); err != nil {
				return asTransferError(err)
			}
			return nil
		})
	})
}

// DepositStable pulls amount of the stable asset from caller's allowance.
func (e *Engine) DepositStable(ctx context.Context, caller crypto.Address, amount *uint256.Int) error {
	return e.mutate(ctx, OpDepositStable, caller, true, func(tx *operation) error {
		if isZero(amount) {
			return ErrZeroAmount
		}
		if err := e.checkGlobalCap(amount); err != nil {
			return err
		}
		if err := e.ledger.RecordDeposit(caller, types.AssetStable, amount, amount); err != nil {
			return err
		}
		tx.event = events.NewDepositStable(caller, amount)
		return tx.interact(func() error {
			if err := e.gateway.PullStable(ctx, caller, amount); err != nil {
				return fmt.Errorf("vault: pull stable: %w", err)
			}
			return nil
		})
	})
}

// WithdrawNative pays amount of native value back to caller.
func (e *Engine) WithdrawNative(ctx context.Context, caller crypto.Address, amount *uint256.Int) error {
	return e.mutate(ctx, OpWithdrawNative, caller, true, func(tx *operation) error {
		if isZero(amount) {
			return ErrZeroAmount
		}
		usd, err := e.convert(ctx, amount)
		if err != nil {
			return err
		}
		if err := e.limits.CheckWithdrawalCap(usd); err != nil {
			return err
		}
		if err := e.ledger.RecordWithdrawal(caller, types.AssetNative, amount, usd); err != nil {
			return err
		}
		tx.event = events.NewWithdrawNative(caller, amount, usd)
		return tx.interact(func() error {
			if err := e.gateway.SendNative(ctx, caller, amount); err != nil {
				return asTransferError(err)
			}
			return nil
		})
	})
}

// WithdrawStable pushes amount of the stable asset back to caller.
func (e *Engine) WithdrawStable(ctx context.Context, caller crypto.Address, amount *uint256.Int) error {
	return e.mutate(ctx, OpWithdrawStable, caller, true, func(tx *operation) error {
		if isZero(amount) {
			return ErrZeroAmount
		}
		if err := e.limits.CheckWithdrawalCap(amount); err != nil {
			return err
		}
		if err := e.ledger.RecordWithdrawal(caller, types.AssetStable, amount, amount); err != nil {
			return err
		}
		tx.event = events.NewWithdrawStable(caller, amount)
		return tx.interact(func() error {
			if err := e.gateway.PushStable(ctx, caller, amount); err != nil {
				return fmt.Errorf("vault: push stable: %w", err)
			}
			return nil
		})
	})
}

// SetPaused sets the pause flag. Only the administrator may call it and it
// remains available while paused. PauseChanged is emitted even when the flag
// already had the requested value.
func (e *Engine) SetPaused(ctx context.Context, caller crypto.Address, paused bool) error {
	return e.mutate(ctx, OpSetPaused, caller, false, func(tx *operation) error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		previous := e.pauses.Set(paused)
		if err := e.store.WriteMeta(paused, e.Admin()); err != nil {
			e.pauses.Set(previous)
			return err
		}
		e.metrics.SetPaused(paused)
		tx.event = events.PauseChanged{Paused: paused}
		return nil
	})
}

// TransferAdmin hands administration to next.
func (e *Engine) TransferAdmin(ctx context.Context, caller, next crypto.Address) error {
	return e.mutate(ctx, OpTransferAdmin, caller, false, func(tx *operation) error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if next.IsZero() {
			return ErrInvalidAccount
		}
		if err := e.store.WriteMeta(e.pauses.Paused(), next); err != nil {
			return err
		}
		e.adminMu.Lock()
		previous := e.admin
		e.admin = next
		e.adminMu.Unlock()
		tx.event = events.AdminChanged{Previous: previous, Next: next}
		return nil
	})
}

// NativeBalance returns the native balance credited to account.
func (e *Engine) NativeBalance(account crypto.Address) *uint256.Int {
	return e.ledger.BalanceOf(account, types.AssetNative)
}

// StableBalance returns the stable balance credited to account.
func (e *Engine) StableBalance(account crypto.Address) *uint256.Int {
	return e.ledger.BalanceOf(account, types.AssetStable)
}

// TotalNativeHeld reports the native value held by custody.
func (e *Engine) TotalNativeHeld(ctx context.Context) (*uint256.Int, error) {
	return e.gateway.NativeHeld(ctx)
}

// TotalStableHeld reports the stable units held by custody.
func (e *Engine) TotalStableHeld(ctx context.Context) (*uint256.Int, error) {
	return e.gateway.StableHeld(ctx)
}

// Account returns a copy of the account record, if the account has ever
// deposited.
func (e *Engine) Account(account crypto.Address) (*types.Account, bool) {
	return e.ledger.Account(account)
}

// Totals returns the global accounting totals.
func (e *Engine) Totals() Totals { return e.ledger.Totals() }

// Paused reports the pause flag.
func (e *Engine) Paused() bool { return e.pauses.Paused() }

// Admin returns the current administrator.
func (e *Engine) Admin() crypto.Address {
	e.adminMu.RLock()
	defer e.adminMu.RUnlock()
	return e.admin
}

// Params returns a copy of the construction parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

// operation carries the per-call bookkeeping between mutate and its body.
type operation struct {
	engine    *Engine
	caller    crypto.Address
	event     events.Event
	persisted bool
	touched   bool
}

// interact persists the committed effects and then runs the external call.
func (tx *operation) interact(call func() error) error {
	tx.touched = true
	if err := tx.engine.persist(tx.caller); err != nil {
		return err
	}
	tx.persisted = true
	return call()
}

func (e *Engine) mutate(ctx context.Context, op string, caller crypto.Address, pausable bool, body func(tx *operation) error) (err error) {
	if e == nil {
		return errNilEngine
	}
	start := e.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			e.metrics.ObserveRejection(op, Code(err))
			e.logger.Warn("vault operation aborted", "op", op, "account", caller.String(), "error", err)
		}
		e.metrics.ObserveOperation(op, outcome, e.now().Sub(start))
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if pausable {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if caller.IsZero() {
		return ErrInvalidAccount
	}

	tx := &operation{engine: e, caller: caller}
	snapshot := e.ledger.Snapshot()
	if err := body(tx); err != nil {
		e.ledger.RevertToSnapshot(snapshot)
		if tx.persisted {
			if perr := e.persist(caller); perr != nil {
				e.logger.Error("vault compensating write failed", "op", op, "account", caller.String(), "error", perr)
				return errors.Join(err, perr)
			}
		}
		return err
	}
	e.ledger.Commit()

	if tx.touched {
		totals := e.ledger.Totals()
		e.metrics.SetTotalValue(totals.TotalValueUSD6)
	}
	if tx.event != nil {
		e.emitter.Emit(tx.event)
	}
	e.logger.Debug("vault operation committed", "op", op, "account", caller.String())
	return nil
}

func (e *Engine) persist(account crypto.Address) error {
	if e.store == nil {
		return nil
	}
	acct, ok := e.ledger.Account(account)
	if !ok {
		return e.store.WriteLedger(nil, e.ledger.Totals(), account)
	}
	return e.store.WriteLedger([]*types.Account{acct}, e.ledger.Totals())
}

func (e *Engine) convert(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	quote, err := e.oracle.Quote(ctx)
	if err != nil {
		var stale *StalePriceError
		if errors.As(err, &stale) {
			e.metrics.ObservePriceAge(stale.Age)
		}
		return nil, err
	}
	e.metrics.ObservePriceAge(quote.Age)
	return e.oracle.Value(amount, quote)
}

func (e *Engine) checkGlobalCap(usd *uint256.Int) error {
	totals := e.ledger.Totals()
	prospective, overflow := new(uint256.Int).AddOverflow(totals.TotalValueUSD6, usd)
	if overflow {
		return ErrBalanceOverflow
	}
	return e.limits.CheckGlobalCap(prospective)
}

func (e *Engine) authorize(caller crypto.Address) error {
	if !caller.Equal(e.Admin()) {
		return ErrUnauthorized
	}
	return nil
}

func asTransferError(err error) error {
	var transfer *TransferError
	if errors.As(err, &transfer) {
		return err
	}
	return &TransferError{Reason: err.Error(), Err: err}
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}
