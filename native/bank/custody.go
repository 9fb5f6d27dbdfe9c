package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"nhbvault/core/types"
	"nhbvault/crypto"
)

var (
	ErrInsufficientFunds     = errors.New("bank: insufficient funds")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInsufficientCustody   = errors.New("bank: insufficient custody holdings")
	errInvalidAccount        = errors.New("bank: account required")
	errAmountOverflow        = errors.New("bank: amount overflow")
)

// Transfer directions reported to hooks.
const (
	OpCollectNative = "collect_native"
	OpSendNative    = "send_native"
	OpPullStable    = "pull_stable"
	OpPushStable    = "push_stable"
)

// Hook runs before a custody movement without holding the bank lock, so it
// may call back into whoever invoked the bank. A non-nil error aborts the
// movement.
type Hook func(ctx context.Context, op string, account crypto.Address, amount *uint256.Int) error

// Custody is an in-memory dual-asset bank. It tracks wallet balances for
// every account, stable allowances granted to custody and the holdings the
// custody address has accumulated.
type Custody struct {
	mu         sync.Mutex
	address    crypto.Address
	native     map[string]*uint256.Int
	stable     map[string]*uint256.Int
	allowances map[string]*uint256.Int
	heldNative *uint256.Int
	heldStable *uint256.Int
	hook       Hook
}

// NewCustody returns an empty bank whose holdings belong to address.
func NewCustody(address crypto.Address) *Custody {
	return &Custody{
		address:    address,
		native:     make(map[string]*uint256.Int),
		stable:     make(map[string]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
		heldNative: new(uint256.Int),
		heldStable: new(uint256.Int),
	}
}

// Address returns the custody account.
func (c *Custody) Address() crypto.Address { return c.address }

// SetHook installs a hook invoked before every movement. Nil clears it.
func (c *Custody) SetHook(hook Hook) {
	c.mu.Lock()
	c.hook = hook
	c.mu.Unlock()
}

// Mint credits a wallet balance out of thin air. Intended for development
// faucets and tests.
func (c *Custody) Mint(kind types.AssetKind, to crypto.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return errInvalidAccount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	book, err := c.book(kind)
	if err != nil {
		return err
	}
	return credit(book, to.Key(), amount)
}

// Approve sets the stable allowance owner grants to custody.
func (c *Custody) Approve(owner crypto.Address, amount *uint256.Int) error {
	if owner.IsZero() {
		return errInvalidAccount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[owner.Key()] = clone(amount)
	return nil
}

// Allowance returns the stable allowance owner granted to custody.
func (c *Custody) Allowance(owner crypto.Address) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.allowances[owner.Key()])
}

// BalanceOf returns the wallet balance of kind held by owner outside custody.
func (c *Custody) BalanceOf(kind types.AssetKind, owner crypto.Address) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, err := c.book(kind)
	if err != nil {
		return new(uint256.Int)
	}
	return clone(book[owner.Key()])
}

// CollectNative moves native value from the depositor wallet into custody.
func (c *Custody) CollectNative(ctx context.Context, from crypto.Address, amount *uint256.Int) error {
	if err := c.runHook(ctx, OpCollectNative, from, amount); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := from.Key()
	if clone(c.native[key]).Lt(amount) {
		return fmt.Errorf("%w: collect %s from %s", ErrInsufficientFunds, amount.Dec(), from)
	}
	c.native[key] = new(uint256.Int).Sub(clone(c.native[key]), amount)
	c.heldNative = new(uint256.Int).Add(c.heldNative, amount)
	return nil
}

// SendNative pays native value out of custody.
func (c *Custody) SendNative(ctx context.Context, to crypto.Address, amount *uint256.Int) error {
	if err := c.runHook(ctx, OpSendNative, to, amount); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heldNative.Lt(amount) {
		return fmt.Errorf("%w: send %s", ErrInsufficientCustody, amount.Dec())
	}
	if err := credit(c.native, to.Key(), amount); err != nil {
		return err
	}
	c.heldNative = new(uint256.Int).Sub(c.heldNative, amount)
	return nil
}

// PullStable spends the owner's allowance to move stable units into custody.
func (c *Custody) PullStable(ctx context.Context, from crypto.Address, amount *uint256.Int) error {
	if err := c.runHook(ctx, OpPullStable, from, amount); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := from.Key()
	allowance := clone(c.allowances[key])
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: requested %s, approved %s", ErrInsufficientAllowance, amount.Dec(), allowance.Dec())
	}
	balance := clone(c.stable[key])
	if balance.Lt(amount) {
		return fmt.Errorf("%w: pull %s from %s", ErrInsufficientFunds, amount.Dec(), from)
	}
	c.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	c.stable[key] = new(uint256.Int).Sub(balance, amount)
	c.heldStable = new(uint256.Int).Add(c.heldStable, amount)
	return nil
}

// PushStable credits stable units out of custody.
func (c *Custody) PushStable(ctx context.Context, to crypto.Address, amount *uint256.Int) error {
	if err := c.runHook(ctx, OpPushStable, to, amount); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heldStable.Lt(amount) {
		return fmt.Errorf("%w: push %s", ErrInsufficientCustody, amount.Dec())
	}
	if err := credit(c.stable, to.Key(), amount); err != nil {
		return err
	}
	c.heldStable = new(uint256.Int).Sub(c.heldStable, amount)
	return nil
}

// NativeHeld reports native value held in custody.
func (c *Custody) NativeHeld(ctx context.Context) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heldNative.Clone(), nil
}

// StableHeld reports stable units held in custody.
func (c *Custody) StableHeld(ctx context.Context) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heldStable.Clone(), nil
}

func (c *Custody) runHook(ctx context.Context, op string, account crypto.Address, amount *uint256.Int) error {
	if account.IsZero() {
		return errInvalidAccount
	}
	if amount == nil {
		return fmt.Errorf("bank: %s amount required", op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx, op, account, amount.Clone())
}

func (c *Custody) book(kind types.AssetKind) (map[string]*uint256.Int, error) {
	switch kind {
	case types.AssetNative:
		return c.native, nil
	case types.AssetStable:
		return c.stable, nil
	default:
		return nil, fmt.Errorf("bank: unknown asset %d", kind)
	}
}

func credit(book map[string]*uint256.Int, key string, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(clone(book[key]), clone(amount))
	if overflow {
		return errAmountOverflow
	}
	book[key] = next
	return nil
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
