package vault

import (
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"nhbvault/core/types"
	"nhbvault/crypto"
)

// journalEntry undoes one ledger mutation.
type journalEntry interface {
	revert(l *Ledger)
}

type accountChange struct {
	key  string
	prev *types.Account // nil when the account was created by the change
}

func (c accountChange) revert(l *Ledger) {
	if c.prev == nil {
		delete(l.accounts, c.key)
		return
	}
	l.accounts[c.key] = c.prev
}

type totalsChange struct {
	prev Totals
}

func (c totalsChange) revert(l *Ledger) {
	l.totals = c.prev
}

// Ledger holds per-account balances and the global totals. Every mutation is
// journaled so an aborted operation can be rolled back exactly.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*types.Account
	totals   Totals
	journal  []journalEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*types.Account),
		totals:   Totals{TotalValueUSD6: new(uint256.Int)},
	}
}

// Snapshot returns an identifier for the current journal position.
func (l *Ledger) Snapshot() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.journal)
}

// RevertToSnapshot undoes every mutation recorded after id.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 {
		id = 0
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i].revert(l)
	}
	if id < len(l.journal) {
		l.journal = l.journal[:id]
	}
}

// Commit discards the journal, making every pending mutation final.
func (l *Ledger) Commit() {
	l.mu.Lock()
	l.journal = nil
	l.mu.Unlock()
}

// RecordDeposit credits raw units of kind to account and adds usd to the total
// value. The global cap is enforced by the caller.
func (l *Ledger) RecordDeposit(account crypto.Address, kind types.AssetKind, raw, usd *uint256.Int) error {
	if account.IsZero() {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := account.Key()
	prev := l.accounts[key]
	next := prev.Clone()
	if next == nil {
		next = types.NewAccount(account)
	}
	balance, overflow := new(uint256.Int).AddOverflow(next.Balance(kind), raw)
	if overflow {
		return ErrBalanceOverflow
	}
	total, overflow := new(uint256.Int).AddOverflow(l.totals.TotalValueUSD6, usd)
	if overflow {
		return ErrBalanceOverflow
	}
	next.SetBalance(kind, balance)
	next.DepositCount++

	l.journal = append(l.journal, accountChange{key: key, prev: prev}, totalsChange{prev: l.totals.Clone()})
	l.accounts[key] = next
	l.totals.TotalValueUSD6 = total
	l.totals.DepositCount++
	return nil
}

// RecordWithdrawal debits raw units of kind from account and subtracts usd from
// the total value.
func (l *Ledger) RecordWithdrawal(account crypto.Address, kind types.AssetKind, raw, usd *uint256.Int) error {
	if account.IsZero() {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := account.Key()
	prev := l.accounts[key]
	available := prev.Balance(kind)
	if available.Lt(raw) {
		return &InsufficientBalanceError{Requested: raw.Clone(), Available: available}
	}
	total, underflow := new(uint256.Int).SubOverflow(l.totals.TotalValueUSD6, usd)
	if underflow {
		return &TotalValueUnderflowError{Requested: usd.Clone(), Total: l.totals.TotalValueUSD6.Clone()}
	}
	next := prev.Clone()
	if next == nil {
		// Only reachable for a zero-amount withdrawal, which callers reject.
		next = types.NewAccount(account)
	}
	next.SetBalance(kind, new(uint256.Int).Sub(available, raw))
	next.WithdrawalCount++

	l.journal = append(l.journal, accountChange{key: key, prev: prev}, totalsChange{prev: l.totals.Clone()})
	l.accounts[key] = next
	l.totals.TotalValueUSD6 = total
	l.totals.WithdrawalCount++
	return nil
}

// BalanceOf returns the balance of kind held by account. Unknown accounts
// report zero.
func (l *Ledger) BalanceOf(account crypto.Address, kind types.AssetKind) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[account.Key()].Balance(kind)
}

// Account returns a copy of the account record.
func (l *Ledger) Account(account crypto.Address) (*types.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[account.Key()]
	if !ok {
		return nil, false
	}
	return acct.Clone(), true
}

// Accounts returns copies of every account ordered by raw address bytes.
func (l *Ledger) Accounts() []*types.Account {
	l.mu.RLock()
	keys := make([]string, 0, len(l.accounts))
	for key := range l.accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*types.Account, 0, len(keys))
	for _, key := range keys {
		out = append(out, l.accounts[key].Clone())
	}
	l.mu.RUnlock()
	return out
}

// Totals returns a copy of the global totals.
func (l *Ledger) Totals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totals.Clone()
}

// Restore replaces the ledger contents with previously persisted state and
// clears the journal.
func (l *Ledger) Restore(accounts []*types.Account, totals Totals) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[string]*types.Account, len(accounts))
	for _, acct := range accounts {
		if acct == nil || acct.Address.IsZero() {
			continue
		}
		l.accounts[acct.Address.Key()] = acct.Clone()
	}
	l.totals = totals.Clone()
	l.journal = nil
}
