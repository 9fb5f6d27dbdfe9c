package vault

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"nhbvault/core/types"
	"nhbvault/crypto"
	"nhbvault/storage"
)

var (
	accountPrefix = []byte("vault/account/")
	totalsKey     = []byte("vault/totals")
	metaKey       = []byte("vault/meta")
)

type storedAccount struct {
	Prefix      string
	Address     []byte
	Native      *big.Int
	Stable      *big.Int
	Deposits    uint64
	Withdrawals uint64
}

type storedTotals struct {
	ValueUSD6   *big.Int
	Deposits    uint64
	Withdrawals uint64
}

type storedMeta struct {
	Paused      bool
	AdminPrefix string
	Admin       []byte
}

// State is the persisted snapshot of an engine.
type State struct {
	Accounts []*types.Account
	Totals   Totals
	Paused   bool
	Admin    crypto.Address
}

// Store persists ledger effects to a key-value database.
type Store struct {
	db storage.Database
}

// NewStore wraps db.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// WriteLedger stores the supplied accounts and totals and drops the removed
// accounts in one batch.
func (s *Store) WriteLedger(accounts []*types.Account, totals Totals, removed ...crypto.Address) error {
	if s == nil || s.db == nil {
		return nil
	}
	batch := s.db.NewBatch()
	for _, acct := range accounts {
		if acct == nil || acct.Address.IsZero() {
			continue
		}
		encoded, err := rlp.EncodeToBytes(storedAccount{
			Prefix:      string(acct.Address.Prefix()),
			Address:     acct.Address.Bytes(),
			Native:      acct.Balance(types.AssetNative).ToBig(),
			Stable:      acct.Balance(types.AssetStable).ToBig(),
			Deposits:    acct.DepositCount,
			Withdrawals: acct.WithdrawalCount,
		})
		if err != nil {
			return fmt.Errorf("vault store: encode account: %w", err)
		}
		batch.Put(accountKey(acct.Address), encoded)
	}
	for _, addr := range removed {
		if addr.IsZero() {
			continue
		}
		batch.Delete(accountKey(addr))
	}
	value := totals.TotalValueUSD6
	if value == nil {
		value = new(uint256.Int)
	}
	encoded, err := rlp.EncodeToBytes(storedTotals{
		ValueUSD6:   value.ToBig(),
		Deposits:    totals.DepositCount,
		Withdrawals: totals.WithdrawalCount,
	})
	if err != nil {
		return fmt.Errorf("vault store: encode totals: %w", err)
	}
	batch.Put(totalsKey, encoded)
	if err := batch.Write(); err != nil {
		return fmt.Errorf("vault store: write ledger: %w", err)
	}
	return nil
}

// WriteMeta stores the pause flag and administrator.
func (s *Store) WriteMeta(paused bool, admin crypto.Address) error {
	if s == nil || s.db == nil {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(storedMeta{
		Paused:      paused,
		AdminPrefix: string(admin.Prefix()),
		Admin:       admin.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("vault store: encode meta: %w", err)
	}
	if err := s.db.Put(metaKey, encoded); err != nil {
		return fmt.Errorf("vault store: write meta: %w", err)
	}
	return nil
}

// Load reads the persisted state. The boolean is false when nothing has been
// stored yet.
func (s *Store) Load() (State, bool, error) {
	state := State{Totals: Totals{TotalValueUSD6: new(uint256.Int)}}
	if s == nil || s.db == nil {
		return state, false, nil
	}
	found := false

	raw, err := s.db.Get(totalsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return state, false, fmt.Errorf("vault store: read totals: %w", err)
	default:
		var stored storedTotals
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return state, false, fmt.Errorf("vault store: decode totals: %w", err)
		}
		value, overflow := uint256.FromBig(orZero(stored.ValueUSD6))
		if overflow {
			return state, false, fmt.Errorf("vault store: total value overflows")
		}
		state.Totals = Totals{TotalValueUSD6: value, DepositCount: stored.Deposits, WithdrawalCount: stored.Withdrawals}
		found = true
	}

	raw, err = s.db.Get(metaKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return state, false, fmt.Errorf("vault store: read meta: %w", err)
	default:
		var stored storedMeta
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return state, false, fmt.Errorf("vault store: decode meta: %w", err)
		}
		state.Paused = stored.Paused
		if len(stored.Admin) > 0 {
			admin, err := crypto.NewAddress(crypto.AddressPrefix(stored.AdminPrefix), stored.Admin)
			if err != nil {
				return state, false, fmt.Errorf("vault store: decode admin: %w", err)
			}
			state.Admin = admin
		}
		found = true
	}

	err = s.db.Iterate(accountPrefix, func(key, value []byte) error {
		var stored storedAccount
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			return fmt.Errorf("vault store: decode account %x: %w", key, err)
		}
		addr, err := crypto.NewAddress(crypto.AddressPrefix(stored.Prefix), stored.Address)
		if err != nil {
			return fmt.Errorf("vault store: decode account address: %w", err)
		}
		native, overflow := uint256.FromBig(orZero(stored.Native))
		if overflow {
			return fmt.Errorf("vault store: native balance overflows for %s", addr)
		}
		stable, overflow := uint256.FromBig(orZero(stored.Stable))
		if overflow {
			return fmt.Errorf("vault store: stable balance overflows for %s", addr)
		}
		acct := types.NewAccount(addr)
		acct.SetBalance(types.AssetNative, native)
		acct.SetBalance(types.AssetStable, stable)
		acct.DepositCount = stored.Deposits
		acct.WithdrawalCount = stored.Withdrawals
		state.Accounts = append(state.Accounts, acct)
		return nil
	})
	if err != nil {
		return state, false, err
	}
	if len(state.Accounts) > 0 {
		found = true
	}
	return state, found, nil
}

func accountKey(addr crypto.Address) []byte {
	key := make([]byte, 0, len(accountPrefix)+crypto.AddressLength)
	key = append(key, accountPrefix...)
	return append(key, addr.Bytes()...)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
