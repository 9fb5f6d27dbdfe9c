package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"nhbvault/crypto"
	"nhbvault/storage"
)

const noncePrefix = "rpc/nonce/"

// NonceBook tracks the highest accepted call nonce per caller. Nonces must
// strictly increase. With a database the book survives restarts.
type NonceBook struct {
	mu   sync.Mutex
	db   storage.Database
	last map[string]uint64
}

// NewNonceBook returns a book backed by db, or an in-memory book when db is
// nil.
func NewNonceBook(db storage.Database) *NonceBook {
	return &NonceBook{db: db, last: make(map[string]uint64)}
}

// Next returns the lowest nonce caller may use.
func (b *NonceBook) Next(caller crypto.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, seen, err := b.lookup(caller)
	if err != nil {
		return 0, err
	}
	if !seen {
		return 0, nil
	}
	return last + 1, nil
}

// Consume records nonce for caller. It fails with errStaleNonce unless nonce
// is greater than every nonce previously consumed for caller.
func (b *NonceBook) Consume(caller crypto.Address, nonce uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, seen, err := b.lookup(caller)
	if err != nil {
		return err
	}
	if seen && nonce <= last {
		return fmt.Errorf("%w: got %d, want at least %d", errStaleNonce, nonce, last+1)
	}
	if b.db != nil {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], nonce)
		if err := b.db.Put(nonceKey(caller), buf[:]); err != nil {
			return fmt.Errorf("rpc: persist nonce: %w", err)
		}
	}
	b.last[caller.Key()] = nonce
	return nil
}

func (b *NonceBook) lookup(caller crypto.Address) (uint64, bool, error) {
	if last, ok := b.last[caller.Key()]; ok {
		return last, true, nil
	}
	if b.db == nil {
		return 0, false, nil
	}
	raw, err := b.db.Get(nonceKey(caller))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("rpc: load nonce: %w", err)
	}
	if len(raw) != 8 {
		return 0, false, fmt.Errorf("rpc: corrupt nonce record for %s", caller)
	}
	last := binary.BigEndian.Uint64(raw)
	b.last[caller.Key()] = last
	return last, true, nil
}

func nonceKey(caller crypto.Address) []byte {
	return append([]byte(noncePrefix), caller.Bytes()...)
}
