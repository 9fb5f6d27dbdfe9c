package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

const (
	// NHBPrefix is used for depositor and administrator accounts.
	NHBPrefix AddressPrefix = "nhb"
	// VaultPrefix is used for custody accounts held by the vault itself.
	VaultPrefix AddressPrefix = "nhbv"
)

// AddressLength is the raw byte length of every account identifier.
const AddressLength = 20

var errAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address represents a 20-byte account identifier with a bech32 prefix. The
// zero value is the empty address.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the provided bytes. The slice is copied so callers may reuse
// their buffer.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, errAddressLength
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress is NewAddress for compile-time constant inputs and tests.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the bech32 form, or "" for the zero address.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	words, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err == nil {
		var out string
		if out, err = bech32.Encode(string(a.prefix), words); err == nil {
			return out
		}
	}
	panic(fmt.Sprintf("crypto: encode %s address: %v", a.prefix, err))
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	if a.bytes == nil {
		return nil
	}
	return append([]byte(nil), a.bytes...)
}

// Prefix is the human-readable part the address renders with.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no bytes.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares the raw bytes of two addresses. Prefixes are presentation only
// and do not participate in identity.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// Key returns a map key identifying the account independent of its prefix.
func (a Address) Key() string {
	return hex.EncodeToString(a.bytes)
}

// MarshalText renders the bech32 form so addresses serialise cleanly in JSON.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a bech32 or 0x-prefixed hex address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(bytes.TrimSpace(text)) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DecodeAddress parses a bech32 address. The prefix is not restricted.
func DecodeAddress(encoded string) (Address, error) {
	hrp, words, err := bech32.Decode(encoded)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: bech32 payload: %w", err)
	}
	return NewAddress(AddressPrefix(hrp), raw)
}

// ParseAddress accepts either a bech32 address or a 0x-prefixed hex string.
// Hex input is assigned the NHB prefix. Input is NFKC normalised first so
// full-width forms pasted from documents parse.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(norm.NFKC.String(raw))
	if trimmed == "" {
		return Address{}, errors.New("crypto: address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return Address{}, fmt.Errorf("crypto: hex address: %w", err)
		}
		return NewAddress(NHBPrefix, raw)
	}
	return DecodeAddress(strings.ToLower(trimmed))
}

// PrivateKey is a secp256k1 signing key for administrators and depositors.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is the verifying half of a PrivateKey.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey draws a fresh key from crypto/rand.
func GeneratePrivateKey() (*PrivateKey, error) {
	sk, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{PrivateKey: sk}, nil
}

// Bytes is the 32-byte big-endian scalar.
func (k *PrivateKey) Bytes() []byte { return crypto.FromECDSA(k.PrivateKey) }

func (k *PrivateKey) PubKey() *PublicKey { return &PublicKey{PublicKey: &k.PublicKey} }

// Address derives the keccak account identifier under the NHB prefix.
func (k *PublicKey) Address() Address {
	return MustNewAddress(NHBPrefix, crypto.PubkeyToAddress(*k.PublicKey).Bytes())
}

// Sign produces a 65-byte recoverable secp256k1 signature over digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(digest, k.PrivateKey)
}

// RecoverAddress returns the address whose key produced sig over digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(sig) != crypto.SignatureLength {
		return Address{}, fmt.Errorf("crypto: signature must be %d bytes", crypto.SignatureLength)
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return NewAddress(NHBPrefix, crypto.PubkeyToAddress(*pub).Bytes())
}
