package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"nhbvault/crypto"
)

// Method selectors understood by the vault dispatcher.
const (
	MethodDepositNative  = "depositNative"
	MethodDepositStable  = "depositStable"
	MethodWithdrawNative = "withdrawNative"
	MethodWithdrawStable = "withdrawStable"
	MethodSetPaused      = "setPaused"
	MethodTransferAdmin  = "transferAdmin"
)

// Call is a signed request to invoke a vault entry point. Value carries the
// native amount attached to the call; Amount is the explicit argument of the
// withdraw and stable deposit entry points. Both are decimal strings.
type Call struct {
	Method    string `json:"method"`
	Nonce     uint64 `json:"nonce"`
	Value     string `json:"value,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Paused    *bool  `json:"paused,omitempty"`
	Admin     string `json:"admin,omitempty"`
	Signature string `json:"signature,omitempty"`

	from crypto.Address
}

// Hash returns the digest covered by the signature.
func (c *Call) Hash() ([]byte, error) {
	callData := struct {
		Method string
		Nonce  uint64
		Value  string
		Amount string
		Paused *bool
		Admin  string
	}{c.Method, c.Nonce, strings.TrimSpace(c.Value), strings.TrimSpace(c.Amount), c.Paused, strings.TrimSpace(c.Admin)}

	b, err := json.Marshal(callData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

func (c *Call) Sign(key *crypto.PrivateKey) error {
	hash, err := c.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	c.Signature = "0x" + hex.EncodeToString(sig)
	c.from = key.PubKey().Address()
	return nil
}

// From recovers the caller from the signature.
func (c *Call) From() (crypto.Address, error) {
	if !c.from.IsZero() {
		return c.from, nil
	}
	raw := strings.TrimPrefix(strings.TrimSpace(c.Signature), "0x")
	if raw == "" {
		return crypto.Address{}, errors.New("call: signature required")
	}
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("call: decode signature: %w", err)
	}
	hash, err := c.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	from, err := crypto.RecoverAddress(hash, sig)
	if err != nil {
		return crypto.Address{}, err
	}
	c.from = from
	return from, nil
}

// ValueAmount parses the attached native value. An empty field is zero.
func (c *Call) ValueAmount() (*uint256.Int, error) {
	return parseAmount("value", c.Value)
}

// ArgAmount parses the amount argument. An empty field is zero.
func (c *Call) ArgAmount() (*uint256.Int, error) {
	return parseAmount("amount", c.Amount)
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("call: invalid %s %q: %w", field, raw, err)
	}
	return value, nil
}
