package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"nhbvault/native/vault"
)

const aggregatorABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"name":"roundId","type":"uint80"},
    {"name":"answer","type":"int256"},
    {"name":"startedAt","type":"uint256"},
    {"name":"updatedAt","type":"uint256"},
    {"name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the subset of the Ethereum RPC used by the feed.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// AggregatorFeed reads native/USD rounds from a price aggregator contract
// exposing latestRoundData and decimals.
type AggregatorFeed struct {
	caller  ContractCaller
	address common.Address
	abi     abi.ABI
	timeout time.Duration
}

// NewAggregatorFeed binds the feed to the aggregator at address. A zero
// timeout leaves call deadlines to the caller's context.
func NewAggregatorFeed(caller ContractCaller, address common.Address, timeout time.Duration) (*AggregatorFeed, error) {
	if caller == nil {
		return nil, fmt.Errorf("evm feed: contract caller required")
	}
	if (address == common.Address{}) {
		return nil, fmt.Errorf("evm feed: aggregator address required")
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("evm feed: parse abi: %w", err)
	}
	return &AggregatorFeed{caller: caller, address: address, abi: parsed, timeout: timeout}, nil
}

// LatestRound implements vault.PriceFeed.
func (f *AggregatorFeed) LatestRound(ctx context.Context) (vault.Round, error) {
	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return vault.Round{}, err
	}
	if len(out) != 5 {
		return vault.Round{}, fmt.Errorf("evm feed: latestRoundData returned %d values", len(out))
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return vault.Round{}, fmt.Errorf("evm feed: unexpected answer type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return vault.Round{}, fmt.Errorf("evm feed: unexpected updatedAt type %T", out[3])
	}
	if !updatedAt.IsInt64() {
		return vault.Round{}, fmt.Errorf("evm feed: updatedAt %s out of range", updatedAt)
	}
	return vault.Round{Price: answer, UpdatedAt: time.Unix(updatedAt.Int64(), 0)}, nil
}

// Decimals returns the fixed-point precision of reported answers.
func (f *AggregatorFeed) Decimals(ctx context.Context) (uint8, error) {
	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("evm feed: decimals returned %d values", len(out))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("evm feed: unexpected decimals type %T", out[0])
	}
	return decimals, nil
}

func (f *AggregatorFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	if f == nil {
		return nil, errors.New("evm feed: not configured")
	}
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("evm feed: pack %s: %w", method, err)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	to := f.address
	raw, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("evm feed: call %s: %w", method, err)
	}
	out, err := f.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("evm feed: unpack %s: %w", method, err)
	}
	return out, nil
}
