package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nhbvault/config"
	"nhbvault/crypto"
	"nhbvault/integrations/evm"
	"nhbvault/native/bank"
	"nhbvault/native/vault"
	"nhbvault/storage"
)

const custodySeed = "nhbvault/custody"

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemDB(), nil
	case config.StorageLevelDB:
		dir := filepath.Join(cfg.DataDir, "ledger")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewLevelDB(dir)
		if err != nil {
			return nil, fmt.Errorf("open ledger database: %w", err)
		}
		return db, nil
	case config.StorageBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "ledger.bolt"))
		if err != nil {
			return nil, fmt.Errorf("open ledger database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// buildFeed returns the configured price source. The manual source reports
// its price as fresh at every read so a dev daemon never goes stale.
func buildFeed(ctx context.Context, cfg *config.Config, now func() time.Time) (vault.PriceFeed, error) {
	switch strings.ToLower(cfg.Oracle.Source) {
	case "manual":
		price, err := cfg.Oracle.Price()
		if err != nil {
			return nil, err
		}
		return &freshFeed{feed: vault.NewManualFeed(price, now()), now: now}, nil
	case "evm":
		client, err := evm.Dial(cfg.Oracle.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("dial evm: %w", err)
		}
		timeout := time.Duration(cfg.Oracle.CallTimeoutSeconds) * time.Second
		feed, err := evm.NewAggregatorFeed(client, common.HexToAddress(cfg.Oracle.Aggregator), timeout)
		if err != nil {
			return nil, err
		}
		decimals, err := feed.Decimals(ctx)
		if err != nil {
			return nil, fmt.Errorf("read aggregator decimals: %w", err)
		}
		if decimals != cfg.Vault.PriceDecimals {
			return nil, fmt.Errorf("aggregator reports %d decimals, vault.PriceDecimals is %d", decimals, cfg.Vault.PriceDecimals)
		}
		return feed, nil
	default:
		return nil, fmt.Errorf("unknown oracle source %q", cfg.Oracle.Source)
	}
}

type freshFeed struct {
	feed *vault.ManualFeed
	now  func() time.Time
}

func (f *freshFeed) LatestRound(ctx context.Context) (vault.Round, error) {
	round, err := f.feed.LatestRound(ctx)
	if err != nil {
		return round, err
	}
	round.UpdatedAt = f.now()
	return round, nil
}

func buildCustody(cfg *config.Config) (*bank.Custody, error) {
	if raw := strings.TrimSpace(cfg.Custody.Address); raw != "" {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("custody address: %w", err)
		}
		return bank.NewCustody(addr), nil
	}
	seed := ethcrypto.Keccak256([]byte(custodySeed + "/" + cfg.NetworkName))
	return bank.NewCustody(crypto.MustNewAddress(crypto.VaultPrefix, seed[len(seed)-crypto.AddressLength:])), nil
}

func engineParams(cfg *config.Config) (vault.Params, crypto.Address, error) {
	limits, err := cfg.Vault.Limits()
	if err != nil {
		return vault.Params{}, crypto.Address{}, err
	}
	admin, err := cfg.Vault.AdminAddress()
	if err != nil {
		return vault.Params{}, crypto.Address{}, err
	}
	factor, err := vault.NormalizationFactor(cfg.Vault.NativeDecimals, cfg.Vault.PriceDecimals)
	if err != nil {
		return vault.Params{}, crypto.Address{}, err
	}
	params := vault.Params{
		StableAsset:         cfg.Vault.StableAsset,
		GlobalCapUSD6:       limits.GlobalCapUSD6,
		WithdrawalCapUSD6:   limits.WithdrawalCapUSD6,
		MaxStaleness:        limits.MaxStaleness,
		NormalizationFactor: factor,
	}
	if err := params.Validate(); err != nil {
		return vault.Params{}, crypto.Address{}, err
	}
	return params, admin, nil
}
