package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nhbvault/crypto"
)

// Validate rejects configurations the daemon cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	switch cfg.Storage {
	case StorageLevelDB, StorageBolt, StorageMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage)
	}
	if _, err := cfg.Vault.AdminAddress(); err != nil {
		return err
	}
	limits, err := cfg.Vault.Limits()
	if err != nil {
		return err
	}
	if limits.GlobalCapUSD6.IsZero() {
		return fmt.Errorf("vault: GlobalCapUSD6 must be positive")
	}
	if limits.WithdrawalCapUSD6.IsZero() {
		return fmt.Errorf("vault: WithdrawalCapUSD6 must be positive")
	}
	if cfg.Vault.MaxStalenessSeconds == 0 {
		return fmt.Errorf("vault: MaxStalenessSeconds must be positive")
	}
	if int(cfg.Vault.NativeDecimals)+int(cfg.Vault.PriceDecimals) < 6 {
		return fmt.Errorf("vault: NativeDecimals + PriceDecimals must be at least 6")
	}

	switch strings.ToLower(cfg.Oracle.Source) {
	case "manual":
		price, err := cfg.Oracle.Price()
		if err != nil {
			return err
		}
		if price.Sign() <= 0 {
			return fmt.Errorf("oracle: ManualPrice must be positive")
		}
	case "evm":
		if strings.TrimSpace(cfg.Oracle.Endpoint) == "" {
			return fmt.Errorf("oracle: Endpoint required for evm source")
		}
		if !common.IsHexAddress(cfg.Oracle.Aggregator) {
			return fmt.Errorf("oracle: Aggregator %q is not a hex address", cfg.Oracle.Aggregator)
		}
	default:
		return fmt.Errorf("oracle: unknown source %q", cfg.Oracle.Source)
	}

	if addr := strings.TrimSpace(cfg.Custody.Address); addr != "" {
		if _, err := crypto.ParseAddress(addr); err != nil {
			return fmt.Errorf("custody: invalid Address: %w", err)
		}
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" && strings.TrimSpace(cfg.Auth.HMACSecretEnv) == "" {
		return fmt.Errorf("auth: HMACSecret or HMACSecretEnv required when enabled")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rateLimit: values must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("rateLimit: Burst required with RequestsPerSecond")
	}
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("webhook: URL must be http(s), got %q", url)
		}
		if strings.TrimSpace(cfg.Webhook.Secret) == "" && strings.TrimSpace(cfg.Webhook.SecretEnv) == "" {
			return fmt.Errorf("webhook: Secret or SecretEnv required")
		}
		if cfg.Webhook.MaxAttempts < 0 {
			return fmt.Errorf("webhook: MaxAttempts must not be negative")
		}
	}
	if cfg.Indexer.Enabled {
		switch cfg.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer: unknown driver %q", cfg.Indexer.Driver)
		}
		if strings.TrimSpace(cfg.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required")
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}
