package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nhbvault/crypto"
)

func testAdmin(t *testing.T) string {
	t.Helper()
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0x42
	raw[len(raw)-1] = 0x24
	return crypto.MustNewAddress(crypto.NHBPrefix, raw).String()
}

func TestLoadCreatesDefaultWithAdminKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.FileExists(t, filepath.Join(dir, "admin.keystore"))
	require.NotEmpty(t, cfg.Vault.Admin)
	require.NoError(t, Validate(cfg))

	key, err := crypto.LoadFromKeystore(cfg.Vault.AdminKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.Vault.Admin)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Vault.Admin, reloaded.Vault.Admin)
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
Storage = "memory"

[vault]
Admin = "` + testAdmin(t) + `"
StableAsset = "USDC"
GlobalCapUSD6 = "5000000000"
WithdrawalCapUSD6 = "100000000"
MaxStalenessSeconds = 120

[oracle]
Source = "evm"
Endpoint = "http://localhost:8546"
Aggregator = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"

[auth]
Enabled = true
HMACSecretEnv = "VAULT_JWT_SECRET"

[indexer]
Enabled = true
Driver = "postgres"
DSN = "postgres://vault@localhost/vault"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, uint8(18), cfg.Vault.NativeDecimals)
	require.Equal(t, uint8(8), cfg.Vault.PriceDecimals)
	require.Equal(t, "evm", cfg.Oracle.Source)
	require.True(t, cfg.Auth.Enabled)
	require.NoError(t, Validate(cfg))

	limits, err := cfg.Vault.Limits()
	require.NoError(t, err)
	require.Equal(t, "5000000000", limits.GlobalCapUSD6.Dec())
	require.Equal(t, "100000000", limits.WithdrawalCapUSD6.Dec())
	require.Equal(t, float64(120), limits.MaxStaleness.Seconds())
}

func TestLoadRejectsUnknownTOMLKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bogus = 1\n"), 0o600))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown key")
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	contents := `listenAddress: ":7000"
vault:
  admin: "` + testAdmin(t) + `"
  globalCapUSD6: "1000000000"
  withdrawalCapUSD6: "1000000"
  maxStalenessSeconds: 60
oracle:
  source: manual
  manualPrice: "200000000000"
rateLimit:
  requestsPerSecond: 5
  burst: 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddress)
	require.Equal(t, StorageLevelDB, cfg.Storage)
	require.Equal(t, 10, cfg.RateLimit.Burst)
	require.NoError(t, Validate(cfg))
}

func TestValidateRejections(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Vault.Admin = testAdmin(t)
		return cfg
	}
	require.NoError(t, Validate(valid()))

	cases := map[string]func(*Config){
		"zero global cap":     func(c *Config) { c.Vault.GlobalCapUSD6 = "0" },
		"zero withdrawal cap": func(c *Config) { c.Vault.WithdrawalCapUSD6 = "0" },
		"bad cap":             func(c *Config) { c.Vault.GlobalCapUSD6 = "ten" },
		"zero staleness":      func(c *Config) { c.Vault.MaxStalenessSeconds = 0 },
		"bad admin":           func(c *Config) { c.Vault.Admin = "nhb1notanaddress" },
		"unknown oracle":      func(c *Config) { c.Oracle.Source = "chainlink" },
		"evm without address": func(c *Config) { c.Oracle.Source = "evm"; c.Oracle.Endpoint = "http://x" },
		"negative price":      func(c *Config) { c.Oracle.ManualPrice = "-1" },
		"bad indexer driver":  func(c *Config) { c.Indexer.Driver = "mysql" },
		"auth without secret": func(c *Config) { c.Auth.Enabled = true },
		"webhook bad scheme":  func(c *Config) { c.Webhook.URL = "ftp://hooks"; c.Webhook.Secret = "s" },
		"webhook no secret":   func(c *Config) { c.Webhook.URL = "https://hooks" },
		"bad storage":         func(c *Config) { c.Storage = "s3" },
		"bad custody":         func(c *Config) { c.Custody.Address = "0x12" },
		"bad sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
		"burst missing":       func(c *Config) { c.RateLimit.Burst = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}
