package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"nhbvault/crypto"
)

// Storage backends.
const (
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
	StorageMemory  = "memory"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listenAddress"`
	DataDir       string `toml:"DataDir" yaml:"dataDir"`
	NetworkName   string `toml:"NetworkName" yaml:"networkName"`
	Storage       string `toml:"Storage" yaml:"storage"`

	Vault     Vault     `toml:"vault" yaml:"vault"`
	Oracle    Oracle    `toml:"oracle" yaml:"oracle"`
	Custody   Custody   `toml:"custody" yaml:"custody"`
	Auth      Auth      `toml:"auth" yaml:"auth"`
	RateLimit RateLimit `toml:"rateLimit" yaml:"rateLimit"`
	Indexer   Indexer   `toml:"indexer" yaml:"indexer"`
	Webhook   Webhook   `toml:"webhook" yaml:"webhook"`
	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
	Logging   Logging   `toml:"logging" yaml:"logging"`
}

// Load loads the configuration from the given path. YAML is used for .yaml
// and .yml files, TOML otherwise. A missing file is replaced by a default
// configuration with a freshly generated administrator keystore.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}
	applyDefaults(cfg)

	if strings.TrimSpace(cfg.Vault.Admin) == "" {
		if err := ensureAdminKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh deployment, without
// an administrator.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8545",
		DataDir:       "./nhbvault-data",
		NetworkName:   "nhb-local",
		Storage:       StorageLevelDB,
		Vault: Vault{
			StableAsset:         "USDC",
			GlobalCapUSD6:       "1000000000000",
			WithdrawalCapUSD6:   "10000000000",
			MaxStalenessSeconds: 3600,
			NativeDecimals:      18,
			PriceDecimals:       8,
		},
		Oracle: Oracle{
			Source:             "manual",
			ManualPrice:        "200000000000",
			CallTimeoutSeconds: 5,
		},
		Custody: Custody{DevRoutes: true},
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Indexer: Indexer{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "nhbvault-events.db",
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
		Logging:   Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5},
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = def.NetworkName
	}
	if strings.TrimSpace(cfg.Storage) == "" {
		cfg.Storage = def.Storage
	}
	if strings.TrimSpace(cfg.Oracle.Source) == "" {
		cfg.Oracle.Source = def.Oracle.Source
	}
	if cfg.Oracle.CallTimeoutSeconds == 0 {
		cfg.Oracle.CallTimeoutSeconds = def.Oracle.CallTimeoutSeconds
	}
	if cfg.Vault.NativeDecimals == 0 {
		cfg.Vault.NativeDecimals = def.Vault.NativeDecimals
	}
	if cfg.Vault.PriceDecimals == 0 {
		cfg.Vault.PriceDecimals = def.Vault.PriceDecimals
	}
	if strings.TrimSpace(cfg.Indexer.Driver) == "" {
		cfg.Indexer.Driver = def.Indexer.Driver
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

func ensureAdminKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.Vault.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, err = crypto.GeneratePrivateKey()
		if err != nil {
			return err
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		key, err = crypto.LoadFromKeystore(keystorePath, "")
		if err != nil {
			return fmt.Errorf("admin keystore %s: %w", keystorePath, err)
		}
	}

	cfg.Vault.AdminKeystorePath = keystorePath
	cfg.Vault.Admin = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := ensureAdminKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
