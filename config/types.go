package config

// Vault captures the engine construction parameters. Amounts are decimal
// strings so 256-bit caps survive TOML and YAML decoding.
type Vault struct {
	Admin               string `toml:"Admin" yaml:"admin"`
	AdminKeystorePath   string `toml:"AdminKeystorePath" yaml:"adminKeystorePath"`
	StableAsset         string `toml:"StableAsset" yaml:"stableAsset"`
	GlobalCapUSD6       string `toml:"GlobalCapUSD6" yaml:"globalCapUSD6"`
	WithdrawalCapUSD6   string `toml:"WithdrawalCapUSD6" yaml:"withdrawalCapUSD6"`
	MaxStalenessSeconds uint64 `toml:"MaxStalenessSeconds" yaml:"maxStalenessSeconds"`
	NativeDecimals      uint8  `toml:"NativeDecimals" yaml:"nativeDecimals"`
	PriceDecimals       uint8  `toml:"PriceDecimals" yaml:"priceDecimals"`
	PausedOnStart       bool   `toml:"PausedOnStart" yaml:"pausedOnStart"`
}

// Oracle selects and configures the native/USD price source.
type Oracle struct {
	// Source is "manual" or "evm".
	Source string `toml:"Source" yaml:"source"`
	// Endpoint is the JSON-RPC URL used by the evm source.
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	// Aggregator is the 0x address of the price aggregator contract.
	Aggregator         string `toml:"Aggregator" yaml:"aggregator"`
	ManualPrice        string `toml:"ManualPrice" yaml:"manualPrice"`
	CallTimeoutSeconds uint64 `toml:"CallTimeoutSeconds" yaml:"callTimeoutSeconds"`
}

// Custody configures the in-memory custody bank.
type Custody struct {
	Address   string `toml:"Address" yaml:"address"`
	DevRoutes bool   `toml:"DevRoutes" yaml:"devRoutes"`
}

// Auth controls bearer token verification on the HTTP API.
type Auth struct {
	Enabled       bool   `toml:"Enabled" yaml:"enabled"`
	HMACSecret    string `toml:"HMACSecret" yaml:"hmacSecret"`
	HMACSecretEnv string `toml:"HMACSecretEnv" yaml:"hmacSecretEnv"`
	Issuer        string `toml:"Issuer" yaml:"issuer"`
	Audience      string `toml:"Audience" yaml:"audience"`
}

// RateLimit configures the per-client token bucket.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requestsPerSecond"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Indexer configures the event journal database.
type Indexer struct {
	Enabled bool `toml:"Enabled" yaml:"enabled"`
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

// Webhook forwards committed vault events to an HTTP endpoint. Deliveries
// are signed with HMAC-SHA256 over the body.
type Webhook struct {
	URL         string   `toml:"URL" yaml:"url"`
	Secret      string   `toml:"Secret" yaml:"secret"`
	SecretEnv   string   `toml:"SecretEnv" yaml:"secretEnv"`
	Types       []string `toml:"Types" yaml:"types"`
	MaxAttempts int      `toml:"MaxAttempts" yaml:"maxAttempts"`
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	Env        string `toml:"Env" yaml:"env"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
}
