package config

// AuthConfig controls bearer authentication on the RPC endpoint. The token
// subject is the bech32 address the request acts for.
type AuthConfig struct {
	Enabled        bool   `toml:"Enabled"`
	HMACSecret     string `toml:"HMACSecret"`
	Issuer         string `toml:"Issuer"`
	Audience       string `toml:"Audience"`
	AllowAnonymous bool   `toml:"AllowAnonymous"`
	// ClockSkewSeconds is the leeway applied to exp/nbf checks.
	ClockSkewSeconds int `toml:"ClockSkewSeconds"`
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	// LogRequests writes one line per HTTP request.
	LogRequests bool `toml:"LogRequests"`
}

// GenesisBalance credits Address with Balance (base units, decimal) the first
// time the state database is opened.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// CollectionConfig deploys an in-process token collection. Collections only
// exist while DevMode is on.
type CollectionConfig struct {
	Address string `toml:"Address"`
	Name    string `toml:"Name"`
	// Register lists the collection with the marketplace at startup.
	Register bool `toml:"Register"`
}
