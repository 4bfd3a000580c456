package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nftmarket/crypto"
	"nftmarket/native/fees"
)

const (
	DefaultListenAddress = ":8547"
	DefaultDataDir       = "./market-data"
	DefaultFeeRate       = "25/1000"
)

// Config is the marketd configuration file.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`
	// Admin is the bech32 address allowed to run admin operations. It only
	// seeds a fresh database; afterwards the stored admin wins.
	Admin        string `toml:"Admin"`
	FeeRate      string `toml:"FeeRate"`
	FeeCollector string `toml:"FeeCollector"`
	// EventDSN selects the event journal database. Empty means a sqlite file
	// inside DataDir; postgres:// DSNs use postgres.
	EventDSN       string                     `toml:"EventDSN"`
	AllowedOrigins []string                   `toml:"AllowedOrigins"`
	DevMode        bool                       `toml:"DevMode"`
	Auth           AuthConfig                 `toml:"Auth"`
	RateLimits     map[string]RateLimitConfig `toml:"RateLimits"`
	Telemetry      TelemetryConfig            `toml:"Telemetry"`
	Logging        LoggingConfig              `toml:"Logging"`
	Genesis        []GenesisBalance           `toml:"Genesis"`
	Collections    []CollectionConfig         `toml:"Collections"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: %s: unknown key %s", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if strings.TrimSpace(c.FeeRate) == "" {
		c.FeeRate = DefaultFeeRate
	}
	if c.RateLimits == nil {
		c.RateLimits = defaultRateLimits()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func defaultRateLimits() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		"rpc": {RequestsPerMinute: 600, Burst: 60},
		"ws":  {RequestsPerMinute: 30, Burst: 5},
	}
}

// createDefault writes a development configuration with a freshly generated
// admin account and one registered collection.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	admin := key.PubKey().Address()
	collection := crypto.MustNewAddress(crypto.ContractPrefix, []byte("nftmarket-dev-coll-1"))

	cfg := &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		Environment:   "dev",
		Admin:         admin.String(),
		FeeRate:       DefaultFeeRate,
		DevMode:       true,
		RateLimits:    defaultRateLimits(),
		Logging:       LoggingConfig{Level: "info"},
		Genesis: []GenesisBalance{
			{Address: admin.String(), Balance: "1000000000000000000000"},
		},
		Collections: []CollectionConfig{
			{Address: collection.String(), Name: "Dev Collection", Register: true},
		},
	}
	if err := persist(path, cfg); err != nil {
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
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// AdminAddress decodes the configured admin.
func (c *Config) AdminAddress() ([20]byte, error) {
	return crypto.ParseAddress(crypto.MarketPrefix, strings.TrimSpace(c.Admin))
}

// FeeSchedule builds the initial fee schedule. The collector defaults to the
// admin.
func (c *Config) FeeSchedule() (fees.Schedule, error) {
	admin, err := c.AdminAddress()
	if err != nil {
		return fees.Schedule{}, fmt.Errorf("config: Admin: %w", err)
	}
	num, den, err := fees.ParseRate(c.FeeRate)
	if err != nil {
		return fees.Schedule{}, fmt.Errorf("config: FeeRate: %w", err)
	}
	schedule := fees.Schedule{Numerator: num, Denominator: den, Collector: admin}
	if strings.TrimSpace(c.FeeCollector) != "" {
		collector, err := crypto.ParseAddress(crypto.MarketPrefix, strings.TrimSpace(c.FeeCollector))
		if err != nil {
			return fees.Schedule{}, fmt.Errorf("config: FeeCollector: %w", err)
		}
		schedule.Collector = collector
	}
	return schedule, schedule.Validate()
}

// GenesisAlloc decodes the genesis balances, summing duplicate entries.
func (c *Config) GenesisAlloc() (map[[20]byte]*big.Int, error) {
	alloc := make(map[[20]byte]*big.Int, len(c.Genesis))
	for i, entry := range c.Genesis {
		addr, err := crypto.ParseAddress(crypto.MarketPrefix, strings.TrimSpace(entry.Address))
		if err != nil {
			return nil, fmt.Errorf("config: Genesis[%d]: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Balance), 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("config: Genesis[%d]: balance %q must be a positive integer", i, entry.Balance)
		}
		if existing, ok := alloc[addr]; ok {
			amount = new(big.Int).Add(existing, amount)
		}
		alloc[addr] = amount
	}
	return alloc, nil
}

// EventStoreDSN returns the journal DSN, defaulting to a sqlite file in
// DataDir.
func (c *Config) EventStoreDSN() string {
	if dsn := strings.TrimSpace(c.EventDSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "events.db")
}

// StatePath is the LevelDB directory holding marketplace state.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}
