package config

import (
	"fmt"
	"strings"

	"nftmarket/crypto"
)

var knownLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}

// Validate checks that every address and amount in the file decodes.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, err := c.FeeSchedule(); err != nil {
		return err
	}
	if _, err := c.GenesisAlloc(); err != nil {
		return err
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("config: Auth.HMACSecret required when auth is enabled")
	}
	if c.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("config: Auth.ClockSkewSeconds must not be negative")
	}
	for key, limit := range c.RateLimits {
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("config: RateLimits.%s.RequestsPerMinute must be positive", key)
		}
		if limit.Burst < 0 {
			return fmt.Errorf("config: RateLimits.%s.Burst must not be negative", key)
		}
	}
	if ratio := c.Telemetry.SampleRatio; ratio < 0 || ratio > 1 {
		return fmt.Errorf("config: Telemetry.SampleRatio must be within [0, 1]")
	}
	if (c.Telemetry.Traces || c.Telemetry.Metrics) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: Telemetry.Endpoint required when exporting")
	}
	if _, ok := knownLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))]; !ok && c.Logging.Level != "" {
		return fmt.Errorf("config: unknown Logging.Level %q", c.Logging.Level)
	}
	if len(c.Collections) > 0 && !c.DevMode {
		return fmt.Errorf("config: Collections require DevMode")
	}
	seen := make(map[[20]byte]struct{}, len(c.Collections))
	for i, coll := range c.Collections {
		addr, err := crypto.ParseAddress(crypto.ContractPrefix, strings.TrimSpace(coll.Address))
		if err != nil {
			return fmt.Errorf("config: Collections[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("config: Collections[%d]: duplicate address %s", i, coll.Address)
		}
		seen[addr] = struct{}{}
	}
	return nil
}
