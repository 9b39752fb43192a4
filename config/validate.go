package config

import (
	"fmt"
	"strings"

	"nengajo/crypto"
)

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chainId must be non-zero")
	}
	if strings.TrimSpace(c.Drop.Name) == "" || strings.TrimSpace(c.Drop.Symbol) == "" {
		return fmt.Errorf("drop: name and symbol are required")
	}
	if c.Drop.OpenAt < 0 || c.Drop.CloseAt < 0 {
		return fmt.Errorf("drop: window bounds must be non-negative unix seconds")
	}
	if c.Drop.OpenAt > c.Drop.CloseAt {
		return fmt.Errorf("drop: openAt %d after closeAt %d", c.Drop.OpenAt, c.Drop.CloseAt)
	}
	if _, err := crypto.ParseAddress(c.Drop.InitialAdmin); err != nil {
		return fmt.Errorf("drop.InitialAdmin: %w", err)
	}
	if _, err := crypto.ParseAddress(c.Drop.FeeRecipient); err != nil {
		return fmt.Errorf("drop.FeeRecipient: %w", err)
	}
	perCopy, err := parseAmount(c.GatingToken.FeePerCopy)
	if err != nil {
		return fmt.Errorf("gatingToken.FeePerCopy: %w", err)
	}
	if perCopy.Sign() == 0 {
		return fmt.Errorf("gatingToken.FeePerCopy must be positive")
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Indexer.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sampleRatio must be within [0,1]")
	}
	return nil
}
