// Package config loads and validates the daemon's configuration from
// defaults, an optional TOML file and APP_-prefixed environment
// variables, in that priority order.
package config

import (
	"fmt"

	"github.com/swptgo/paycoord/internal/broker"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Config is the complete daemon configuration
type Config struct {
	// Store configures the durable store behind the coordinator.
	Store paymentsdb.Config `mapstructure:"store"`

	// Broker configures the message bus connection.
	Broker broker.Config `mapstructure:"broker"`

	// HTTP configures the read-only document server.
	HTTP HTTPConfig `mapstructure:"http"`

	// Log configures logging.
	Log LogConfig `mapstructure:"log"`

	// FlushPaymentOrdersDays is the default age, in days, beyond which
	// finalized payment orders are deleted.
	FlushPaymentOrdersDays float64 `mapstructure:"flush_payment_orders_days"`

	// FlushPaymentProofsDays is the default age, in days, beyond which
	// payment proofs are deleted.
	FlushPaymentProofsDays float64 `mapstructure:"flush_payment_proofs_days"`

	configPath string
}

// HTTPConfig configures the document server
type HTTPConfig struct {
	// Enabled turns the document server on or off.
	Enabled bool `mapstructure:"enabled"`

	// ListenAddr is the address the server binds to.
	ListenAddr string `mapstructure:"listen_addr"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string `mapstructure:"level"`

	// Format selects the encoder: json or console.
	Format string `mapstructure:"format"`
}

// ConfigPath returns the path of the loaded configuration file, or an
// empty string when only defaults and the environment were used.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// Validate checks the complete configuration
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Broker.Validate(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http: listen address is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: invalid level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: invalid format %q", c.Log.Format)
	}
	if c.FlushPaymentOrdersDays <= 0 {
		return fmt.Errorf("flush_payment_orders_days must be positive")
	}
	if c.FlushPaymentProofsDays <= 0 {
		return fmt.Errorf("flush_payment_proofs_days must be positive")
	}
	return nil
}
