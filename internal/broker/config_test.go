package broker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaultsAreValid(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.URL = "" }},
		{"missing exchange", func(c *Config) { c.Exchange = "" }},
		{"missing queue", func(c *Config) { c.Queue = "" }},
		{"no consumers", func(c *Config) { c.Consumers = 0 }},
		{"no prefetch", func(c *Config) { c.Prefetch = 0 }},
		{"no batch size", func(c *Config) { c.RelayBatchSize = 0 }},
		{"no interval", func(c *Config) { c.RelayInterval = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := NewConfig()
			tc.mutate(config)
			require.Error(t, config.Validate())
		})
	}
}

func TestDeadLetterNames(t *testing.T) {
	config := NewConfig()
	require.Equal(t, "payments.dead", config.DeadLetterExchange())
	require.Equal(t, "swpt_payments.dead", config.DeadLetterQueue())
}
