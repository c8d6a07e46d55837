package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "postgres", config.Store.Driver)
	require.Equal(t, "payments", config.Broker.Exchange)
	require.Equal(t, "swpt_payments", config.Broker.Queue)
	require.True(t, config.HTTP.Enabled)
	require.Equal(t, ":8080", config.HTTP.ListenAddr)
	require.Equal(t, "info", config.Log.Level)
	require.Equal(t, "json", config.Log.Format)
	require.Equal(t, float64(DefaultFlushPaymentOrdersDays), config.FlushPaymentOrdersDays)
	require.Equal(t, float64(DefaultFlushPaymentProofsDays), config.FlushPaymentProofsDays)
	require.Empty(t, config.ConfigPath())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_STORE_HOST", "db.internal")
	t.Setenv("APP_BROKER_QUEUE", "payments_test")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_FLUSH_PAYMENT_ORDERS_DAYS", "7.5")

	config, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "db.internal", config.Store.Host)
	require.Equal(t, "payments_test", config.Broker.Queue)
	require.Equal(t, "debug", config.Log.Level)
	require.Equal(t, 7.5, config.FlushPaymentOrdersDays)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paycoordd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
flush_payment_proofs_days = 90.0

[store]
host = "filehost"

[log]
level = "warn"
format = "console"
`), 0o600))

	config, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "filehost", config.Store.Host)
	require.Equal(t, "warn", config.Log.Level)
	require.Equal(t, "console", config.Log.Format)
	require.Equal(t, 90.0, config.FlushPaymentProofsDays)
	require.Equal(t, path, config.ConfigPath())
}

func TestEnvironmentBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paycoordd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[store]
host = "filehost"
`), 0o600))

	t.Setenv("APP_STORE_HOST", "envhost")
	config, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "envhost", config.Store.Host)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"http without address", func(c *Config) { c.HTTP.ListenAddr = "" }},
		{"zero order flush days", func(c *Config) { c.FlushPaymentOrdersDays = 0 }},
		{"negative proof flush days", func(c *Config) { c.FlushPaymentProofsDays = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config, err := Load("")
			require.NoError(t, err)
			tc.mutate(config)
			require.Error(t, config.Validate())
		})
	}
}
