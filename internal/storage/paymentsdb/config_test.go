package paymentsdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaultsAreValid(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
	require.NoError(t, MemoryConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown driver", func(c *Config) { c.Driver = "sqlite" }, ErrInvalidDriver},
		{"missing host", func(c *Config) { c.Host = "" }, ErrMissingHost},
		{"bad port", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"missing database", func(c *Config) { c.Database = "" }, ErrMissingDatabase},
		{"missing username", func(c *Config) { c.Username = "" }, ErrMissingUsername},
		{"negative max open", func(c *Config) { c.MaxOpenConns = -1 }, ErrInvalidMaxOpenConns},
		{"idle exceeds open", func(c *Config) { c.MaxOpenConns = 2; c.MaxIdleConns = 3 }, ErrMaxIdleExceedsMaxOpen},
		{"zero timeout", func(c *Config) { c.DefaultTimeout = 0 }, ErrInvalidTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := NewConfig()
			tc.mutate(config)
			require.ErrorIs(t, config.Validate(), tc.wantErr)
		})
	}
}

func TestPostgresDriverAliasNormalized(t *testing.T) {
	config := NewConfig()
	config.Driver = "postgresql"
	require.NoError(t, config.Validate())
	require.Equal(t, "postgres", config.Driver)
}

func TestBuildConnectionString(t *testing.T) {
	config := NewConfig()
	config.Host = "db"
	config.Port = 5433
	config.Database = "payments"
	config.Username = "svc"
	config.Password = "s3cret"
	config.SSLMode = "require"

	dsn, err := config.BuildConnectionString()
	require.NoError(t, err)
	require.Contains(t, dsn, "postgres://svc:s3cret@db:5433/payments")
	require.Contains(t, dsn, "sslmode=require")
	require.Contains(t, dsn, "application_name=paycoord")
}

func TestExplicitConnectionStringWins(t *testing.T) {
	config := NewConfig().WithConnectionString("postgres://elsewhere/other")
	dsn, err := config.BuildConnectionString()
	require.NoError(t, err)
	require.Equal(t, "postgres://elsewhere/other", dsn)
}

func TestStringRedactsPassword(t *testing.T) {
	config := NewConfig().WithCredentials("svc", "s3cret")
	require.NotContains(t, config.String(), "s3cret")
}

func TestConfigClone(t *testing.T) {
	config := NewConfig()
	clone := config.Clone()
	clone.Host = "elsewhere"
	clone.ConnMaxLifetime = time.Minute
	require.Equal(t, "localhost", config.Host)
	require.Equal(t, time.Hour, config.ConnMaxLifetime)
}
