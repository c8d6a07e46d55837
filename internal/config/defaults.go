package config

import (
	"github.com/spf13/viper"

	"github.com/swptgo/paycoord/internal/broker"
	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Default flush cutoffs, in days. They match the housekeeping defaults
// of the APP_FLUSH_PAYMENT_ORDERS_DAYS and APP_FLUSH_PAYMENT_PROOFS_DAYS
// environment variables.
const (
	DefaultFlushPaymentOrdersDays = 30
	DefaultFlushPaymentProofsDays = 180
)

// setDefaults seeds viper with the built-in defaults.
func setDefaults(v *viper.Viper) {
	store := paymentsdb.NewConfig()
	v.SetDefault("store.driver", store.Driver)
	v.SetDefault("store.host", store.Host)
	v.SetDefault("store.port", store.Port)
	v.SetDefault("store.database", store.Database)
	v.SetDefault("store.username", store.Username)
	v.SetDefault("store.password", store.Password)
	v.SetDefault("store.ssl_mode", store.SSLMode)
	v.SetDefault("store.max_open_conns", store.MaxOpenConns)
	v.SetDefault("store.max_idle_conns", store.MaxIdleConns)
	v.SetDefault("store.conn_max_lifetime", store.ConnMaxLifetime)
	v.SetDefault("store.conn_max_idle_time", store.ConnMaxIdleTime)
	v.SetDefault("store.default_timeout", store.DefaultTimeout)

	bus := broker.NewConfig()
	v.SetDefault("broker.url", bus.URL)
	v.SetDefault("broker.exchange", bus.Exchange)
	v.SetDefault("broker.queue", bus.Queue)
	v.SetDefault("broker.consumers", bus.Consumers)
	v.SetDefault("broker.prefetch", bus.Prefetch)
	v.SetDefault("broker.relay_batch_size", bus.RelayBatchSize)
	v.SetDefault("broker.relay_interval", bus.RelayInterval)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("flush_payment_orders_days", DefaultFlushPaymentOrdersDays)
	v.SetDefault("flush_payment_proofs_days", DefaultFlushPaymentProofsDays)
}
