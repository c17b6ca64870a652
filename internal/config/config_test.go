package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.WriteTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.CORSOrigins)
	assert.Equal(t, "http://localhost:8545", cfg.LedgerRPCURL)
	assert.Equal(t, 5, cfg.LedgerConnectAttempts)
	assert.Equal(t, uint64(500000), cfg.LedgerPaymentGas)
	assert.Equal(t, "memory", cfg.PaymentStore)
	assert.True(t, cfg.PaymentLocalFallback)
	assert.Equal(t, "lenient", cfg.PassengerPolicy)
	assert.Equal(t, "@every 5m", cfg.FallbackAuditSchedule)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PAYMENT_LOCAL_FALLBACK", "false")
	t.Setenv("PASSENGER_POLICY", "Strict")
	t.Setenv("WATCH_INTERVAL", "750ms")
	t.Setenv("LEDGER_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000aa")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.PaymentLocalFallback)
	assert.Equal(t, "strict", cfg.PassengerPolicy)
	assert.Equal(t, 750*time.Millisecond, cfg.WatchInterval)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.LedgerContractAddress)
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("PAYMENT_STORE", "postgres")
	t.Setenv("PASSENGER_POLICY", "loose")
	t.Setenv("LEDGER_CONNECT_ATTEMPTS", "0")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PG_DSN")
	assert.Contains(t, err.Error(), "PASSENGER_POLICY")
	assert.Contains(t, err.Error(), "LEDGER_CONNECT_ATTEMPTS")
}

func TestLoadConsumerConfig(t *testing.T) {
	_, err := LoadConsumerConfig()
	require.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "k1:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)
	assert.Equal(t, "chainride-activity", cfg.KafkaGroup)
	assert.Equal(t, ":2112", cfg.MetricsAddr)
	assert.Equal(t, 100, cfg.ActivityMaxEntries)
}
