package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "KAFKA_BROKERS", "NOTIFY_SINK", "TX_TIMEOUT", "RUN_MIGRATIONS", "NOTIFIER_WORKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, SinkKafka, cfg.NotifySink)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 4, cfg.NotifierWorkers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("NOTIFY_SINK", "BOTH")
	t.Setenv("TX_TIMEOUT", "750ms")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("NOTIFIER_WORKERS", "16")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, SinkBoth, cfg.NotifySink)
	assert.Equal(t, 750*time.Millisecond, cfg.TxTimeout)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, 16, cfg.NotifierWorkers)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("NOTIFY_SINK", "carrier-pigeon")
	t.Setenv("TX_TIMEOUT", "soon")
	t.Setenv("NOTIFIER_WORKERS", "-3")

	cfg := Load()
	assert.Equal(t, SinkKafka, cfg.NotifySink)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 4, cfg.NotifierWorkers)
}
