package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "KAFKA_BROKERS", "OUTBOX_ENABLED", "ARCHIVE_DRIVER", "STORE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.OutboxEnabled)
	assert.Equal(t, ArchiveNone, cfg.ArchiveDriver)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_ENABLED", "true")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("ARCHIVE_S3_PATH_STYLE", "1")

	cfg := Load()

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.OutboxEnabled)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.True(t, cfg.ArchiveS3PathStyle)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "lots")
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("OUTBOX_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.False(t, cfg.OutboxEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown store driver", func(c *Config) { c.StoreDriver = "mysql" }, `unknown STORE_DRIVER "mysql"`},
		{"unknown archive driver", func(c *Config) { c.ArchiveDriver = "gcs" }, `unknown ARCHIVE_DRIVER "gcs"`},
		{"s3 without bucket", func(c *Config) { c.ArchiveDriver = ArchiveS3 }, "ARCHIVE_S3_BUCKET"},
		{"outbox without brokers", func(c *Config) { c.OutboxEnabled = true; c.KafkaBrokers = nil }, "KAFKA_BROKERS"},
		{"batch size", func(c *Config) { c.OutboxBatchSize = 0 }, "OUTBOX_BATCH_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.StoreDriver = DriverMemory
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
