package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NFSE_PROCESSING_STALE_AFTER", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "nfse.jobs", cfg.Queue.Topic)
	assert.Equal(t, "nfse.jobs.dlq", cfg.Queue.PoisonTopic())
	assert.False(t, cfg.Queue.UsesKafka())
	assert.Equal(t, 10*time.Minute, cfg.NFSe.StaleAfter)
	assert.Equal(t, 30*time.Minute, cfg.NFSe.CertCacheTTL)
	assert.Equal(t, "./docs/swagger.json", cfg.HTTP.DocsFile)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("NFSE_HTTP_TIMEOUT", "45")
	t.Setenv("NFSE_CERT_CACHE_TTL", "15m")
	t.Setenv("DB_PORT", "6543")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Queue.Brokers)
	assert.True(t, cfg.Queue.UsesKafka())
	assert.Equal(t, 45*time.Second, cfg.NFSe.HTTPTimeout)
	assert.Equal(t, 15*time.Minute, cfg.NFSe.CertCacheTTL)
	assert.Equal(t, 6543, cfg.DB.Port)
}

func TestDBConfig_DSNEscapesPassword(t *testing.T) {
	dsn := config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "zapflow", SSLMode: "disable"}.DSN()
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/zapflow?sslmode=disable", dsn)
}
