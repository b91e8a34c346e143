package monitoring_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/infrastructure/monitoring"
	"github.com/zapflow/nfse-api/pkg/config"
	"github.com/zapflow/nfse-api/pkg/logger"
)

func TestSentryReporter_DisabledWithoutDSN(t *testing.T) {
	r, err := monitoring.NewSentryReporter(config.SentryConfig{}, logger.Nop())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.CaptureException(errors.New("boom"), map[string]string{"invoice_id": "x"})
	})
	assert.True(t, r.Flush(time.Millisecond))
}

func TestSentryReporter_InvalidDSN(t *testing.T) {
	_, err := monitoring.NewSentryReporter(config.SentryConfig{DSN: "::não é dsn"}, logger.Nop())
	assert.Error(t, err)
}
