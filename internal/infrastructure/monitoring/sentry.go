// Package monitoring envia ao Sentry as falhas do worker de NFS-e.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/zapflow/nfse-api/pkg/config"
	"github.com/zapflow/nfse-api/pkg/logger"
)

// SentryReporter captura exceções quando há DSN configurado; sem DSN é um no-op.
type SentryReporter struct {
	enabled bool
	log     *logger.Logger
}

// NewSentryReporter inicializa o cliente global do Sentry.
func NewSentryReporter(cfg config.SentryConfig, log *logger.Logger) (*SentryReporter, error) {
	if cfg.DSN == "" {
		log.Info().Msg("Sentry desativado")
		return &SentryReporter{log: log}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	}); err != nil {
		return nil, err
	}
	log.Info().Str("environment", cfg.Environment).Msg("Sentry inicializado")
	return &SentryReporter{enabled: true, log: log}, nil
}

// CaptureException envia err com as tags informadas.
func (s *SentryReporter) CaptureException(err error, tags map[string]string) {
	if !s.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Flush aguarda o envio dos eventos pendentes.
func (s *SentryReporter) Flush(timeout time.Duration) bool {
	if !s.enabled {
		return true
	}
	return sentry.Flush(timeout)
}
