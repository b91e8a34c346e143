package queue

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/zapflow/nfse-api/pkg/config"
	"github.com/zapflow/nfse-api/pkg/logger"
)

const handlerName = "nfse_jobs"

// NewRouter monta o router dos jobs de NFS-e:
//
//	PoisonQueue → Recoverer → CorrelationID → Retry → Processor.Handle
//
// Erros que esgotam as tentativas vão para o tópico <topic>.dlq e a mensagem é confirmada.
func NewRouter(cfg config.QueueConfig, transport *Transport, proc *Processor, log *logger.Logger) (*message.Router, error) {
	if log == nil {
		log = logger.Nop()
	}
	wmLogger := watermill.NewStdLogger(false, false)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	poisonQueue, err := middleware.PoisonQueue(transport.Publisher, cfg.PoisonTopic())
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          cfg.MaxRetries,
			InitialInterval:     cfg.InitialInterval,
			MaxInterval:         cfg.MaxInterval,
			Multiplier:          2,
			RandomizationFactor: 0.5,
			Logger:              wmLogger,
			OnRetryHook: func(retryNum int, delay time.Duration) {
				log.Info().
					Int("retry_number", retryNum).
					Int("max_retries", cfg.MaxRetries).
					Dur("delay", delay).
					Msg("reprocessando job de NFS-e")
			},
		}.Middleware,
	)

	router.AddNoPublisherHandler(handlerName, cfg.Topic, transport.Subscriber, proc.Handle)
	return router, nil
}
