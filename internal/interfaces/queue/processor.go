package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/cockroachdb/errors"

	appnfse "github.com/zapflow/nfse-api/internal/application/nfse"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
	"github.com/zapflow/nfse-api/pkg/logger"
)

// JobService casos de uso executados pelos jobs (implementado por appnfse.Orchestrator).
type JobService interface {
	Emit(ctx context.Context, invoiceID string) (*appnfse.Result, error)
	Cancel(ctx context.Context, invoiceID, reason string) (*appnfse.Result, error)
	QueryStatus(ctx context.Context, invoiceID string) (*appnfse.Result, error)
}

// ErrorReporter destino das falhas transitórias (Sentry em produção).
type ErrorReporter interface {
	CaptureException(err error, tags map[string]string)
}

var _ JobService = (*appnfse.Orchestrator)(nil)

// Processor trata as mensagens do tópico de NFS-e.
// Retorno nil confirma a mensagem; erro faz o router tentar de novo.
type Processor struct {
	svc      JobService
	reporter ErrorReporter
	log      *logger.Logger
}

// NewProcessor cria o processador. reporter pode ser nil.
func NewProcessor(svc JobService, reporter ErrorReporter, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{svc: svc, reporter: reporter, log: log.Component("nfse_jobs")}
}

// Handle é o handler do router watermill.
func (p *Processor) Handle(msg *message.Message) error {
	var job Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		p.log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("job com JSON inválido descartado")
		return nil
	}
	if err := job.Validate(); err != nil {
		p.log.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Str("invoice_id", job.InvoiceID).
			Str("action", job.Action).
			Msg("job inválido descartado")
		return nil
	}

	lg := p.log.With().
		Str("invoice_id", job.InvoiceID).
		Str("action", job.Action).
		Str("message_uuid", msg.UUID).
		Str("correlation_id", middleware.MessageCorrelationID(msg)).
		Logger()

	res, err := p.dispatch(msg.Context(), job)
	if err != nil {
		if domnfse.IsRetryable(err) {
			lg.Warn().Err(err).Msg("falha transitória, job volta para a fila")
			if p.reporter != nil {
				p.reporter.CaptureException(err, map[string]string{
					"invoice_id": job.InvoiceID,
					"action":     job.Action,
				})
			}
			return err
		}
		lg.Error().Err(err).Strs("hints", errors.GetAllHints(err)).Msg("falha terminal, job confirmado")
		return nil
	}

	if res.Success {
		lg.Info().Str("status", res.Status).Str("access_key", res.AccessKey).Msg("job concluído")
	} else {
		lg.Warn().Str("status", res.Status).Str("error", res.Error).Msg("job concluído sem sucesso")
	}
	return nil
}

func (p *Processor) dispatch(ctx context.Context, job Job) (*appnfse.Result, error) {
	switch job.Action {
	case ActionEmit:
		return p.svc.Emit(ctx, job.InvoiceID)
	case ActionCancel:
		return p.svc.Cancel(ctx, job.InvoiceID, job.Motivo)
	case ActionQueryStatus:
		return p.svc.QueryStatus(ctx, job.InvoiceID)
	default:
		return nil, fmt.Errorf("%w: ação %q", ErrInvalidJob, job.Action)
	}
}
