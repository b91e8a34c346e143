package queue

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/zapflow/nfse-api/pkg/logger"
)

// Publisher enfileira jobs de NFS-e (HTTP interno e webhooks de pagamento).
type Publisher struct {
	pub   message.Publisher
	topic string
	log   *logger.Logger
}

// NewPublisher cria o publicador para o tópico informado.
func NewPublisher(pub message.Publisher, topic string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{pub: pub, topic: topic, log: log.Component("nfse_publisher")}
}

// Enqueue valida e publica o job. Devolve o id da mensagem.
func (p *Publisher) Enqueue(ctx context.Context, job Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("invoice_id", job.InvoiceID)
	msg.Metadata.Set("action", job.Action)
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		p.log.Error().Err(err).
			Str("invoice_id", job.InvoiceID).
			Str("action", job.Action).
			Msg("falha ao publicar job")
		return "", err
	}

	p.log.Info().
		Str("invoice_id", job.InvoiceID).
		Str("action", job.Action).
		Str("message_uuid", msg.UUID).
		Msg("job publicado")
	return msg.UUID, nil
}
