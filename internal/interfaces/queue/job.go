// Package queue liga a fila de jobs de NFS-e (watermill) ao orquestrador.
package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Ações aceitas na mensagem do job.
const (
	ActionEmit        = "emit"
	ActionCancel      = "cancel"
	ActionQueryStatus = "query_status"
)

// ErrInvalidJob mensagem que nunca vai dar certo: é registrada e confirmada, sem nova tentativa.
var ErrInvalidJob = errors.New("job de NFS-e inválido")

// Job mensagem publicada no tópico de NFS-e.
type Job struct {
	InvoiceID string `json:"invoiceId"`
	Action    string `json:"action"`
	Motivo    string `json:"motivo,omitempty"`
}

// Validate confere o id, a ação e o motivo obrigatório do cancelamento.
func (j Job) Validate() error {
	if _, err := uuid.Parse(j.InvoiceID); err != nil {
		return fmt.Errorf("%w: invoiceId %q não é um UUID", ErrInvalidJob, j.InvoiceID)
	}
	switch j.Action {
	case ActionEmit, ActionQueryStatus:
		return nil
	case ActionCancel:
		if strings.TrimSpace(j.Motivo) == "" {
			return fmt.Errorf("%w: cancelamento sem motivo", ErrInvalidJob)
		}
		return nil
	default:
		return fmt.Errorf("%w: ação %q desconhecida", ErrInvalidJob, j.Action)
	}
}
