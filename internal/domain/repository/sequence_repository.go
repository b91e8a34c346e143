package repository

import "context"

// SequenceRepository reserva números de DPS por emissor e ano.
type SequenceRepository interface {
	// Reserve devolve o próximo número do emissor no ano informado; reinicia em 1 quando o ano muda.
	Reserve(ctx context.Context, issuerID string, year int) (int64, error)
}
