package postgres

import (
	"context"
	"fmt"

	"github.com/zapflow/nfse-api/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo numeração de DPS por emissor, reiniciada a cada ano.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository constrói o adaptador. Aceita pool ou tx.
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Reserve incrementa e devolve o contador numa única instrução.
// Se o ano gravado for anterior ao informado o contador volta para 1;
// um ano informado menor que o gravado (relógio atrasado) não regride o ano.
func (r *SequenceRepo) Reserve(ctx context.Context, issuerID string, year int) (int64, error) {
	const q = `
		INSERT INTO nfse_sequences (issuer_id, year, last_number, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (issuer_id) DO UPDATE SET
			last_number = CASE
				WHEN nfse_sequences.year < EXCLUDED.year THEN 1
				ELSE nfse_sequences.last_number + 1
			END,
			year       = GREATEST(nfse_sequences.year, EXCLUDED.year),
			updated_at = now()
		RETURNING last_number`
	var n int64
	if err := r.q.QueryRow(ctx, q, issuerID, year).Scan(&n); err != nil {
		return 0, fmt.Errorf("reservar número da DPS: %w", err)
	}
	return n, nil
}
