package repository

import (
	"context"

	"github.com/zapflow/nfse-api/internal/domain/entity"
)

// IssuerConfigRepository define o porto de persistência do perfil fiscal do prestador.
type IssuerConfigRepository interface {
	// GetActive devolve a configuração ativa ou nil, nil se não houver nenhuma.
	GetActive(ctx context.Context) (*entity.IssuerTaxConfig, error)

	// Activate grava a configuração e desativa as demais na mesma transação.
	Activate(ctx context.Context, cfg *entity.IssuerTaxConfig) error
}
