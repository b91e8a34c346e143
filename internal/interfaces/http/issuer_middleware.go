package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/zapflow/nfse-api/internal/application/dto"
	"github.com/zapflow/nfse-api/internal/domain/entity"
)

// issuerChecker é o contrato mínimo para saber se há emitente ativo.
// Implementado por *postgres.IssuerConfigRepo.
type issuerChecker interface {
	GetActive(ctx context.Context) (*entity.IssuerTaxConfig, error)
}

// RequireActiveIssuer bloqueia o enfileiramento enquanto não houver configuração
// fiscal ativa; o job falharia de forma terminal no worker.
//
//   - 409 Conflict → nenhum emitente configurado.
//   - 503 Service Unavailable → falha ao consultar o banco.
func RequireActiveIssuer(checker issuerChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cfg, err := checker.GetActive(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "ISSUER_CHECK_FAILED",
				Message: "não foi possível verificar o emitente, tente mais tarde",
			})
		}
		if cfg == nil {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Code:    "ISSUER_NOT_CONFIGURED",
				Message: "nenhuma configuração fiscal ativa para o emitente",
			})
		}
		return c.Next()
	}
}
