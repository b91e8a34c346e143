package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapflow/nfse-api/pkg/jwt"
	"github.com/zapflow/nfse-api/pkg/logger"
)

// RouterDeps dependências para o router.
type RouterDeps struct {
	Invoices  invoiceReader
	Issuers   issuerChecker
	Jobs      jobEnqueuer
	Certs     certificateInvalidator
	JWTSecret string
	Logger    *logger.Logger
}

// Router registra as rotas da API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	h := NewNFSeHandler(deps.Invoices, deps.Jobs, deps.Certs, deps.Logger)
	nfse := api.Group("/nfse")

	// Rotas fixas antes de /:id
	nfse.Post("/certificate/invalidate", RequireRole(jwt.RoleAdmin), h.InvalidateCertificate)

	nfse.Get("/:id", RequireRole(jwt.RoleAdmin, jwt.RoleService, jwt.RoleOperator), h.GetByID)

	// Enfileiramento exige emitente configurado
	caller := RequireRole(jwt.RoleAdmin, jwt.RoleService, jwt.RoleOperator)
	issuer := RequireActiveIssuer(deps.Issuers)
	nfse.Post("/:id/emit", caller, issuer, h.Emit)
	nfse.Post("/:id/cancel", caller, issuer, h.Cancel)
	nfse.Post("/:id/status", caller, issuer, h.Status)
}
