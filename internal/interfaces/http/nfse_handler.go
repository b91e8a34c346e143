package http

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/zapflow/nfse-api/internal/application/dto"
	"github.com/zapflow/nfse-api/internal/domain/entity"
	"github.com/zapflow/nfse-api/internal/interfaces/queue"
	"github.com/zapflow/nfse-api/pkg/jwt"
	"github.com/zapflow/nfse-api/pkg/logger"
)

// invoiceReader leitura das NFS-e para checagem de tenant e consulta.
type invoiceReader interface {
	GetByID(ctx context.Context, id string) (*entity.TaxInvoice, error)
}

// jobEnqueuer publica jobs na fila de NFS-e. Implementado por *queue.Publisher.
type jobEnqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (string, error)
}

// certificateInvalidator descarta o certificado em cache. Implementado pelo Orchestrator.
type certificateInvalidator interface {
	InvalidateCertificate()
}

// NFSeHandler expõe a emissão, o cancelamento e a consulta de NFS-e (protegido).
type NFSeHandler struct {
	invoices invoiceReader
	jobs     jobEnqueuer
	certs    certificateInvalidator
	validate *validator.Validate
	log      *logger.Logger
}

// NewNFSeHandler constrói o handler. certs pode ser nil quando o processo não assina.
func NewNFSeHandler(invoices invoiceReader, jobs jobEnqueuer, certs certificateInvalidator, log *logger.Logger) *NFSeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &NFSeHandler{
		invoices: invoices,
		jobs:     jobs,
		certs:    certs,
		validate: validator.New(),
		log:      log.Component("nfse_http"),
	}
}

// Emit godoc
// @Summary      Enfileirar emissão da NFS-e
// @Tags         nfse
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID da NFS-e"
// @Success      202  {object}  dto.EnqueueResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/nfse/{id}/emit [post]
func (h *NFSeHandler) Emit(c *fiber.Ctx) error {
	return h.enqueue(c, queue.Job{Action: queue.ActionEmit})
}

// Cancel godoc
// @Summary      Enfileirar cancelamento da NFS-e (evento 101101)
// @Tags         nfse
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path      string                  true  "ID da NFS-e"
// @Param        body  body      dto.CancelNFSeRequest   true  "motivo entre 15 e 255 caracteres"
// @Success      202   {object}  dto.EnqueueResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/nfse/{id}/cancel [post]
func (h *NFSeHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelNFSeRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "motivo deve ter entre 15 e 255 caracteres"})
	}
	return h.enqueue(c, queue.Job{Action: queue.ActionCancel, Motivo: in.Motivo})
}

// Status godoc
// @Summary      Enfileirar consulta de situação na Sefin
// @Tags         nfse
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID da NFS-e"
// @Success      202  {object}  dto.EnqueueResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/nfse/{id}/status [post]
func (h *NFSeHandler) Status(c *fiber.Ctx) error {
	return h.enqueue(c, queue.Job{Action: queue.ActionQueryStatus})
}

// GetByID godoc
// @Summary      Situação armazenada, artefatos e último erro da NFS-e
// @Tags         nfse
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID da NFS-e"
// @Success      200  {object}  dto.NFSeResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/nfse/{id} [get]
func (h *NFSeHandler) GetByID(c *fiber.Ctx) error {
	inv, failed := h.authorizedInvoice(c)
	if inv == nil {
		return failed
	}
	return c.JSON(dto.NewNFSeResponse(inv))
}

// InvalidateCertificate godoc
// @Summary      Forçar releitura do certificado A1 na próxima emissão
// @Tags         nfse
// @Security     Bearer
// @Success      204
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      501  {object}  dto.ErrorResponse
// @Router       /api/nfse/certificate/invalidate [post]
func (h *NFSeHandler) InvalidateCertificate(c *fiber.Ctx) error {
	if h.certs == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Code: "NOT_AVAILABLE", Message: "processo sem cache de certificado"})
	}
	h.certs.InvalidateCertificate()
	h.log.Info().Str("subject", GetSubject(c)).Msg("cache de certificado invalidado")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NFSeHandler) enqueue(c *fiber.Ctx, job queue.Job) error {
	inv, failed := h.authorizedInvoice(c)
	if inv == nil {
		return failed
	}
	job.InvoiceID = inv.ID
	msgID, err := h.jobs.Enqueue(c.UserContext(), job)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidJob) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "QUEUE_UNAVAILABLE", Message: "não foi possível enfileirar, tente mais tarde"})
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.EnqueueResponse{
		InvoiceID: inv.ID,
		Action:    job.Action,
		MessageID: msgID,
	})
}

// authorizedInvoice carrega a NFS-e do path e confere o tenant do token.
// Quando devolve nil, a resposta de erro já foi escrita.
func (h *NFSeHandler) authorizedInvoice(c *fiber.Ctx) (*entity.TaxInvoice, error) {
	tenantID := GetTenantID(c)
	if tenantID == "" && GetRole(c) != jwt.RoleAdmin {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token sem tenant"})
	}
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id inválido"})
	}
	inv, err := h.invoices.GetByID(c.UserContext(), id)
	if err != nil {
		h.log.Error().Err(err).Str("invoice_id", id).Msg("falha ao carregar NFS-e")
		return nil, c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "erro ao carregar NFS-e"})
	}
	if inv == nil {
		return nil, c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "NFS-e não encontrada"})
	}
	if GetRole(c) != jwt.RoleAdmin && inv.TenantID != tenantID {
		return nil, c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acesso negado"})
	}
	return inv, nil
}
