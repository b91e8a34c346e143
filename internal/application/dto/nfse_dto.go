package dto

import (
	"time"

	"github.com/zapflow/nfse-api/internal/domain/entity"
)

// CancelNFSeRequest corpo de POST /api/nfse/:id/cancel.
type CancelNFSeRequest struct {
	Motivo string `json:"motivo" validate:"required,min=15,max=255"`
}

// EnqueueResponse resposta 202 das rotas que enfileiram jobs.
type EnqueueResponse struct {
	InvoiceID string `json:"invoiceId"`
	Action    string `json:"action"`
	MessageID string `json:"messageId"`
}

// NFSeResponse situação da NFS-e como exibida no painel.
type NFSeResponse struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	AmountCents    int64      `json:"amountCents"`
	Protocol       string     `json:"protocol,omitempty"`
	Number         string     `json:"number,omitempty"`
	DPSID          string     `json:"dpsId,omitempty"`
	IssuedAt       *time.Time `json:"issuedAt,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`
	CancelReason   string     `json:"cancelReason,omitempty"`
	SignedXMLURL   string     `json:"signedXmlUrl,omitempty"`
	OfficialXMLURL string     `json:"officialXmlUrl,omitempty"`
	PDFURL         string     `json:"pdfUrl,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewNFSeResponse converte a entidade para a resposta HTTP.
func NewNFSeResponse(inv *entity.TaxInvoice) NFSeResponse {
	return NFSeResponse{
		ID:             inv.ID,
		Status:         inv.Status,
		AmountCents:    inv.AmountCents,
		Protocol:       inv.Protocol,
		Number:         inv.Number,
		DPSID:          inv.DPSID,
		IssuedAt:       inv.IssuedAt,
		CancelledAt:    inv.CancelledAt,
		CancelReason:   inv.CancelReason,
		SignedXMLURL:   inv.SignedXMLURL,
		OfficialXMLURL: inv.OfficialXMLURL,
		PDFURL:         inv.PDFURL,
		LastError:      inv.LastError,
		UpdatedAt:      inv.UpdatedAt,
	}
}
