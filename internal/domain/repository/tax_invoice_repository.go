package repository

import (
	"context"
	"time"

	"github.com/zapflow/nfse-api/internal/domain/entity"
)

// IssuedData dados persistidos quando a Sefin autoriza a NFS-e.
type IssuedData struct {
	Protocol       string
	Number         string
	IssuedAt       time.Time
	OfficialXMLURL string
	PDFURL         string
}

// TaxInvoiceRepository define o porto de persistência das NFS-e.
type TaxInvoiceRepository interface {
	// GetByID devolve nil, nil quando a NFS-e não existe.
	GetByID(ctx context.Context, id string) (*entity.TaxInvoice, error)

	// Claim passa PENDING/ERROR (ou PROCESSING mais antigo que staleAfter) para PROCESSING.
	// Retorna false quando outro worker já detém a NFS-e.
	Claim(ctx context.Context, id string, staleAfter time.Duration) (bool, error)

	ResetToPending(ctx context.Context, id string) error
	MarkCancelled(ctx context.Context, id string, at time.Time, reason string) error
	MarkError(ctx context.Context, id, message string) error
	MarkIssued(ctx context.Context, id string, data IssuedData) error

	// SaveSigned registra o Id/número da DPS e a URL do XML assinado antes do envio.
	SaveSigned(ctx context.Context, id, dpsID string, dpsNumber int64, signedXMLURL string) error
	SetPDFURL(ctx context.Context, id, url string) error
	UpdatePayerCityCode(ctx context.Context, id, cityCode string) error
}
