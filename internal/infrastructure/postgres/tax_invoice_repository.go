package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	"github.com/zapflow/nfse-api/internal/domain/repository"
)

var _ repository.TaxInvoiceRepository = (*TaxInvoiceRepo)(nil)

// TaxInvoiceRepo implementa TaxInvoiceRepository (usável com pool ou tx).
type TaxInvoiceRepo struct {
	q Querier
}

// NewTaxInvoiceRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewTaxInvoiceRepository(q Querier) *TaxInvoiceRepo {
	return &TaxInvoiceRepo{q: q}
}

const taxInvoiceColumns = `
	id, tenant_id, amount_cents,
	payer_name, payer_tax_id, COALESCE(payer_email, ''), COALESCE(payer_phone, ''),
	COALESCE(payer_cep, ''), COALESCE(payer_street, ''), COALESCE(payer_number, ''),
	COALESCE(payer_complement, ''), COALESCE(payer_district, ''), COALESCE(payer_city_code, ''),
	COALESCE(payer_uf, ''),
	status, COALESCE(protocol, ''), COALESCE(number, ''), COALESCE(dps_id, ''), COALESCE(dps_number, 0),
	issued_at, cancelled_at, COALESCE(cancel_reason, ''),
	COALESCE(signed_xml_url, ''), COALESCE(official_xml_url, ''), COALESCE(pdf_url, ''),
	COALESCE(last_error, ''), created_at, updated_at`

func (r *TaxInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.TaxInvoice, error) {
	q := `SELECT ` + taxInvoiceColumns + ` FROM nfse_invoices WHERE id = $1`
	inv, err := scanTaxInvoice(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get nfse_invoice by id: %w", err)
	}
	return inv, nil
}

// Claim é o único ponto de exclusão entre workers: a condição do UPDATE garante
// que só um deles passe a NFS-e para PROCESSING.
func (r *TaxInvoiceRepo) Claim(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	const q = `
		UPDATE nfse_invoices
		SET status = 'PROCESSING', updated_at = now()
		WHERE id = $1
		  AND (
		        status IN ('PENDING', 'ERROR')
		     OR (status = 'PROCESSING' AND updated_at < now() - make_interval(secs => $2))
		  )`
	tag, err := r.q.Exec(ctx, q, id, staleAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim nfse_invoice: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetToPending corrige um ISSUED sem chave de acesso.
func (r *TaxInvoiceRepo) ResetToPending(ctx context.Context, id string) error {
	const q = `
		UPDATE nfse_invoices
		SET status = 'PENDING', updated_at = now()
		WHERE id = $1 AND status = 'ISSUED' AND COALESCE(protocol, '') = ''`
	if _, err := r.q.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("reset nfse_invoice: %w", err)
	}
	return nil
}

func (r *TaxInvoiceRepo) MarkCancelled(ctx context.Context, id string, at time.Time, reason string) error {
	const q = `
		UPDATE nfse_invoices
		SET status = 'CANCELLED', cancelled_at = $2, cancel_reason = $3, updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, at, nullIfEmpty(reason)); err != nil {
		return fmt.Errorf("cancel nfse_invoice: %w", err)
	}
	return nil
}

// MarkError não toca em notas já emitidas ou canceladas.
func (r *TaxInvoiceRepo) MarkError(ctx context.Context, id, message string) error {
	const q = `
		UPDATE nfse_invoices
		SET status = 'ERROR', last_error = $2, updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING', 'ERROR')`
	if _, err := r.q.Exec(ctx, q, id, message); err != nil {
		return fmt.Errorf("mark nfse_invoice error: %w", err)
	}
	return nil
}

func (r *TaxInvoiceRepo) MarkIssued(ctx context.Context, id string, data repository.IssuedData) error {
	const q = `
		UPDATE nfse_invoices
		SET status           = 'ISSUED',
		    protocol         = $2,
		    number           = COALESCE($3, number),
		    issued_at        = $4,
		    official_xml_url = COALESCE($5, official_xml_url),
		    pdf_url          = COALESCE($6, pdf_url),
		    last_error       = NULL,
		    updated_at       = now()
		WHERE id = $1`
	_, err := r.q.Exec(ctx, q, id,
		data.Protocol, nullIfEmpty(data.Number), data.IssuedAt,
		nullIfEmpty(data.OfficialXMLURL), nullIfEmpty(data.PDFURL),
	)
	if err != nil {
		return fmt.Errorf("mark nfse_invoice issued: %w", err)
	}
	return nil
}

func (r *TaxInvoiceRepo) SaveSigned(ctx context.Context, id, dpsID string, dpsNumber int64, signedXMLURL string) error {
	const q = `
		UPDATE nfse_invoices
		SET dps_id = $2, dps_number = $3, signed_xml_url = COALESCE($4, signed_xml_url), updated_at = now()
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, dpsID, dpsNumber, nullIfEmpty(signedXMLURL)); err != nil {
		return fmt.Errorf("save signed dps: %w", err)
	}
	return nil
}

func (r *TaxInvoiceRepo) SetPDFURL(ctx context.Context, id, url string) error {
	const q = `UPDATE nfse_invoices SET pdf_url = $2, updated_at = now() WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, url); err != nil {
		return fmt.Errorf("set nfse pdf url: %w", err)
	}
	return nil
}

func (r *TaxInvoiceRepo) UpdatePayerCityCode(ctx context.Context, id, cityCode string) error {
	const q = `UPDATE nfse_invoices SET payer_city_code = $2 WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id, cityCode); err != nil {
		return fmt.Errorf("update payer city code: %w", err)
	}
	return nil
}

func scanTaxInvoice(row pgxScanner) (*entity.TaxInvoice, error) {
	var inv entity.TaxInvoice
	p := &inv.Payer
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.AmountCents,
		&p.Name, &p.TaxID, &p.Email, &p.Phone,
		&p.CEP, &p.Street, &p.Number,
		&p.Complement, &p.District, &p.CityCode,
		&p.UF,
		&inv.Status, &inv.Protocol, &inv.Number, &inv.DPSID, &inv.DPSNumber,
		&inv.IssuedAt, &inv.CancelledAt, &inv.CancelReason,
		&inv.SignedXMLURL, &inv.OfficialXMLURL, &inv.PDFURL,
		&inv.LastError, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
