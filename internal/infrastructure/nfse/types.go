// Package nfse implementa a montagem da DPS, a codificação das mensagens e o cliente
// REST da Sefin Nacional (NFS-e padrão nacional).
package nfse

import (
	"net/http"
	"time"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
)

// brasilia fuso fixo UTC−3 usado em dhEmi, dCompet, dhEvento e no ano da numeração.
var brasilia = time.FixedZone("BRT", -3*60*60)

// Brasilia devolve o fuso fixo de emissão.
func Brasilia() *time.Location { return brasilia }

// Leiaute de data/hora exigido pela Sefin (sem frações de segundo).
const (
	DateTimeLayout = "2006-01-02T15:04:05-07:00"
	DateLayout     = "2006-01-02"
)

// DPSBuildContext dados necessários para montar a DPS de uma NFS-e.
type DPSBuildContext struct {
	InvoiceID   string
	AmountCents int64
	Payer       *domnfse.Payer
	Config      *entity.IssuerTaxConfig
	Sequence    int64
	EmittedAt   time.Time
}

// CancellationContext dados do pedido de registro do evento de cancelamento.
type CancellationContext struct {
	AccessKey string
	Reason    string
	Config    *entity.IssuerTaxConfig
	At        time.Time
}

// ── Resultado das chamadas à Sefin ─────────────────────────────────────────────

// SubmitResult resposta normalizada de Submit, Query e LookupDPS.
type SubmitResult struct {
	AccessKey   string     // chave de acesso (50 dígitos); vazia em rejeição
	Number      string     // nNFSe
	IssuedAt    *time.Time // dataHoraProcessamento
	DPSID       string
	StatusCode  int
	Message     string // erros[] concatenados ou alertas
	OfficialXML []byte // XML da NFS-e já descompactado
}

// Accepted indica se a Sefin devolveu chave de acesso.
func (r *SubmitResult) Accepted() bool {
	return r != nil && r.AccessKey != ""
}

// NotFound a Sefin respondeu que não conhece a DPS ou a chave consultada.
func (r *SubmitResult) NotFound() bool {
	return r != nil && r.AccessKey == "" && r.StatusCode == http.StatusNotFound
}

// EventResult resposta do registro de evento (cancelamento).
type EventResult struct {
	Accepted   bool
	StatusCode int
	Message    string
	EventXML   []byte
}
