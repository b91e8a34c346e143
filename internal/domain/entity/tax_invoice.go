package entity

import "time"

// Situação de emissão da NFS-e.
const (
	NFSeStatusPending    = "PENDING"    // Criada no pagamento da cobrança, aguardando emissão
	NFSeStatusProcessing = "PROCESSING" // Reivindicada por um worker
	NFSeStatusIssued     = "ISSUED"     // Autorizada pela Sefin (possui chave de acesso)
	NFSeStatusError      = "ERROR"      // Falha registrada em LastError
	NFSeStatusCancelled  = "CANCELLED"  // Cancelada (evento 101101) ou valor zero
)

// TaxInvoice é o registro da NFS-e de uma cobrança paga.
// É criado fora deste subsistema; aqui só é atualizado, nunca apagado.
type TaxInvoice struct {
	ID          string
	TenantID    string
	AmountCents int64
	Payer       PayerData

	Status       string
	Protocol     string // chave de acesso (50 dígitos) devolvida pela Sefin
	Number       string // nNFSe
	DPSID        string // Id assinado da DPS, usado para reconciliar respostas perdidas
	DPSNumber    int64
	IssuedAt     *time.Time
	CancelledAt  *time.Time
	CancelReason string

	SignedXMLURL   string // DPS assinada
	OfficialXMLURL string // XML da NFS-e devolvido pela Sefin
	PDFURL         string // DANFSe
	LastError      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasProtocol indica se a NFS-e possui chave de acesso.
func (t *TaxInvoice) HasProtocol() bool {
	return t.Protocol != ""
}

// PayerData identificação e endereço do tomador como persistidos na cobrança.
type PayerData struct {
	Name       string
	TaxID      string // CPF ou CNPJ, com ou sem máscara
	Email      string
	Phone      string
	CEP        string
	Street     string
	Number     string
	Complement string
	District   string
	CityCode   string // código IBGE (7 dígitos)
	UF         string
}
