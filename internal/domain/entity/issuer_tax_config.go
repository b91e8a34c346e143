package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssuerTaxConfig perfil fiscal do prestador. Só um registro fica ativo por vez.
type IssuerTaxConfig struct {
	ID                    string
	CNPJ                  string
	MunicipalRegistration string // IM; vazio ou "ISENTO" omite o elemento
	CityCode              string // código IBGE do município emissor (cLocEmi)
	UFCode                string
	DPSSeries             string

	CertificateRef         string // chave do .pfx no storage
	CertificatePasswordEnc string // senha cifrada (AES-GCM, base64)
	CertificateExpiresAt   time.Time

	EntityTax     TaxParams // tomador pessoa jurídica (CNPJ)
	IndividualTax TaxParams // tomador pessoa física (CPF)

	Environment int // 1 = produção, 2 = homologação

	SimplesNacional  int // opSimpNac: 1 não optante, 2 MEI, 3 ME/EPP
	SimplesRegime    int // regApTribSN (apenas para opSimpNac = 3); 0 = não informar
	SpecialTaxRegime int // regEspTrib
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TaxParams conjunto de códigos e alíquota aplicados conforme o tipo de tomador.
type TaxParams struct {
	NationalServiceCode  string          // cTribNac (6 dígitos)
	MunicipalServiceCode string          // cTribMun (opcional)
	NBSCode              string          // cNBS (opcional)
	CNAE                 string
	ISSRate              decimal.Decimal // percentual, ex.: 2.00
	Description          string          // xDescServ
}

// Fingerprint identifica a versão da configuração para invalidar caches derivados.
func (c *IssuerTaxConfig) Fingerprint() string {
	return c.ID + "@" + c.UpdatedAt.UTC().Format(time.RFC3339Nano)
}
