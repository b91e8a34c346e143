// Package nfse contém as regras de domínio da emissão de NFS-e: classificação do
// tomador, validação de completude e tradução de erros para mensagens amigáveis.
package nfse

import pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"

// PayerKind tipo de tomador, decidido uma única vez pelo tamanho do documento.
type PayerKind int

const (
	PayerUnknown PayerKind = iota
	PayerIndividual // CPF (11 dígitos)
	PayerEntity     // CNPJ (14 dígitos)
)

func (k PayerKind) String() string {
	switch k {
	case PayerIndividual:
		return "individual"
	case PayerEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// InscriptionType devolve o tpInsc usado no Id da DPS.
func (k PayerKind) InscriptionType() string {
	if k == PayerIndividual {
		return pkgnfse.InscriptionCPF
	}
	return pkgnfse.InscriptionCNPJ
}

// Address endereço nacional do tomador já normalizado (somente dígitos em CEP e município).
type Address struct {
	CEP        string
	Street     string
	Number     string
	Complement string
	District   string
	CityCode   string
	UF         string
}

// Payer tomador classificado e validado. Só é construído por ClassifyPayer.
type Payer struct {
	Kind    PayerKind
	TaxID   string // somente dígitos
	Name    string
	Email   string
	Address Address
}

func (p *Payer) IsIndividual() bool { return p.Kind == PayerIndividual }
func (p *Payer) IsEntity() bool     { return p.Kind == PayerEntity }
