// Package nfse contém catálogos e validações do leiaute nacional da NFS-e
// (Sefin Nacional, DPS v1.00).
package nfse

// =============================================================================
// Ambiente de emissão (tpAmb)
// =============================================================================

const (
	EnvironmentProduction = 1 // Produção
	EnvironmentHomolog    = 2 // Produção restrita (homologação)
)

// =============================================================================
// Tipo de emitente da DPS (tpEmit) e tipo de inscrição usado no Id
// =============================================================================

const (
	EmitterProvider = "1" // Prestador

	InscriptionCPF  = "1"
	InscriptionCNPJ = "2"
)

// =============================================================================
// Situação perante o Simples Nacional (opSimpNac)
// =============================================================================

const (
	SimplesNaoOptante = 1 // Não optante
	SimplesMEI        = 2 // Microempreendedor individual
	SimplesMEEPP      = 3 // Optante ME/EPP
)

// =============================================================================
// Tributação do ISSQN
// =============================================================================

const (
	ISSQNTributavel     = "1" // Operação tributável
	ISSQNRetencaoNaoRet = "1" // tpRetISSQN: não retido
)

// =============================================================================
// Eventos
// =============================================================================

const (
	EventCancellation       = "101101" // Cancelamento de NFS-e
	EventCancellationDesc   = "Cancelamento de NFS-e"
	CancelReasonOther       = "9"
	FirstEventRequestNumber = 1
)

// MunicipalRegistrationSkip indica município que não aceita IM na DPS: o elemento <IM> é omitido.
const MunicipalRegistrationSkip = "ISENTO"

// Prefixos dos identificadores assinados.
const (
	DPSIDPrefix   = "DPS"
	EventIDPrefix = "PRE"
)

// Namespace e versão do leiaute.
const (
	Namespace     = "http://www.sped.fazenda.gov.br/nfse"
	LayoutVersion = "1.00"
)
