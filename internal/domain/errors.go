package domain

import "errors"

// Erros de domínio (sem dependências externas).
var (
	ErrInvalidInput = errors.New("entrada inválida")

	// NFS-e
	ErrConfigMissing          = errors.New("nenhuma configuração fiscal ativa")
	ErrInvoiceNotFound        = errors.New("NFS-e não encontrada")
	ErrInvalidPayer           = errors.New("dados do tomador inválidos")
	ErrCertificateExpired     = errors.New("certificado digital expirado")
	ErrCertificateDecode      = errors.New("não foi possível abrir o certificado digital")
	ErrMissingSignatureTarget = errors.New("elemento a ser assinado não encontrado")
)
