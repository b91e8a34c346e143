package nfse

import (
	"context"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	infnfse "github.com/zapflow/nfse-api/internal/infrastructure/nfse"
	"github.com/zapflow/nfse-api/internal/infrastructure/nfse/signer"
)

// ArtifactStore grava os artefatos fiscais (XML assinado, XML oficial, DANFSe) e devolve a URL.
type ArtifactStore interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// CityLookup resolve o código IBGE do município a partir do CEP. "" quando não encontrado.
type CityLookup interface {
	LookupCityCode(ctx context.Context, cep string) (string, error)
}

// CertificateProvider entrega o certificado A1 do emissor em PEM.
type CertificateProvider interface {
	Load(ctx context.Context, cfg *entity.IssuerTaxConfig) (*signer.CachedCertificate, error)
	Invalidate()
}

// DocumentBuilder monta a DPS e o pedido de evento de cancelamento (sem assinatura).
type DocumentBuilder interface {
	Build(ctx *infnfse.DPSBuildContext) ([]byte, error)
	BuildCancellation(ctx *infnfse.CancellationContext) ([]byte, error)
}

// TaxAuthority porta da Sefin Nacional / ADN.
type TaxAuthority interface {
	Submit(ctx context.Context, env int, creds infnfse.Credentials, signedXML []byte) (*infnfse.SubmitResult, error)
	Query(ctx context.Context, env int, creds infnfse.Credentials, accessKey string) (*infnfse.SubmitResult, error)
	LookupDPS(ctx context.Context, env int, creds infnfse.Credentials, dpsID string) (*infnfse.SubmitResult, error)
	Cancel(ctx context.Context, env int, creds infnfse.Credentials, accessKey string, signedEventXML []byte) (*infnfse.EventResult, error)
	FetchProof(ctx context.Context, env int, creds infnfse.Credentials, accessKey string) ([]byte, error)
}

var (
	_ CertificateProvider = (*signer.CertificateManager)(nil)
	_ DocumentBuilder     = (*infnfse.XMLBuilderService)(nil)
	_ TaxAuthority        = (*infnfse.SefinClient)(nil)
)
