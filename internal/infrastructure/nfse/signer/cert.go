// Carga do certificado A1 (PKCS#12) do emissor a partir do storage, com cache.

package signer

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/zapflow/nfse-api/internal/domain"
	"github.com/zapflow/nfse-api/internal/domain/entity"
)

// DefaultCertificateTTL validade de um certificado no cache a partir da carga.
const DefaultCertificateTTL = 30 * time.Minute

// BlobReader lê o .pfx do storage. Devolve nil, nil quando o arquivo não existe.
type BlobReader interface {
	GetFile(ctx context.Context, key string) ([]byte, error)
}

// Decrypter decifra a senha do certificado.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// CertificateManager entrega certificado e chave em PEM para a configuração ativa.
type CertificateManager struct {
	blobs   BlobReader
	secrets Decrypter
	cache   CertificateCache
	ttl     time.Duration
	now     func() time.Time
}

// NewCertificateManager cria o gerenciador. ttl <= 0 usa DefaultCertificateTTL.
func NewCertificateManager(blobs BlobReader, secrets Decrypter, cache CertificateCache, ttl time.Duration) *CertificateManager {
	if ttl <= 0 {
		ttl = DefaultCertificateTTL
	}
	if cache == nil {
		cache = NewMemoryCertificateCache()
	}
	return &CertificateManager{
		blobs:   blobs,
		secrets: secrets,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock substitui o relógio (testes).
func (m *CertificateManager) WithClock(now func() time.Time) *CertificateManager {
	m.now = now
	return m
}

// Load devolve o certificado da configuração, do cache quando válido.
func (m *CertificateManager) Load(ctx context.Context, cfg *entity.IssuerTaxConfig) (*CachedCertificate, error) {
	if cfg == nil {
		return nil, domain.ErrConfigMissing
	}
	now := m.now()
	if !now.Before(cfg.CertificateExpiresAt) {
		return nil, fmt.Errorf("%w: venceu em %s", domain.ErrCertificateExpired, cfg.CertificateExpiresAt.Format(time.RFC3339))
	}

	fingerprint := cfg.Fingerprint()
	if cached, ok := m.cache.Get(); ok {
		if cached.Fingerprint == fingerprint && now.Before(cached.SourceExpiry) {
			return cached, nil
		}
		m.cache.Invalidate()
	}

	blob, err := m.blobs.GetFile(ctx, cfg.CertificateRef)
	if err != nil {
		return nil, fmt.Errorf("ler certificado %s: %w", cfg.CertificateRef, err)
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: arquivo %s não encontrado", domain.ErrCertificateDecode, cfg.CertificateRef)
	}
	password, err := m.secrets.Decrypt(cfg.CertificatePasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("%w: decifrar senha: %v", domain.ErrCertificateDecode, err)
	}

	certPEM, keyPEM, err := ExtractPEM(blob, password)
	if err != nil {
		return nil, err
	}

	loaded := &CachedCertificate{
		CertPEM:      certPEM,
		KeyPEM:       keyPEM,
		SourceExpiry: cfg.CertificateExpiresAt,
		LoadedAt:     now,
		Fingerprint:  fingerprint,
	}
	ttl := m.ttl
	if remaining := cfg.CertificateExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	m.cache.Set(loaded, ttl)
	return loaded, nil
}

// Invalidate descarta o certificado em cache (rotação de configuração).
func (m *CertificateManager) Invalidate() {
	m.cache.Invalidate()
}

// ExtractPEM abre o PKCS#12 (formatos legado 3DES/RC2 e moderno PBES2/AES) e devolve
// o certificado folha (seguido da cadeia) e a chave PKCS#8.
// A folha é o certificado cuja chave pública corresponde à chave privada do contêiner.
func ExtractPEM(pfx []byte, password string) (certPEM, keyPEM []byte, err error) {
	rawKey, first, chain, err := gopkcs12.DecodeChain(pfx, password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrCertificateDecode, err)
	}

	key, err := signerKey(rawKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: chave privada: %v", domain.ErrCertificateDecode, err)
	}
	certs := make([]*x509.Certificate, 0, len(chain)+1)
	if first != nil {
		certs = append(certs, first)
	}
	certs = append(certs, chain...)
	if len(certs) == 0 {
		return nil, nil, fmt.Errorf("%w: contêiner sem certificado", domain.ErrCertificateDecode)
	}

	leafIdx := -1
	for i, c := range certs {
		if pub, ok := c.PublicKey.(interface{ Equal(crypto.PublicKey) bool }); ok && pub.Equal(key.Public()) {
			leafIdx = i
			break
		}
	}
	if leafIdx < 0 {
		return nil, nil, fmt.Errorf("%w: nenhum certificado corresponde à chave privada", domain.ErrCertificateDecode)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certs[leafIdx].Raw})
	for i, c := range certs {
		if i != leafIdx {
			certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
		}
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: serializar chave: %v", domain.ErrCertificateDecode, err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return certPEM, keyPEM, nil
}

func signerKey(k interface{}) (crypto.Signer, error) {
	switch key := k.(type) {
	case *rsa.PrivateKey:
		return key, nil
	case *ecdsa.PrivateKey:
		return key, nil
	case nil:
		return nil, fmt.Errorf("contêiner sem chave privada")
	default:
		return nil, fmt.Errorf("tipo de chave não suportado: %T", k)
	}
}

// NotAfter lê a data de vencimento do certificado folha de um PKCS#12.
func NotAfter(pfx []byte, password string) (time.Time, error) {
	certPEM, _, err := ExtractPEM(pfx, password)
	if err != nil {
		return time.Time{}, err
	}
	block, _ := pem.Decode(certPEM)
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}
