package signer

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedCertificate certificado já extraído do PKCS#12, pronto para assinar e para mTLS.
type CachedCertificate struct {
	CertPEM      []byte // folha primeiro, depois a cadeia
	KeyPEM       []byte // PKCS#8
	SourceExpiry time.Time
	LoadedAt     time.Time
	Fingerprint  string // IssuerTaxConfig.Fingerprint() de origem
}

// CertificateCache guarda no máximo um certificado por processo.
type CertificateCache interface {
	Get() (*CachedCertificate, bool)
	Set(cert *CachedCertificate, ttl time.Duration)
	Invalidate()
}

const certificateCacheKey = "nfse:certificate"

// MemoryCertificateCache implementação padrão sobre go-cache.
type MemoryCertificateCache struct {
	store *gocache.Cache
}

// NewMemoryCertificateCache cria o cache; entradas expiram pelo TTL informado em Set.
func NewMemoryCertificateCache() *MemoryCertificateCache {
	return &MemoryCertificateCache{store: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (c *MemoryCertificateCache) Get() (*CachedCertificate, bool) {
	v, ok := c.store.Get(certificateCacheKey)
	if !ok {
		return nil, false
	}
	cert, ok := v.(*CachedCertificate)
	return cert, ok
}

func (c *MemoryCertificateCache) Set(cert *CachedCertificate, ttl time.Duration) {
	if cert == nil || ttl <= 0 {
		return
	}
	c.store.Set(certificateCacheKey, cert, ttl)
}

func (c *MemoryCertificateCache) Invalidate() {
	c.store.Delete(certificateCacheKey)
}

var _ CertificateCache = (*MemoryCertificateCache)(nil)
