package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/domain"
)

const dpsFixture = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<DPS xmlns="http://www.sped.fazenda.gov.br/nfse" versao="1.00">` +
	`<infDPS Id="DPS355030821122233300018100001000000000000042">` +
	`<tpAmb>2</tpAmb><dhEmi>2026-03-10T14:05:00-03:00</dhEmi><serie>1</serie><nDPS>42</nDPS>` +
	`<toma><xNome>Jo&#xE3;o &amp; Filhos</xNome></toma>` +
	`</infDPS></DPS>`

func signFixture(t *testing.T, xmlText string) (*etree.Document, *rsa.PrivateKey) {
	t.Helper()
	key, cert := newTestCertificate(t, time.Now().Add(24*time.Hour))
	certPEM, keyPEM := toPEM(t, key, cert)

	out, err := NewDigitalSignatureService().Sign([]byte(xmlText), certPEM, keyPEM)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	return doc, key
}

func childTags(el *etree.Element) []string {
	var tags []string
	for _, c := range el.ChildElements() {
		tags = append(tags, c.Tag)
	}
	return tags
}

// ──────────────────────────────────────────────────────────────────────────────
// A assinatura fica como irmã imediata de infDPS e valida contra a chave pública.
// ──────────────────────────────────────────────────────────────────────────────

func TestSign_DPS_SignatureIsNextSiblingAndVerifies(t *testing.T) {
	doc, key := signFixture(t, dpsFixture)

	root := doc.Root()
	assert.Equal(t, []string{"infDPS", "Signature"}, childTags(root))

	sig := root.SelectElement("Signature")
	assert.Equal(t, NamespaceDS, sig.SelectAttrValue("xmlns", ""))

	ref := sig.FindElement("SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#DPS355030821122233300018100001000000000000042", ref.SelectAttrValue("URI", ""))

	// DigestValue = SHA-256 do infDPS canonicalizado
	canonicalTarget, err := canonicalizeElement(root.SelectElement("infDPS"))
	require.NoError(t, err)
	digest := sha256.Sum256(canonicalTarget)
	assert.Equal(t, base64.StdEncoding.EncodeToString(digest[:]), ref.SelectElement("DigestValue").Text())

	// SignatureValue confere com o SignedInfo canonicalizado
	canonicalSignedInfo, err := canonicalizeElement(sig.SelectElement("SignedInfo"))
	require.NoError(t, err)
	hash := sha256.Sum256(canonicalSignedInfo)
	sigValue, err := base64.StdEncoding.DecodeString(sig.SelectElement("SignatureValue").Text())
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, hash[:], sigValue))

	assert.NotEmpty(t, sig.FindElement("KeyInfo/X509Data/X509Certificate").Text())
}

func TestSign_CancellationEvent(t *testing.T) {
	xmlText := `<pedRegEvento xmlns="http://www.sped.fazenda.gov.br/nfse" versao="1.00">` +
		`<infPedReg Id="PRE35503082112223330001810000100000000000004210110100 1"><tpAmb>2</tpAmb></infPedReg>` +
		`</pedRegEvento>`
	// Id com espaço não é aceito.
	key, cert := newTestCertificate(t, time.Now().Add(time.Hour))
	certPEM, keyPEM := toPEM(t, key, cert)
	_, err := NewDigitalSignatureService().Sign([]byte(xmlText), certPEM, keyPEM)
	assert.ErrorIs(t, err, domain.ErrMissingSignatureTarget)

	valid := `<pedRegEvento xmlns="http://www.sped.fazenda.gov.br/nfse" versao="1.00">` +
		`<infPedReg Id="PRE355030821122233300018100001000000000000042101101001"><tpAmb>2</tpAmb></infPedReg>` +
		`</pedRegEvento>`
	doc, _ := signFixture(t, valid)
	assert.Equal(t, []string{"infPedReg", "Signature"}, childTags(doc.Root()))
}

func TestSign_FirstElementWithIDIsReferenced(t *testing.T) {
	xmlText := `<lote><a Id="first"><v>1</v></a><b Id="second"><v>2</v></b></lote>`
	doc, _ := signFixture(t, xmlText)

	assert.Equal(t, []string{"a", "Signature", "b"}, childTags(doc.Root()))
	ref := doc.FindElement("//Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#first", ref.SelectAttrValue("URI", ""))
}

func TestSign_MissingTarget(t *testing.T) {
	key, cert := newTestCertificate(t, time.Now().Add(time.Hour))
	certPEM, keyPEM := toPEM(t, key, cert)
	svc := NewDigitalSignatureService()

	tests := []struct {
		name string
		xml  string
	}{
		{"sem Id", `<DPS><infDPS><tpAmb>2</tpAmb></infDPS></DPS>`},
		{"Id com aspas", `<DPS><infDPS Id="x']|//*[@a='1"><tpAmb>2</tpAmb></infDPS></DPS>`},
		{"Id na raiz", `<DPS Id="DPS1"><tpAmb>2</tpAmb></DPS>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Sign([]byte(tt.xml), certPEM, keyPEM)
			assert.ErrorIs(t, err, domain.ErrMissingSignatureTarget)
		})
	}
}

func TestSign_InvalidKey(t *testing.T) {
	key, cert := newTestCertificate(t, time.Now().Add(time.Hour))
	certPEM, _ := toPEM(t, key, cert)

	_, err := NewDigitalSignatureService().Sign([]byte(dpsFixture), certPEM, []byte("not a pem"))
	assert.ErrorIs(t, err, domain.ErrCertificateDecode)
}
