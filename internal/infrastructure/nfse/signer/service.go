// Assinatura XMLDSig envelopada da NFS-e nacional.
// A <Signature> é inserida como irmã do elemento referenciado (infDPS ou infPedReg).

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/zapflow/nfse-api/internal/domain"
	"github.com/zapflow/nfse-api/pkg/nfse"
)

// idPattern restringe o Id antes de montá-lo no path do etree.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// DigitalSignatureService implementa pkg/nfse.Signer.
type DigitalSignatureService struct{}

// NewDigitalSignatureService cria o serviço.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign assina o primeiro elemento do documento que possui atributo Id.
func (s *DigitalSignatureService) Sign(xmlBytes, certPEM, keyPEM []byte) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("nfse: XML vazio")
	}
	priv, err := parseRSAKey(keyPEM)
	if err != nil {
		return nil, err
	}
	cert, err := parseLeafCertificate(certPEM)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("nfse: ler XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("nfse: documento sem raiz")
	}

	// 1) Elemento referenciado
	id := firstID(root)
	if id == "" {
		return nil, fmt.Errorf("%w: nenhum elemento com atributo Id", domain.ErrMissingSignatureTarget)
	}
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: Id com caracteres inválidos", domain.ErrMissingSignatureTarget)
	}
	target := doc.FindElement("//*[@" + IDAttr + "='" + id + "']")
	if target == nil {
		return nil, fmt.Errorf("%w: Id %s", domain.ErrMissingSignatureTarget, id)
	}
	parent := target.Parent()
	if target == root || parent == nil {
		return nil, fmt.Errorf("%w: o elemento raiz não pode ser referenciado", domain.ErrMissingSignatureTarget)
	}

	// 2) Digest do elemento (exc-c14n)
	canonicalTarget, err := canonicalizeElement(target)
	if err != nil {
		return nil, fmt.Errorf("nfse: canonicalizar %s: %w", target.Tag, err)
	}
	digest := sha256.Sum256(canonicalTarget)

	// 3) SignedInfo canonicalizado e assinado
	signedInfoXML := buildSignedInfo(id, base64.StdEncoding.EncodeToString(digest[:]))
	canonicalSignedInfo, err := canonicalize([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("nfse: canonicalizar SignedInfo: %w", err)
	}
	hash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("nfse: assinar SignedInfo: %w", err)
	}

	// 4) <Signature> como próxima irmã do elemento referenciado
	sig, err := buildSignature(signedInfoXML, base64.StdEncoding.EncodeToString(signatureValue), base64.StdEncoding.EncodeToString(cert.Raw))
	if err != nil {
		return nil, err
	}
	parent.InsertChildAt(target.Index()+1, sig)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("nfse: serializar XML assinado: %w", err)
	}
	return out, nil
}

// firstID percorre o documento em ordem e devolve o primeiro Id encontrado.
func firstID(el *etree.Element) string {
	if v := el.SelectAttrValue(IDAttr, ""); v != "" {
		return v
	}
	for _, child := range el.ChildElements() {
		if v := firstID(child); v != "" {
			return v
		}
	}
	return ""
}

// canonicalizeElement serializa uma cópia destacada do elemento, levando o namespace
// padrão herdado dos ancestrais, e aplica exc-c14n.
func canonicalizeElement(el *etree.Element) ([]byte, error) {
	detached := el.Copy()
	if detached.SelectAttr("xmlns") == nil {
		if ns := inheritedDefaultNamespace(el); ns != "" {
			detached.CreateAttr("xmlns", ns)
		}
	}
	doc := etree.NewDocument()
	doc.SetRoot(detached)
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalize(raw)
}

func inheritedDefaultNamespace(el *etree.Element) string {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if a := p.SelectAttr("xmlns"); a != nil {
			return a.Value
		}
	}
	return ""
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(id, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgExcC14N + `"></CanonicalizationMethod>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA256 + `"></SignatureMethod>`)
	sb.WriteString(`<Reference URI="#` + id + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"></Transform>`)
	sb.WriteString(`<Transform Algorithm="` + AlgExcC14N + `"></Transform></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA256 + `"></DigestMethod>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64, certB64 string) (*etree.Element, error) {
	siDoc := etree.NewDocument()
	if err := siDoc.ReadFromString(signedInfoXML); err != nil {
		return nil, fmt.Errorf("nfse: ler SignedInfo: %w", err)
	}
	signedInfo := siDoc.Root()
	// O namespace fica declarado em <Signature>.
	signedInfo.RemoveAttr("xmlns")

	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", NamespaceDS)
	sig.AddChild(signedInfo)
	sig.CreateElement("SignatureValue").SetText(signatureValueB64)
	sig.CreateElement("KeyInfo").CreateElement("X509Data").CreateElement("X509Certificate").SetText(certB64)
	return sig, nil
}

// ── PEM ─────────────────────────────────────────────────────────────────────

func parseRSAKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: chave privada PEM ausente", domain.ErrCertificateDecode)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: chave privada: %v", domain.ErrCertificateDecode, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: a chave do certificado deve ser RSA", domain.ErrCertificateDecode)
	}
	return key, nil
}

func parseLeafCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: certificado PEM ausente", domain.ErrCertificateDecode)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Join(domain.ErrCertificateDecode, err)
	}
	return cert, nil
}

var _ nfse.Signer = (*DigitalSignatureService)(nil)
