// Package nfse: interface para assinatura digital de documentos XML (XMLDSIG envelopada).

package nfse

// Signer assina um XML da DPS ou de evento e devolve o documento com <Signature>.
type Signer interface {
	// Sign localiza o elemento com atributo Id, assina sua forma canônica e insere a
	// assinatura como irmão seguinte desse elemento.
	Sign(xmlBytes, certPEM, keyPEM []byte) ([]byte, error)
}
