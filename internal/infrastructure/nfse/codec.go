package nfse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// maxDecompressed limite do XML descompactado (a NFS-e tem poucos KB).
const maxDecompressed = 8 << 20

// EncodePayload compacta o XML com gzip e codifica em base64, formato dos campos *XmlGZipB64.
func EncodePayload(xmlBytes []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(xmlBytes); err != nil {
		return "", fmt.Errorf("gzip: escrever XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip: fechar: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePayload desfaz EncodePayload.
func DecodePayload(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip: abrir: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxDecompressed))
	if err != nil {
		return nil, fmt.Errorf("gzip: ler: %w", err)
	}
	return out, nil
}
