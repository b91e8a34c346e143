// Package security cifra e decifra segredos guardados no banco (senha do certificado A1).
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/hkdf"
)

const keyDerivationInfo = "nfse-api/certificate-password"

// AESEncryptionService AES-256-GCM; o texto cifrado é base64(nonce || ciphertext).
type AESEncryptionService struct {
	key []byte
}

// NewAESEncryptionService cria o serviço. Chaves com tamanho diferente de 32 bytes
// são derivadas com HKDF-SHA256.
func NewAESEncryptionService(masterKey string) (*AESEncryptionService, error) {
	if masterKey == "" {
		return nil, errors.New("security: chave mestra não configurada")
	}
	key := []byte(masterKey)
	if len(key) != 32 {
		derived := make([]byte, 32)
		if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(keyDerivationInfo)), derived); err != nil {
			return nil, errors.Wrap(err, "security: derivar chave")
		}
		key = derived
	}
	return &AESEncryptionService{key: key}, nil
}

func (s *AESEncryptionService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, errors.Wrap(err, "security: criar cifra")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "security: criar GCM")
	}
	return aead, nil
}

// Encrypt cifra plaintext. Texto vazio continua vazio.
func (s *AESEncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := s.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "security: gerar nonce")
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt desfaz Encrypt.
func (s *AESEncryptionService) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "security: decodificar base64")
	}
	aead, err := s.gcm()
	if err != nil {
		return "", err
	}
	if len(decoded) < aead.NonceSize() {
		return "", errors.New("security: texto cifrado curto demais")
	}
	nonce, body := decoded[:aead.NonceSize()], decoded[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", errors.Wrap(err, "security: decifrar")
	}
	return string(plaintext), nil
}
