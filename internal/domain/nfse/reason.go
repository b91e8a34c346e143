package nfse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/zapflow/nfse-api/internal/domain"
)

// Limites de xMotivo no evento de cancelamento.
const (
	MinReasonLength = 15
	MaxReasonLength = 255
)

var (
	reasonMetachars  = strings.NewReplacer("<", "", ">", "", "&", "", `"`, "", "'", "")
	reasonWhitespace = regexp.MustCompile(`\s+`)
)

// SanitizeReason normaliza o motivo informado pelo operador antes de ir para o XML do evento.
func SanitizeReason(raw string) (string, error) {
	s := norm.NFC.String(raw)
	s = reasonMetachars.Replace(s)
	s = strings.TrimSpace(reasonWhitespace.ReplaceAllString(s, " "))

	n := utf8.RuneCountInString(s)
	if n < MinReasonLength || n > MaxReasonLength {
		return "", fmt.Errorf("%w: motivo do cancelamento deve ter entre %d e %d caracteres (recebido %d)",
			domain.ErrInvalidInput, MinReasonLength, MaxReasonLength, n)
	}
	return s, nil
}
