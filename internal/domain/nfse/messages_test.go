package nfse_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/zapflow/nfse-api/internal/domain/nfse"
)

func TestFriendlyMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"endereço incompleto", "E0312: Endereço do tomador não informado", nfse.MsgAddress},
		{"cep sem acento", "CEP informado nao pertence ao municipio", nfse.MsgAddress},
		{"tag cMun", "Elemento cMun com conteúdo inválido", nfse.MsgAddress},
		{"schema", "cvc-complex-type.2.4.a: Invalid content was found starting with element 'toma'", nfse.MsgSchema},
		{"xml mal formado", "XML mal formado na linha 1", nfse.MsgSchema},
		{"cpf inválido", "E0160: CPF do tomador inválido", nfse.MsgTaxID},
		{"cnpj invalido", "Invalid CNPJ for tomador", nfse.MsgTaxID},
		{"certificado", "Certificado digital revogado", nfse.MsgCertificate},
		{"assinatura", "Assinatura digital não confere", nfse.MsgCertificate},
		{"timeout", "Post \"https://sefin\": context deadline exceeded", nfse.MsgTransient},
		{"http 503", "sefin: status 503: Service Unavailable", nfse.MsgTransient},
		{"indisponível", "Serviço indisponível no momento", nfse.MsgTransient},
		{"curta sem regra", "Alíquota fora do intervalo permitido", "Alíquota fora do intervalo permitido"},
		{"vazia", "   ", nfse.MsgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nfse.FriendlyMessage(tt.raw))
		})
	}
}

func TestFriendlyMessage_LongUnmatchedBecomesGeneric(t *testing.T) {
	raw := strings.Repeat("x", nfse.MaxRawMessageLength+1)
	assert.Equal(t, nfse.MsgGeneric, nfse.FriendlyMessage(raw))

	atLimit := strings.Repeat("y", nfse.MaxRawMessageLength)
	assert.Equal(t, atLimit, nfse.FriendlyMessage(atLimit))
}

func TestFriendlyMessage_AddressWinsOverSchema(t *testing.T) {
	// Mensagens de schema que citam o endereço caem na regra de endereço.
	got := nfse.FriendlyMessage("cvc-minLength-valid: valor '' do elemento xLgr inválido")
	assert.Equal(t, nfse.MsgAddress, got)
}

func TestIsRetryable(t *testing.T) {
	base := fmt.Errorf("falha de rede")
	assert.False(t, nfse.IsRetryable(nil))
	assert.False(t, nfse.IsRetryable(base))
	assert.True(t, nfse.IsRetryable(nfse.MarkRetryable(base)))
	assert.True(t, nfse.IsRetryable(fmt.Errorf("emit: %w", nfse.MarkRetryable(base))))
	assert.True(t, nfse.IsRetryable(fmt.Errorf("read tcp: connection reset by peer")))
	assert.False(t, nfse.IsRetryable(fmt.Errorf("CPF do tomador inválido")))
	assert.Nil(t, nfse.MarkRetryable(nil))
}

func TestIsRetryable_MarcaAtravessaWraps(t *testing.T) {
	marked := nfse.MarkRetryable(errors.New("x"))

	assert.True(t, nfse.IsRetryable(marked))
	assert.False(t, nfse.IsRetryable(errors.New("x")))
	assert.True(t, nfse.IsRetryable(errors.Wrap(marked, "nfse: consultar DPS")))
	assert.True(t, nfse.IsRetryable(nfse.WithFriendlyHint(marked)))
	assert.True(t, errors.Is(marked, nfse.ErrRetryable))

	// A marca só é visível pelo errors.Is do cockroachdb; o do stdlib não a enxerga.
	assert.False(t, stderrors.Is(marked, nfse.ErrRetryable))
}
