package nfse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/domain"
	"github.com/zapflow/nfse-api/internal/domain/nfse"
)

func TestSanitizeReason(t *testing.T) {
	got, err := nfse.SanitizeReason("  Serviço   cobrado <em duplicidade> & \"errado\"\n")
	require.NoError(t, err)
	assert.Equal(t, "Serviço cobrado em duplicidade errado", got)
}

func TestSanitizeReason_ComposesAccents(t *testing.T) {
	decomposed := "Servic\u0327o prestado em duplicidade"
	got, err := nfse.SanitizeReason(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "Serviço prestado em duplicidade", got)
}

func TestSanitizeReason_Length(t *testing.T) {
	_, err := nfse.SanitizeReason("curto")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// metacaracteres removidos não contam
	_, err = nfse.SanitizeReason("<<<<<<<<<<abc>>>>>>>>>>")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = nfse.SanitizeReason(strings.Repeat("a", nfse.MaxReasonLength+1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ok, err := nfse.SanitizeReason(strings.Repeat("a", nfse.MaxReasonLength))
	require.NoError(t, err)
	assert.Len(t, ok, nfse.MaxReasonLength)
}
