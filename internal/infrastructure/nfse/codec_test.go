package nfse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/infrastructure/nfse"
)

func TestPayloadCodec(t *testing.T) {
	xmlText := []byte(`<?xml version="1.0" encoding="UTF-8"?><DPS><infDPS Id="DPS1"><xNome>João</xNome></infDPS></DPS>`)

	encoded, err := nfse.EncodePayload(xmlText)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "<DPS>")

	decoded, err := nfse.DecodePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, xmlText, decoded)

	_, err = nfse.DecodePayload("%%%")
	assert.Error(t, err)
}
