package nfse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/domain"
	"github.com/zapflow/nfse-api/internal/domain/entity"
	"github.com/zapflow/nfse-api/internal/domain/nfse"
)

func validPayerData() entity.PayerData {
	return entity.PayerData{
		Name:     "Maria da Silva",
		TaxID:    "529.982.247-25",
		Email:    "maria@example.com",
		CEP:      "01310-100",
		Street:   "Avenida Paulista",
		Number:   "1000",
		District: "Bela Vista",
		CityCode: "3550308",
		UF:       "sp",
	}
}

func TestClassifyPayer_Individual(t *testing.T) {
	p, err := nfse.ClassifyPayer(validPayerData())
	require.NoError(t, err)

	assert.Equal(t, nfse.PayerIndividual, p.Kind)
	assert.True(t, p.IsIndividual())
	assert.Equal(t, "52998224725", p.TaxID)
	assert.Equal(t, "01310100", p.Address.CEP)
	assert.Equal(t, "SP", p.Address.UF)
	assert.Equal(t, "1", p.Kind.InscriptionType())
}

func TestClassifyPayer_Entity(t *testing.T) {
	data := validPayerData()
	data.TaxID = "11.222.333/0001-81"

	p, err := nfse.ClassifyPayer(data)
	require.NoError(t, err)

	assert.Equal(t, nfse.PayerEntity, p.Kind)
	assert.True(t, p.IsEntity())
	assert.Equal(t, "2", p.Kind.InscriptionType())
}

func TestClassifyPayer_RejectsUnknownLength(t *testing.T) {
	data := validPayerData()
	data.TaxID = "123456789"

	_, err := nfse.ClassifyPayer(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPayer)
	assert.Equal(t, nfse.MsgTaxID, nfse.FriendlyMessage(err.Error()))
}

func TestClassifyPayer_RejectsBadCheckDigit(t *testing.T) {
	data := validPayerData()
	data.TaxID = "529.982.247-26"

	_, err := nfse.ClassifyPayer(data)
	assert.ErrorIs(t, err, domain.ErrInvalidPayer)
}

func TestClassifyPayer_MissingAddress(t *testing.T) {
	data := validPayerData()
	data.Street = ""
	data.CityCode = ""

	_, err := nfse.ClassifyPayer(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPayer)
	assert.Contains(t, err.Error(), "logradouro")
	assert.Equal(t, nfse.MsgAddress, nfse.FriendlyMessage(err.Error()))
}

func TestClassifyPayer_OptionalEmail(t *testing.T) {
	data := validPayerData()
	data.Email = ""
	_, err := nfse.ClassifyPayer(data)
	assert.NoError(t, err)

	data.Email = "não-é-email"
	_, err = nfse.ClassifyPayer(data)
	assert.ErrorIs(t, err, domain.ErrInvalidPayer)
}
