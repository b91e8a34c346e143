package nfse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zapflow/nfse-api/pkg/nfse"
)

func TestValidateCPF(t *testing.T) {
	cases := []struct {
		name  string
		cpf   string
		valid bool
	}{
		{"formatado válido", "529.982.247-25", true},
		{"só dígitos válido", "52998224725", true},
		{"dígito errado", "52998224724", false},
		{"repetido", "111.111.111-11", false},
		{"curto", "1234567890", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := nfse.ValidateCPF(tc.cpf)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateCNPJ(t *testing.T) {
	assert.NoError(t, nfse.ValidateCNPJ("11.222.333/0001-81"))
	assert.NoError(t, nfse.ValidateCNPJ("11222333000181"))
	assert.Error(t, nfse.ValidateCNPJ("11222333000182"))
	assert.Error(t, nfse.ValidateCNPJ("00000000000000"))
	assert.Error(t, nfse.ValidateCNPJ("1122233300018"))
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "01310100", nfse.OnlyDigits("01310-100"))
	assert.Equal(t, "11222333000181", nfse.OnlyDigits("11.222.333/0001-81"))
}
