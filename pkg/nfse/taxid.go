package nfse

import (
	"fmt"
	"unicode"
)

// Pesos do módulo 11 da Receita Federal. O CPF usa pesos decrescentes a partir de 10/11;
// o CNPJ usa a sequência 5..2,9..2 (primeiro DV) e 6..2,9..2 (segundo DV).
var (
	cnpjWeightsFirst  = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// Tamanhos de documento que determinam o tipo de tomador.
const (
	CPFLength  = 11
	CNPJLength = 14
)

// OnlyDigits remove pontos, traços, barras e espaços de um CPF/CNPJ/CEP.
func OnlyDigits(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return string(out)
}

// ValidateCPF valida os dois dígitos verificadores do CPF.
// Aceita "123.456.789-09" ou "12345678909".
func ValidateCPF(cpf string) error {
	d := OnlyDigits(cpf)
	if len(d) != CPFLength {
		return fmt.Errorf("nfse: CPF deve ter %d dígitos, encontrados %d", CPFLength, len(d))
	}
	if allSame(d) {
		return fmt.Errorf("nfse: CPF inválido (dígitos repetidos)")
	}
	for pos := 9; pos <= 10; pos++ {
		sum := 0
		for i := 0; i < pos; i++ {
			sum += int(d[i]-'0') * (pos + 1 - i)
		}
		if expected := mod11Digit(sum); d[pos] != expected {
			return fmt.Errorf("nfse: dígito verificador do CPF inválido: esperado %c, recebido %c", expected, d[pos])
		}
	}
	return nil
}

// ValidateCNPJ valida os dois dígitos verificadores do CNPJ numérico.
func ValidateCNPJ(cnpj string) error {
	d := OnlyDigits(cnpj)
	if len(d) != CNPJLength {
		return fmt.Errorf("nfse: CNPJ deve ter %d dígitos, encontrados %d", CNPJLength, len(d))
	}
	if allSame(d) {
		return fmt.Errorf("nfse: CNPJ inválido (dígitos repetidos)")
	}
	sum := 0
	for i, w := range cnpjWeightsFirst {
		sum += int(d[i]-'0') * w
	}
	if expected := mod11Digit(sum); d[12] != expected {
		return fmt.Errorf("nfse: primeiro dígito verificador do CNPJ inválido: esperado %c, recebido %c", expected, d[12])
	}
	sum = 0
	for i, w := range cnpjWeightsSecond {
		sum += int(d[i]-'0') * w
	}
	if expected := mod11Digit(sum); d[13] != expected {
		return fmt.Errorf("nfse: segundo dígito verificador do CNPJ inválido: esperado %c, recebido %c", expected, d[13])
	}
	return nil
}

func mod11Digit(sum int) byte {
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

func allSame(d string) bool {
	for i := 1; i < len(d); i++ {
		if d[i] != d[0] {
			return false
		}
	}
	return true
}
