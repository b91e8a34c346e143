package nfse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zapflow/nfse-api/internal/domain"
	"github.com/zapflow/nfse-api/internal/domain/entity"
	pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"
)

var validate = validator.New()

// payerInput campos exigidos pelo leiaute para o grupo <toma>.
type payerInput struct {
	Name     string `validate:"required"`
	Email    string `validate:"omitempty,email"`
	CEP      string `validate:"required,len=8,numeric"`
	Street   string `validate:"required"`
	Number   string `validate:"required"`
	District string `validate:"required"`
	CityCode string `validate:"required,len=7,numeric"`
	UF       string `validate:"omitempty,len=2,alpha"`
}

// Nome amigável de cada campo nas mensagens de erro.
var fieldLabels = map[string]string{
	"Name":     "nome",
	"Email":    "e-mail",
	"CEP":      "CEP",
	"Street":   "logradouro",
	"Number":   "número",
	"District": "bairro",
	"CityCode": "município (código IBGE)",
	"UF":       "UF",
}

// ClassifyPayer valida os dados do tomador e devolve a variante tipada (CPF ou CNPJ).
// Todos os problemas encontrados são reunidos num único erro que envolve domain.ErrInvalidPayer.
func ClassifyPayer(data entity.PayerData) (*Payer, error) {
	taxID := pkgnfse.OnlyDigits(data.TaxID)
	in := payerInput{
		Name:     strings.TrimSpace(data.Name),
		Email:    strings.TrimSpace(data.Email),
		CEP:      pkgnfse.OnlyDigits(data.CEP),
		Street:   strings.TrimSpace(data.Street),
		Number:   strings.TrimSpace(data.Number),
		District: strings.TrimSpace(data.District),
		CityCode: pkgnfse.OnlyDigits(data.CityCode),
		UF:       strings.ToUpper(strings.TrimSpace(data.UF)),
	}

	var errs []error

	kind := PayerUnknown
	switch len(taxID) {
	case pkgnfse.CPFLength:
		kind = PayerIndividual
		if err := pkgnfse.ValidateCPF(taxID); err != nil {
			errs = append(errs, err)
		}
	case pkgnfse.CNPJLength:
		kind = PayerEntity
		if err := pkgnfse.ValidateCNPJ(taxID); err != nil {
			errs = append(errs, err)
		}
	case 0:
		errs = append(errs, errors.New("CPF/CNPJ do tomador ausente"))
	default:
		errs = append(errs, fmt.Errorf("CPF/CNPJ do tomador inválido: %d dígitos", len(taxID)))
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			if msg := describeFieldErrors(verrs); msg != "" {
				errs = append(errs, errors.New(msg))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(append([]error{domain.ErrInvalidPayer}, errs...)...)
	}

	return &Payer{
		Kind:  kind,
		TaxID: taxID,
		Name:  in.Name,
		Email: in.Email,
		Address: Address{
			CEP:        in.CEP,
			Street:     in.Street,
			Number:     in.Number,
			Complement: strings.TrimSpace(data.Complement),
			District:   in.District,
			CityCode:   in.CityCode,
			UF:         in.UF,
		},
	}, nil
}

// describeFieldErrors separa problemas de endereço dos demais para que a tradução
// de mensagens reconheça o endereço incompleto.
func describeFieldErrors(verrs validator.ValidationErrors) string {
	var address, other []string
	for _, fe := range verrs {
		label := fieldLabels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		switch fe.Field() {
		case "Name", "Email":
			other = append(other, label)
		default:
			address = append(address, label)
		}
	}
	var parts []string
	if len(address) > 0 {
		parts = append(parts, "endereço do tomador incompleto ou inválido: "+strings.Join(address, ", "))
	}
	if len(other) > 0 {
		parts = append(parts, "dados do tomador ausentes ou inválidos: "+strings.Join(other, ", "))
	}
	return strings.Join(parts, "; ")
}
