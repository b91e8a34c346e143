// seed_issuer grava (ou rotaciona) a configuração fiscal ativa do prestador.
//
// Uso: go run ./cmd/seed_issuer perfil.json certificado.pfx
// A senha do certificado vem de NFSE_CERT_PASSWORD e é gravada cifrada.
// O .pfx é enviado ao bucket S3 configurado e referenciado pela chave.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zapflow/nfse-api/internal/bootstrap"
	"github.com/zapflow/nfse-api/internal/domain/entity"
	"github.com/zapflow/nfse-api/internal/infrastructure/nfse/signer"
	"github.com/zapflow/nfse-api/internal/infrastructure/postgres"
	"github.com/zapflow/nfse-api/internal/infrastructure/security"
	"github.com/zapflow/nfse-api/internal/infrastructure/storage"
	"github.com/zapflow/nfse-api/pkg/config"
	"github.com/zapflow/nfse-api/pkg/logger"
	pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"
)

type taxProfile struct {
	NationalServiceCode  string          `json:"cTribNac"`
	MunicipalServiceCode string          `json:"cTribMun"`
	NBSCode              string          `json:"cNBS"`
	CNAE                 string          `json:"cnae"`
	ISSRate              decimal.Decimal `json:"aliquotaIss"`
	Description          string          `json:"descricao"`
}

type issuerProfile struct {
	ID                    string     `json:"id"`
	CNPJ                  string     `json:"cnpj"`
	MunicipalRegistration string     `json:"inscricaoMunicipal"`
	CityCode              string     `json:"codigoMunicipio"`
	UFCode                string     `json:"codigoUf"`
	DPSSeries             string     `json:"serieDps"`
	Environment           int        `json:"ambiente"`
	SimplesNacional       int        `json:"opSimpNac"`
	SimplesRegime         int        `json:"regApTribSN"`
	SpecialTaxRegime      int        `json:"regEspTrib"`
	Entity                taxProfile `json:"pessoaJuridica"`
	Individual            taxProfile `json:"pessoaFisica"`
}

func (t taxProfile) params() entity.TaxParams {
	return entity.TaxParams{
		NationalServiceCode:  t.NationalServiceCode,
		MunicipalServiceCode: t.MunicipalServiceCode,
		NBSCode:              t.NBSCode,
		CNAE:                 t.CNAE,
		ISSRate:              t.ISSRate,
		Description:          t.Description,
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "uso: seed_issuer perfil.json certificado.pfx")
		os.Exit(2)
	}
	password := os.Getenv("NFSE_CERT_PASSWORD")
	if password == "" {
		fail("NFSE_CERT_PASSWORD não definido")
	}

	cfg, err := config.Load()
	if err != nil {
		fail("carregar configuração: %v", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail("ler perfil: %v", err)
	}
	var profile issuerProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		fail("decodificar perfil: %v", err)
	}
	if err := pkgnfse.ValidateCNPJ(profile.CNPJ); err != nil {
		fail("CNPJ do prestador: %v", err)
	}

	pfx, err := os.ReadFile(os.Args[2])
	if err != nil {
		fail("ler certificado: %v", err)
	}
	// Confere a senha antes de gravar qualquer coisa.
	expiresAt, err := signer.NotAfter(pfx, password)
	if err != nil {
		fail("abrir certificado: %v", err)
	}
	if time.Now().After(expiresAt) {
		fail("certificado expirou em %s", expiresAt.Format(time.RFC3339))
	}

	ctx := context.Background()
	secrets, err := security.NewAESEncryptionService(cfg.Secrets.EncryptionKey)
	if err != nil {
		fail("serviço de cifra: %v", err)
	}
	passwordEnc, err := secrets.Encrypt(password)
	if err != nil {
		fail("cifrar senha: %v", err)
	}

	store, err := storage.NewS3Store(ctx, cfg.S3)
	if err != nil {
		fail("storage: %v", err)
	}
	certKey := fmt.Sprintf("certificates/%s/%d.pfx", pkgnfse.OnlyDigits(profile.CNPJ), time.Now().Unix())
	if _, err := store.UploadFile(ctx, certKey, pfx, "application/x-pkcs12"); err != nil {
		fail("enviar certificado: %v", err)
	}

	pool, err := bootstrap.ConnectDB(ctx, cfg.DB, log)
	if err != nil {
		fail("conexão com PostgreSQL: %v", err)
	}
	defer pool.Close()

	issuer := &entity.IssuerTaxConfig{
		ID:                     profile.ID,
		CNPJ:                   pkgnfse.OnlyDigits(profile.CNPJ),
		MunicipalRegistration:  profile.MunicipalRegistration,
		CityCode:               profile.CityCode,
		UFCode:                 profile.UFCode,
		DPSSeries:              profile.DPSSeries,
		CertificateRef:         certKey,
		CertificatePasswordEnc: passwordEnc,
		CertificateExpiresAt:   expiresAt,
		EntityTax:              profile.Entity.params(),
		IndividualTax:          profile.Individual.params(),
		Environment:            profile.Environment,
		SimplesNacional:        profile.SimplesNacional,
		SimplesRegime:          profile.SimplesRegime,
		SpecialTaxRegime:       profile.SpecialTaxRegime,
		IsActive:               true,
	}
	if err := postgres.NewIssuerConfigRepository(pool).Activate(ctx, issuer); err != nil {
		fail("ativar configuração: %v", err)
	}

	fmt.Printf("Configuração %s ativa (CNPJ %s, certificado válido até %s)\n",
		issuer.ID, issuer.CNPJ, expiresAt.Format("2006-01-02"))
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
