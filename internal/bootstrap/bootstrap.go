// Package bootstrap monta as dependências compartilhadas pelos binários da API e do worker.
package bootstrap

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	appnfse "github.com/zapflow/nfse-api/internal/application/nfse"
	"github.com/zapflow/nfse-api/internal/infrastructure/lookup"
	infnfse "github.com/zapflow/nfse-api/internal/infrastructure/nfse"
	"github.com/zapflow/nfse-api/internal/infrastructure/nfse/signer"
	"github.com/zapflow/nfse-api/internal/infrastructure/postgres"
	"github.com/zapflow/nfse-api/internal/infrastructure/security"
	"github.com/zapflow/nfse-api/internal/infrastructure/storage"
	"github.com/zapflow/nfse-api/pkg/config"
	"github.com/zapflow/nfse-api/pkg/logger"
)

const connectAttempts = 5

// ConnectDB abre o pool com backoff exponencial; o banco costuma subir depois do container.
func ConnectDB(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	op := func() error {
		p, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("PostgreSQL indisponível, tentando de novo")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, connectAttempts), ctx), notify); err != nil {
		return nil, err
	}
	return pool, nil
}

// NewOrchestrator liga repositórios, storage, certificado, Sefin e CEP ao orquestrador.
func NewOrchestrator(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) (*appnfse.Orchestrator, error) {
	store, err := storage.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	secrets, err := security.NewAESEncryptionService(cfg.Secrets.EncryptionKey)
	if err != nil {
		return nil, err
	}

	certs := signer.NewCertificateManager(store, secrets, signer.NewMemoryCertificateCache(), cfg.NFSe.CertCacheTTL)
	client := infnfse.NewSefinClient(infnfse.Endpoints{
		SefinProd:    cfg.NFSe.SefinURLProd,
		SefinHomolog: cfg.NFSe.SefinURLHomolog,
		ADNProd:      cfg.NFSe.ADNURLProd,
		ADNHomolog:   cfg.NFSe.ADNURLHomolog,
	}, cfg.NFSe.HTTPTimeout)

	return appnfse.NewOrchestrator(appnfse.Deps{
		Configs:    postgres.NewIssuerConfigRepository(pool),
		Invoices:   postgres.NewTaxInvoiceRepository(pool),
		Sequences:  postgres.NewSequenceRepository(pool),
		Certs:      certs,
		Builder:    infnfse.NewXMLBuilderService(cfg.NFSe.AppVersion),
		Signer:     signer.NewDigitalSignatureService(),
		Authority:  client,
		Store:      store,
		Cities:     lookup.NewViaCEPClient(cfg.Lookup.ViaCEPURL, cfg.NFSe.HTTPTimeout),
		Logger:     log,
		StaleAfter: cfg.NFSe.StaleAfter,
	}), nil
}
