package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	"github.com/zapflow/nfse-api/internal/domain/repository"
)

var _ repository.IssuerConfigRepository = (*IssuerConfigRepo)(nil)

// IssuerConfigRepo implementa IssuerConfigRepository sobre PostgreSQL.
type IssuerConfigRepo struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewIssuerConfigRepository constrói o repositório.
func NewIssuerConfigRepository(pool *pgxpool.Pool) *IssuerConfigRepo {
	return &IssuerConfigRepo{pool: pool, tx: NewTxRunner(pool)}
}

// GetActive é a consulta que abre todo o fluxo de emissão.
// Devolve nil, nil se nenhuma configuração estiver ativa.
func (r *IssuerConfigRepo) GetActive(ctx context.Context) (*entity.IssuerTaxConfig, error) {
	const q = `
		SELECT id, cnpj, municipal_registration, city_code, uf_code, dps_series,
		       certificate_ref, certificate_password_enc, certificate_expires_at,
		       entity_national_code, entity_municipal_code, entity_nbs_code, entity_cnae,
		       entity_iss_rate, entity_description,
		       individual_national_code, individual_municipal_code, individual_nbs_code, individual_cnae,
		       individual_iss_rate, individual_description,
		       environment, simples_nacional, simples_regime, special_tax_regime,
		       is_active, created_at, updated_at
		FROM nfse_issuer_configs
		WHERE is_active = true
		ORDER BY updated_at DESC
		LIMIT 1`
	cfg, err := scanIssuerConfig(r.pool.QueryRow(ctx, q))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active nfse_issuer_config: %w", err)
	}
	return cfg, nil
}

// Activate grava a configuração como a única ativa.
func (r *IssuerConfigRepo) Activate(ctx context.Context, cfg *entity.IssuerTaxConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	return r.tx.Run(ctx, func(q Querier) error {
		if _, err := q.Exec(ctx, `UPDATE nfse_issuer_configs SET is_active = false, updated_at = now() WHERE is_active AND id <> $1`, cfg.ID); err != nil {
			return fmt.Errorf("deactivate nfse_issuer_configs: %w", err)
		}
		const upsert = `
			INSERT INTO nfse_issuer_configs (
				id, cnpj, municipal_registration, city_code, uf_code, dps_series,
				certificate_ref, certificate_password_enc, certificate_expires_at,
				entity_national_code, entity_municipal_code, entity_nbs_code, entity_cnae,
				entity_iss_rate, entity_description,
				individual_national_code, individual_municipal_code, individual_nbs_code, individual_cnae,
				individual_iss_rate, individual_description,
				environment, simples_nacional, simples_regime, special_tax_regime,
				is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, true, now(), now())
			ON CONFLICT (id) DO UPDATE SET
				cnpj = EXCLUDED.cnpj,
				municipal_registration = EXCLUDED.municipal_registration,
				city_code = EXCLUDED.city_code,
				uf_code = EXCLUDED.uf_code,
				dps_series = EXCLUDED.dps_series,
				certificate_ref = EXCLUDED.certificate_ref,
				certificate_password_enc = EXCLUDED.certificate_password_enc,
				certificate_expires_at = EXCLUDED.certificate_expires_at,
				entity_national_code = EXCLUDED.entity_national_code,
				entity_municipal_code = EXCLUDED.entity_municipal_code,
				entity_nbs_code = EXCLUDED.entity_nbs_code,
				entity_cnae = EXCLUDED.entity_cnae,
				entity_iss_rate = EXCLUDED.entity_iss_rate,
				entity_description = EXCLUDED.entity_description,
				individual_national_code = EXCLUDED.individual_national_code,
				individual_municipal_code = EXCLUDED.individual_municipal_code,
				individual_nbs_code = EXCLUDED.individual_nbs_code,
				individual_cnae = EXCLUDED.individual_cnae,
				individual_iss_rate = EXCLUDED.individual_iss_rate,
				individual_description = EXCLUDED.individual_description,
				environment = EXCLUDED.environment,
				simples_nacional = EXCLUDED.simples_nacional,
				simples_regime = EXCLUDED.simples_regime,
				special_tax_regime = EXCLUDED.special_tax_regime,
				is_active = true,
				updated_at = now()
			RETURNING created_at, updated_at`
		e, i := cfg.EntityTax, cfg.IndividualTax
		err := q.QueryRow(ctx, upsert,
			cfg.ID, cfg.CNPJ, cfg.MunicipalRegistration, cfg.CityCode, cfg.UFCode, cfg.DPSSeries,
			cfg.CertificateRef, cfg.CertificatePasswordEnc, cfg.CertificateExpiresAt,
			e.NationalServiceCode, e.MunicipalServiceCode, e.NBSCode, e.CNAE, e.ISSRate, e.Description,
			i.NationalServiceCode, i.MunicipalServiceCode, i.NBSCode, i.CNAE, i.ISSRate, i.Description,
			cfg.Environment, cfg.SimplesNacional, cfg.SimplesRegime, cfg.SpecialTaxRegime,
		).Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert nfse_issuer_config: %w", err)
		}
		cfg.IsActive = true
		return nil
	})
}

func scanIssuerConfig(row pgxScanner) (*entity.IssuerTaxConfig, error) {
	var c entity.IssuerTaxConfig
	e, i := &c.EntityTax, &c.IndividualTax
	err := row.Scan(
		&c.ID, &c.CNPJ, &c.MunicipalRegistration, &c.CityCode, &c.UFCode, &c.DPSSeries,
		&c.CertificateRef, &c.CertificatePasswordEnc, &c.CertificateExpiresAt,
		&e.NationalServiceCode, &e.MunicipalServiceCode, &e.NBSCode, &e.CNAE,
		&e.ISSRate, &e.Description,
		&i.NationalServiceCode, &i.MunicipalServiceCode, &i.NBSCode, &i.CNAE,
		&i.ISSRate, &i.Description,
		&c.Environment, &c.SimplesNacional, &c.SimplesRegime, &c.SpecialTaxRegime,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
