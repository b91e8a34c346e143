// Package nfse orquestra a emissão, o cancelamento e a consulta de NFS-e na Sefin Nacional.
package nfse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/zapflow/nfse-api/internal/domain"
	"github.com/zapflow/nfse-api/internal/domain/entity"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
	"github.com/zapflow/nfse-api/internal/domain/repository"
	infnfse "github.com/zapflow/nfse-api/internal/infrastructure/nfse"
	"github.com/zapflow/nfse-api/pkg/logger"
	pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"
)

// DefaultStaleAfter tempo após o qual um PROCESSING abandonado pode ser reivindicado de novo.
const DefaultStaleAfter = 10 * time.Minute

// Mensagens de desfecho sem chamada à Sefin.
const (
	MsgCancelled    = "NFS-e cancelada"
	MsgInProgress   = "NFS-e em processamento por outra tentativa"
	MsgNotIssued    = "NFS-e não emitida: cancelamento indisponível"
	MsgNotSubmitted = "DPS ainda não enviada à Sefin"
	MsgNotFound     = "NFS-e não localizada na Sefin"
)

const (
	contentTypeXML = "application/xml"
	contentTypePDF = "application/pdf"
)

// Deps dependências do orquestrador. Cities é opcional.
type Deps struct {
	Configs    repository.IssuerConfigRepository
	Invoices   repository.TaxInvoiceRepository
	Sequences  repository.SequenceRepository
	Certs      CertificateProvider
	Builder    DocumentBuilder
	Signer     pkgnfse.Signer
	Authority  TaxAuthority
	Store      ArtifactStore
	Cities     CityLookup
	Logger     *logger.Logger
	StaleAfter time.Duration
}

// Orchestrator conduz a máquina de estados da NFS-e:
//
//	PENDING → PROCESSING → ISSUED | ERROR,  ISSUED → CANCELLED,  ERROR → PROCESSING
//
// Não repete nada internamente: falhas transitórias voltam como erro marcado
// (domnfse.IsRetryable) e a fila aplica o backoff.
type Orchestrator struct {
	configs    repository.IssuerConfigRepository
	invoices   repository.TaxInvoiceRepository
	sequences  repository.SequenceRepository
	certs      CertificateProvider
	builder    DocumentBuilder
	signer     pkgnfse.Signer
	authority  TaxAuthority
	store      ArtifactStore
	cities     CityLookup
	log        *logger.Logger
	staleAfter time.Duration
	now        func() time.Time
}

// NewOrchestrator monta o orquestrador.
func NewOrchestrator(d Deps) *Orchestrator {
	staleAfter := d.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		configs:    d.Configs,
		invoices:   d.Invoices,
		sequences:  d.Sequences,
		certs:      d.Certs,
		builder:    d.Builder,
		signer:     d.Signer,
		authority:  d.Authority,
		store:      d.Store,
		cities:     d.Cities,
		log:        log.Component("nfse_orchestrator"),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// WithClock substitui o relógio (testes).
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// InvalidateCertificate descarta o certificado em cache (rotação de configuração).
func (o *Orchestrator) InvalidateCertificate() {
	o.certs.Invalidate()
}

// ── Emissão ────────────────────────────────────────────────────────────────────

// Emit emite a NFS-e da cobrança. É idempotente: uma NFS-e já autorizada não volta à Sefin.
func (o *Orchestrator) Emit(ctx context.Context, invoiceID string) (*Result, error) {
	lg := o.logFor(invoiceID, "emit")

	// ═══════════════════════════════════════════════════════════════════════════
	// 1-2. Configuração fiscal ativa e NFS-e
	// ═══════════════════════════════════════════════════════════════════════════
	cfg, inv, err := o.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3-4. Idempotência e autocorreção de ISSUED sem chave
	// ═══════════════════════════════════════════════════════════════════════════
	switch {
	case inv.Status == entity.NFSeStatusIssued && inv.HasProtocol():
		lg.Info().Str("protocol", inv.Protocol).Msg("NFS-e já emitida, nada a fazer")
		return success(inv), nil
	case inv.Status == entity.NFSeStatusIssued:
		lg.Warn().Msg("NFS-e ISSUED sem chave de acesso, voltando para PENDING")
		if err := o.invoices.ResetToPending(ctx, inv.ID); err != nil {
			return nil, retryable(err, "nfse: reset para PENDING")
		}
		inv.Status = entity.NFSeStatusPending
	case inv.Status == entity.NFSeStatusCancelled:
		lg.Info().Msg("NFS-e cancelada, emissão ignorada")
		return failure(entity.NFSeStatusCancelled, MsgCancelled), nil
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Valor zero: cancela sem chamar a Sefin
	// ═══════════════════════════════════════════════════════════════════════════
	if inv.AmountCents <= 0 {
		if err := o.invoices.MarkCancelled(ctx, inv.ID, o.now(), domnfse.MsgZeroAmount); err != nil {
			return nil, retryable(err, "nfse: cancelar valor zero")
		}
		lg.Info().Int64("amount_cents", inv.AmountCents).Msg("valor zero, NFS-e cancelada sem envio")
		return failure(entity.NFSeStatusCancelled, domnfse.MsgZeroAmount), nil
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 6. Claim: só um worker segue daqui, e só ele grava no registro
	// ═══════════════════════════════════════════════════════════════════════════
	claimed, err := o.invoices.Claim(ctx, inv.ID, o.staleAfter)
	if err != nil {
		return nil, retryable(err, "nfse: claim")
	}
	if !claimed {
		lg.Info().Str("status", inv.Status).Msg("NFS-e já reivindicada, saindo")
		return failure(entity.NFSeStatusProcessing, MsgInProgress), nil
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 7-8. Tomador: município por CEP (melhor esforço) e validação
	// ═══════════════════════════════════════════════════════════════════════════
	o.resolveCityCode(ctx, lg, inv)

	payer, err := domnfse.ClassifyPayer(inv.Payer)
	if err != nil {
		return o.terminal(ctx, lg, inv.ID, err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 9. Certificado, numeração, montagem, assinatura e DPS assinada
	// ═══════════════════════════════════════════════════════════════════════════
	cert, err := o.certs.Load(ctx, cfg)
	if err != nil {
		if isCertificateError(err) {
			return o.terminal(ctx, lg, inv.ID, err)
		}
		return o.transient(ctx, lg, inv.ID, retryable(err, "nfse: carregar certificado"))
	}
	creds := infnfse.Credentials{CertPEM: cert.CertPEM, KeyPEM: cert.KeyPEM}

	// Uma tentativa anterior pode ter sido autorizada sem que a resposta chegasse.
	// Só uma resposta definitiva de "não encontrada" libera um novo número.
	if inv.DPSID != "" {
		res, err := o.lookupPrevious(ctx, lg, cfg, creds, inv)
		if err != nil {
			return o.transient(ctx, lg, inv.ID, err)
		}
		if res != nil {
			return o.persistIssued(ctx, lg, cfg, creds, inv, res)
		}
	}

	emittedAt := o.now().In(infnfse.Brasilia())
	seq, err := o.sequences.Reserve(ctx, sequenceKey(cfg), emittedAt.Year())
	if err != nil {
		return o.transient(ctx, lg, inv.ID, retryable(err, "nfse: reservar numeração"))
	}

	unsigned, err := o.builder.Build(&infnfse.DPSBuildContext{
		InvoiceID:   inv.ID,
		AmountCents: inv.AmountCents,
		Payer:       payer,
		Config:      cfg,
		Sequence:    seq,
		EmittedAt:   emittedAt,
	})
	if err != nil {
		return o.terminal(ctx, lg, inv.ID, err)
	}

	signed, err := o.signer.Sign(unsigned, cert.CertPEM, cert.KeyPEM)
	if err != nil {
		return o.terminal(ctx, lg, inv.ID, err)
	}

	dpsID := infnfse.DPSID(cfg, seq)
	lg = lg.With().Str("dps_id", dpsID).Int64("dps_number", seq).Logger()

	signedURL, err := o.store.UploadFile(ctx, artifactKey(inv, dpsID+".xml"), signed, contentTypeXML)
	if err != nil {
		return o.transient(ctx, lg, inv.ID, retryable(err, "nfse: gravar DPS assinada"))
	}
	if err := o.invoices.SaveSigned(ctx, inv.ID, dpsID, seq, signedURL); err != nil {
		return o.transient(ctx, lg, inv.ID, retryable(err, "nfse: registrar DPS assinada"))
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 10-12. Envio à Sefin
	// ═══════════════════════════════════════════════════════════════════════════
	res, err := o.authority.Submit(ctx, cfg.Environment, creds, signed)
	if err != nil {
		return o.transient(ctx, lg, inv.ID, err)
	}
	if !res.Accepted() {
		friendly := domnfse.FriendlyMessage(res.Message)
		if err := o.invoices.MarkError(ctx, inv.ID, friendly); err != nil {
			return nil, retryable(err, "nfse: registrar rejeição")
		}
		lg.Warn().
			Int("status_code", res.StatusCode).
			Str("sefin_message", res.Message).
			Str("friendly", friendly).
			Msg("DPS rejeitada pela Sefin")
		return failure(entity.NFSeStatusError, friendly), nil
	}

	return o.persistIssued(ctx, lg, cfg, creds, inv, res)
}

// ── Cancelamento ───────────────────────────────────────────────────────────────

// Cancel registra o evento 101101 de uma NFS-e autorizada. Fora do sucesso, o registro não muda.
func (o *Orchestrator) Cancel(ctx context.Context, invoiceID, reason string) (*Result, error) {
	lg := o.logFor(invoiceID, "cancel")

	cfg, inv, err := o.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if inv.Status == entity.NFSeStatusCancelled {
		lg.Info().Msg("NFS-e já cancelada")
		return success(inv), nil
	}
	if inv.Status != entity.NFSeStatusIssued || !inv.HasProtocol() {
		lg.Warn().Str("status", inv.Status).Msg("cancelamento recusado: NFS-e não emitida")
		return failure(inv.Status, MsgNotIssued), nil
	}

	motivo, err := domnfse.SanitizeReason(reason)
	if err != nil {
		lg.Warn().Err(err).Msg("motivo de cancelamento inválido")
		return failure(inv.Status, err.Error()), nil
	}

	cert, err := o.certs.Load(ctx, cfg)
	if err != nil {
		if isCertificateError(err) {
			lg.Error().Err(err).Msg("certificado indisponível para cancelamento")
			return failure(inv.Status, domnfse.FriendlyMessage(err.Error())), nil
		}
		return nil, retryable(err, "nfse: carregar certificado")
	}
	creds := infnfse.Credentials{CertPEM: cert.CertPEM, KeyPEM: cert.KeyPEM}

	at := o.now()
	unsigned, err := o.builder.BuildCancellation(&infnfse.CancellationContext{
		AccessKey: inv.Protocol,
		Reason:    motivo,
		Config:    cfg,
		At:        at,
	})
	if err != nil {
		lg.Error().Err(err).Msg("falha ao montar evento de cancelamento")
		return failure(inv.Status, domnfse.FriendlyMessage(err.Error())), nil
	}
	signed, err := o.signer.Sign(unsigned, cert.CertPEM, cert.KeyPEM)
	if err != nil {
		lg.Error().Err(err).Msg("falha ao assinar evento de cancelamento")
		return failure(inv.Status, domnfse.FriendlyMessage(err.Error())), nil
	}

	res, err := o.authority.Cancel(ctx, cfg.Environment, creds, inv.Protocol, signed)
	if err != nil {
		lg.Warn().Err(err).Msg("falha de comunicação no cancelamento")
		return nil, domnfse.WithFriendlyHint(err)
	}
	if !res.Accepted {
		friendly := domnfse.FriendlyMessage(res.Message)
		lg.Warn().
			Int("status_code", res.StatusCode).
			Str("sefin_message", res.Message).
			Msg("cancelamento rejeitado pela Sefin")
		return failure(inv.Status, friendly), nil
	}

	if err := o.invoices.MarkCancelled(ctx, inv.ID, at, motivo); err != nil {
		return nil, retryable(err, "nfse: registrar cancelamento")
	}
	lg.Info().Str("protocol", inv.Protocol).Msg("NFS-e cancelada")
	return &Result{Success: true, AccessKey: inv.Protocol, Number: inv.Number, Status: entity.NFSeStatusCancelled}, nil
}

// ── Consulta ───────────────────────────────────────────────────────────────────

// QueryStatus reconcilia a NFS-e com a Sefin. Notas ISSUED/CANCELLED só recebem o DANFSe faltante.
func (o *Orchestrator) QueryStatus(ctx context.Context, invoiceID string) (*Result, error) {
	lg := o.logFor(invoiceID, "query_status")

	cfg, inv, err := o.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch {
	case inv.Status == entity.NFSeStatusCancelled:
		return success(inv), nil
	case inv.Status == entity.NFSeStatusIssued && inv.HasProtocol():
		if inv.PDFURL == "" {
			o.backfillProof(ctx, lg, cfg, inv)
		}
		return success(inv), nil
	}

	if !inv.HasProtocol() && inv.DPSID == "" {
		return failure(inv.Status, MsgNotSubmitted), nil
	}

	cert, err := o.certs.Load(ctx, cfg)
	if err != nil {
		if isCertificateError(err) {
			lg.Error().Err(err).Msg("certificado indisponível para consulta")
			return failure(inv.Status, domnfse.FriendlyMessage(err.Error())), nil
		}
		return nil, retryable(err, "nfse: carregar certificado")
	}
	creds := infnfse.Credentials{CertPEM: cert.CertPEM, KeyPEM: cert.KeyPEM}

	var res *infnfse.SubmitResult
	if inv.HasProtocol() {
		res, err = o.authority.Query(ctx, cfg.Environment, creds, inv.Protocol)
	} else {
		res, err = o.authority.LookupDPS(ctx, cfg.Environment, creds, inv.DPSID)
	}
	if err != nil {
		lg.Warn().Err(err).Msg("falha de comunicação na consulta")
		return nil, domnfse.WithFriendlyHint(err)
	}
	if !res.Accepted() {
		msg := MsgNotFound
		if res != nil && res.Message != "" {
			msg = domnfse.FriendlyMessage(res.Message)
		}
		lg.Info().Str("status", inv.Status).Msg("NFS-e ainda não autorizada")
		return failure(inv.Status, msg), nil
	}

	return o.persistIssued(ctx, lg, cfg, creds, inv, res)
}

// ── Auxiliares ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) logFor(invoiceID, action string) zerolog.Logger {
	return o.log.With().Str("invoice_id", invoiceID).Str("action", action).Logger()
}

func (o *Orchestrator) load(ctx context.Context, invoiceID string) (*entity.IssuerTaxConfig, *entity.TaxInvoice, error) {
	cfg, err := o.configs.GetActive(ctx)
	if err != nil {
		return nil, nil, retryable(err, "nfse: carregar configuração fiscal")
	}
	if cfg == nil {
		return nil, nil, domain.ErrConfigMissing
	}
	inv, err := o.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, retryable(err, "nfse: carregar NFS-e")
	}
	if inv == nil {
		return nil, nil, errors.Wrapf(domain.ErrInvoiceNotFound, "id %s", invoiceID)
	}
	return cfg, inv, nil
}

// resolveCityCode completa o código IBGE do tomador pelo CEP. Falhas só geram log.
func (o *Orchestrator) resolveCityCode(ctx context.Context, lg zerolog.Logger, inv *entity.TaxInvoice) {
	if o.cities == nil || strings.TrimSpace(inv.Payer.CityCode) != "" || pkgnfse.OnlyDigits(inv.Payer.CEP) == "" {
		return
	}
	code, err := o.cities.LookupCityCode(ctx, inv.Payer.CEP)
	if err != nil {
		lg.Warn().Err(err).Str("cep", inv.Payer.CEP).Msg("consulta de município por CEP falhou")
		return
	}
	if code == "" {
		return
	}
	inv.Payer.CityCode = code
	if err := o.invoices.UpdatePayerCityCode(ctx, inv.ID, code); err != nil {
		lg.Warn().Err(err).Msg("não foi possível gravar o município do tomador")
	}
}

// lookupPrevious procura na Sefin a DPS assinada numa tentativa anterior.
// Devolve nil, nil apenas quando a Sefin responde 404 para a DPS.
func (o *Orchestrator) lookupPrevious(ctx context.Context, lg zerolog.Logger, cfg *entity.IssuerTaxConfig, creds infnfse.Credentials, inv *entity.TaxInvoice) (*infnfse.SubmitResult, error) {
	res, err := o.authority.LookupDPS(ctx, cfg.Environment, creds, inv.DPSID)
	if err != nil {
		return nil, retryable(err, "nfse: consultar DPS anterior "+inv.DPSID)
	}
	if res.Accepted() {
		lg.Info().Str("dps_id", inv.DPSID).Msg("DPS anterior já autorizada, reconciliando")
		return res, nil
	}
	if !res.NotFound() {
		msg := "sem resposta"
		if res != nil {
			msg = fmt.Sprintf("status %d: %s", res.StatusCode, res.Message)
		}
		return nil, domnfse.MarkRetryable(errors.Newf("nfse: consulta da DPS anterior %s inconclusiva (%s)", inv.DPSID, msg))
	}
	lg.Info().Str("dps_id", inv.DPSID).Msg("DPS anterior não encontrada, seguindo com novo envio")
	return nil, nil
}

// persistIssued grava os artefatos (melhor esforço) e marca a NFS-e como ISSUED.
func (o *Orchestrator) persistIssued(ctx context.Context, lg zerolog.Logger, cfg *entity.IssuerTaxConfig, creds infnfse.Credentials, inv *entity.TaxInvoice, res *infnfse.SubmitResult) (*Result, error) {
	data := repository.IssuedData{
		Protocol: res.AccessKey,
		Number:   res.Number,
		IssuedAt: o.now(),
	}
	if res.IssuedAt != nil {
		data.IssuedAt = *res.IssuedAt
	}

	if len(res.OfficialXML) > 0 {
		url, err := o.store.UploadFile(ctx, artifactKey(inv, "nfse-"+res.AccessKey+".xml"), res.OfficialXML, contentTypeXML)
		if err != nil {
			lg.Warn().Err(err).Msg("falha ao gravar XML oficial")
		} else {
			data.OfficialXMLURL = url
		}
	}
	data.PDFURL = o.storeProof(ctx, lg, cfg, creds, inv, res.AccessKey)

	if err := o.invoices.MarkIssued(ctx, inv.ID, data); err != nil {
		return nil, retryable(err, "nfse: registrar emissão")
	}
	lg.Info().
		Str("protocol", data.Protocol).
		Str("number", data.Number).
		Str("status", entity.NFSeStatusIssued).
		Msg("NFS-e emitida")
	return &Result{Success: true, AccessKey: data.Protocol, Number: data.Number, Status: entity.NFSeStatusIssued}, nil
}

// storeProof baixa o DANFSe e devolve a URL gravada; "" quando ainda não disponível ou em falha.
func (o *Orchestrator) storeProof(ctx context.Context, lg zerolog.Logger, cfg *entity.IssuerTaxConfig, creds infnfse.Credentials, inv *entity.TaxInvoice, accessKey string) string {
	pdf, err := o.authority.FetchProof(ctx, cfg.Environment, creds, accessKey)
	if err != nil {
		lg.Warn().Err(err).Msg("falha ao baixar DANFSe")
		return ""
	}
	if len(pdf) == 0 {
		lg.Debug().Msg("DANFSe ainda não disponível")
		return ""
	}
	url, err := o.store.UploadFile(ctx, artifactKey(inv, "danfse-"+accessKey+".pdf"), pdf, contentTypePDF)
	if err != nil {
		lg.Warn().Err(err).Msg("falha ao gravar DANFSe")
		return ""
	}
	return url
}

func (o *Orchestrator) backfillProof(ctx context.Context, lg zerolog.Logger, cfg *entity.IssuerTaxConfig, inv *entity.TaxInvoice) {
	cert, err := o.certs.Load(ctx, cfg)
	if err != nil {
		lg.Warn().Err(err).Msg("certificado indisponível, DANFSe não recuperado")
		return
	}
	creds := infnfse.Credentials{CertPEM: cert.CertPEM, KeyPEM: cert.KeyPEM}
	url := o.storeProof(ctx, lg, cfg, creds, inv, inv.Protocol)
	if url == "" {
		return
	}
	if err := o.invoices.SetPDFURL(ctx, inv.ID, url); err != nil {
		lg.Warn().Err(err).Msg("não foi possível gravar a URL do DANFSe")
		return
	}
	inv.PDFURL = url
}

// terminal registra a mensagem amigável e encerra sem erro: a fila não deve repetir.
func (o *Orchestrator) terminal(ctx context.Context, lg zerolog.Logger, invoiceID string, cause error) (*Result, error) {
	friendly := domnfse.FriendlyMessage(cause.Error())
	if err := o.invoices.MarkError(ctx, invoiceID, friendly); err != nil {
		return nil, retryable(err, "nfse: registrar erro")
	}
	lg.Error().Err(cause).Str("friendly", friendly).Msg("falha terminal na emissão")
	return failure(entity.NFSeStatusError, friendly), nil
}

// transient registra a mensagem técnica e devolve o erro para a fila decidir.
func (o *Orchestrator) transient(ctx context.Context, lg zerolog.Logger, invoiceID string, cause error) (*Result, error) {
	if err := o.invoices.MarkError(ctx, invoiceID, cause.Error()); err != nil {
		lg.Error().Err(err).Msg("não foi possível registrar o erro")
	}
	lg.Warn().Err(cause).Bool("retryable", domnfse.IsRetryable(cause)).Msg("falha na emissão")
	return nil, domnfse.WithFriendlyHint(cause)
}

func retryable(err error, msg string) error {
	return domnfse.MarkRetryable(errors.Wrap(err, msg))
}

func isCertificateError(err error) bool {
	return errors.Is(err, domain.ErrCertificateExpired) || errors.Is(err, domain.ErrCertificateDecode)
}

// sequenceKey a numeração acompanha o CNPJ e a série, não o registro de configuração.
func sequenceKey(cfg *entity.IssuerTaxConfig) string {
	return pkgnfse.OnlyDigits(cfg.CNPJ) + ":" + strings.TrimSpace(cfg.DPSSeries)
}

func artifactKey(inv *entity.TaxInvoice, name string) string {
	tenant := inv.TenantID
	if tenant == "" {
		tenant = "_"
	}
	return fmt.Sprintf("%s/%s/%s", tenant, inv.ID, name)
}
