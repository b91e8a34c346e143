package nfse_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
	"github.com/zapflow/nfse-api/internal/domain/repository"
	infnfse "github.com/zapflow/nfse-api/internal/infrastructure/nfse"
	"github.com/zapflow/nfse-api/internal/infrastructure/nfse/signer"
)

// ── Repositórios ───────────────────────────────────────────────────────────────

type fakeConfigs struct {
	cfg *entity.IssuerTaxConfig
	err error
}

func (f *fakeConfigs) GetActive(context.Context) (*entity.IssuerTaxConfig, error) {
	return f.cfg, f.err
}

func (f *fakeConfigs) Activate(_ context.Context, cfg *entity.IssuerTaxConfig) error {
	f.cfg = cfg
	return nil
}

type fakeInvoices struct {
	mu       sync.Mutex
	byID     map[string]*entity.TaxInvoice
	claims   int
	resets   int
	pdfSets  int
	issueErr error
}

func newFakeInvoices(invs ...*entity.TaxInvoice) *fakeInvoices {
	f := &fakeInvoices{byID: make(map[string]*entity.TaxInvoice)}
	for _, inv := range invs {
		f.byID[inv.ID] = inv
	}
	return f
}

func (f *fakeInvoices) get(id string) *entity.TaxInvoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeInvoices) GetByID(_ context.Context, id string) (*entity.TaxInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoices) Claim(_ context.Context, id string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := f.byID[id]
	if inv.Status != entity.NFSeStatusPending && inv.Status != entity.NFSeStatusError {
		return false, nil
	}
	f.claims++
	inv.Status = entity.NFSeStatusProcessing
	return true, nil
}

func (f *fakeInvoices) ResetToPending(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.byID[id].Status = entity.NFSeStatusPending
	return nil
}

func (f *fakeInvoices) MarkCancelled(_ context.Context, id string, at time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := f.byID[id]
	inv.Status = entity.NFSeStatusCancelled
	inv.CancelledAt = &at
	inv.CancelReason = reason
	return nil
}

func (f *fakeInvoices) MarkError(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := f.byID[id]
	inv.Status = entity.NFSeStatusError
	inv.LastError = message
	return nil
}

func (f *fakeInvoices) MarkIssued(_ context.Context, id string, data repository.IssuedData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return f.issueErr
	}
	inv := f.byID[id]
	inv.Status = entity.NFSeStatusIssued
	inv.Protocol = data.Protocol
	inv.Number = data.Number
	at := data.IssuedAt
	inv.IssuedAt = &at
	inv.OfficialXMLURL = data.OfficialXMLURL
	inv.PDFURL = data.PDFURL
	inv.LastError = ""
	return nil
}

func (f *fakeInvoices) SaveSigned(_ context.Context, id, dpsID string, dpsNumber int64, signedXMLURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := f.byID[id]
	inv.DPSID = dpsID
	inv.DPSNumber = dpsNumber
	inv.SignedXMLURL = signedXMLURL
	return nil
}

func (f *fakeInvoices) SetPDFURL(_ context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pdfSets++
	f.byID[id].PDFURL = url
	return nil
}

func (f *fakeInvoices) UpdatePayerCityCode(_ context.Context, id, cityCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].Payer.CityCode = cityCode
	return nil
}

type fakeSequences struct {
	mu    sync.Mutex
	last  map[string]int64
	calls []string
	years []int
}

func (f *fakeSequences) Reserve(_ context.Context, issuerID string, year int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		f.last = make(map[string]int64)
	}
	f.last[issuerID]++
	f.calls = append(f.calls, issuerID)
	f.years = append(f.years, year)
	return f.last[issuerID], nil
}

// ── Certificado, montagem e assinatura ────────────────────────────────────────

type fakeCerts struct {
	err         error
	loads       int
	invalidated int
}

func (f *fakeCerts) Load(context.Context, *entity.IssuerTaxConfig) (*signer.CachedCertificate, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return &signer.CachedCertificate{CertPEM: []byte("cert"), KeyPEM: []byte("key")}, nil
}

func (f *fakeCerts) Invalidate() { f.invalidated++ }

type fakeBuilder struct {
	lastDPS    *infnfse.DPSBuildContext
	lastCancel *infnfse.CancellationContext
	err        error
}

func (f *fakeBuilder) Build(ctx *infnfse.DPSBuildContext) ([]byte, error) {
	f.lastDPS = ctx
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`<DPS><infDPS Id="DPS0000000"/></DPS>`), nil
}

func (f *fakeBuilder) BuildCancellation(ctx *infnfse.CancellationContext) ([]byte, error) {
	f.lastCancel = ctx
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`<pedRegEvento><infPedReg Id="PRE0000000"/></pedRegEvento>`), nil
}

type fakeSigner struct {
	err error
}

func (f *fakeSigner) Sign(xmlBytes, _, _ []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append(append([]byte{}, xmlBytes...), []byte("<Signature/>")...), nil
}

// ── Sefin ──────────────────────────────────────────────────────────────────────

type fakeAuthority struct {
	submitRes *infnfse.SubmitResult
	submitErr error
	queryRes  *infnfse.SubmitResult
	lookupRes *infnfse.SubmitResult
	lookupErr error
	cancelRes *infnfse.EventResult
	cancelErr error
	proof     []byte

	submits    int
	queries    int
	lookups    int
	cancels    int
	lastCancel string
}

func (f *fakeAuthority) Submit(context.Context, int, infnfse.Credentials, []byte) (*infnfse.SubmitResult, error) {
	f.submits++
	return f.submitRes, f.submitErr
}

func (f *fakeAuthority) Query(context.Context, int, infnfse.Credentials, string) (*infnfse.SubmitResult, error) {
	f.queries++
	return f.queryRes, nil
}

func (f *fakeAuthority) LookupDPS(context.Context, int, infnfse.Credentials, string) (*infnfse.SubmitResult, error) {
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.lookupRes == nil {
		return &infnfse.SubmitResult{StatusCode: 404}, nil
	}
	return f.lookupRes, nil
}

func (f *fakeAuthority) Cancel(_ context.Context, _ int, _ infnfse.Credentials, accessKey string, _ []byte) (*infnfse.EventResult, error) {
	f.cancels++
	f.lastCancel = accessKey
	return f.cancelRes, f.cancelErr
}

func (f *fakeAuthority) FetchProof(context.Context, int, infnfse.Credentials, string) ([]byte, error) {
	return f.proof, nil
}

// ── Armazenamento e CEP ───────────────────────────────────────────────────────

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeStore) UploadFile(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return "mem://" + key, nil
}

type fakeCities struct {
	code  string
	err   error
	calls int
}

func (f *fakeCities) LookupCityCode(context.Context, string) (string, error) {
	f.calls++
	return f.code, f.err
}

// transientErr simula a falha de rede que o cliente da Sefin devolve.
var transientErr = domnfse.MarkRetryable(errors.New("sefin: POST /nfse: dial tcp 10.0.0.1:443: i/o timeout"))
