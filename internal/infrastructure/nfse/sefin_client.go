package nfse

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/zapflow/nfse-api/internal/domain"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
	pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"
)

// ── Endpoints ──────────────────────────────────────────────────────────────────

const (
	SefinURLProd    = "https://sefin.nfse.gov.br/SefinNacional"
	SefinURLHomolog = "https://sefin.producaorestrita.nfse.gov.br/SefinNacional"
	ADNURLProd      = "https://adn.nfse.gov.br"
	ADNURLHomolog   = "https://adn.producaorestrita.nfse.gov.br"

	defaultTimeout  = 60 * time.Second
	maxResponseBody = 10 << 20
	maxCachedTLS    = 4
)

// Endpoints URLs base por ambiente. Campos vazios usam os endereços oficiais.
type Endpoints struct {
	SefinProd    string
	SefinHomolog string
	ADNProd      string
	ADNHomolog   string
}

func (e Endpoints) sefin(env int) string {
	if env == pkgnfse.EnvironmentProduction {
		return firstNonEmpty(e.SefinProd, SefinURLProd)
	}
	return firstNonEmpty(e.SefinHomolog, SefinURLHomolog)
}

func (e Endpoints) adn(env int) string {
	if env == pkgnfse.EnvironmentProduction {
		return firstNonEmpty(e.ADNProd, ADNURLProd)
	}
	return firstNonEmpty(e.ADNHomolog, ADNURLHomolog)
}

// Credentials certificado do emissor usado no mTLS.
type Credentials struct {
	CertPEM []byte
	KeyPEM  []byte
}

func (c Credentials) fingerprint() string {
	h := sha256.Sum256(c.CertPEM)
	return hex.EncodeToString(h[:])
}

// ── Cliente ────────────────────────────────────────────────────────────────────

// SefinClient cliente REST da Sefin Nacional e do ADN (DANFSe).
// Nenhuma chamada é repetida aqui: falhas transitórias voltam marcadas como retryable.
type SefinClient struct {
	endpoints Endpoints
	timeout   time.Duration
	rootCAs   *x509.CertPool

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewSefinClient cria o cliente. timeout <= 0 usa 60 s por chamada.
func NewSefinClient(endpoints Endpoints, timeout time.Duration) *SefinClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SefinClient{
		endpoints: endpoints,
		timeout:   timeout,
		clients:   make(map[string]*http.Client),
	}
}

// WithRootCAs define as autoridades aceitas no servidor (nil = raízes do sistema).
func (c *SefinClient) WithRootCAs(pool *x509.CertPool) *SefinClient {
	c.rootCAs = pool
	return c
}

// ── Estruturas JSON ─────────────────────────────────────────────────────────

type submitRequest struct {
	DPSXMLGZipB64 string `json:"dpsXmlGZipB64"`
}

type eventRequest struct {
	EventXMLGZipB64 string `json:"pedidoRegistroEventoXmlGZipB64"`
}

type sefinMessage struct {
	Codigo      string `json:"codigo"`
	Descricao   string `json:"descricao"`
	Complemento string `json:"complemento"`
}

type sefinResponse struct {
	ChaveAcesso           string         `json:"chaveAcesso"`
	IDDPS                 string         `json:"idDps"`
	DataHoraProcessamento string         `json:"dataHoraProcessamento"`
	NFSeXMLGZipB64        string         `json:"nfseXmlGZipB64"`
	EventoXMLGZipB64      string         `json:"eventoXmlGZipB64"`
	Alertas               []sefinMessage `json:"alertas"`
	Erros                 []sefinMessage `json:"erros"`
	Erro                  *sefinMessage  `json:"erro"`
}

// ── Operações ──────────────────────────────────────────────────────────────────

// Submit envia a DPS assinada (POST /nfse).
func (c *SefinClient) Submit(ctx context.Context, env int, creds Credentials, signedXML []byte) (*SubmitResult, error) {
	payload, err := EncodePayload(signedXML)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(ctx, creds, http.MethodPost, c.endpoints.sefin(env)+"/nfse", submitRequest{DPSXMLGZipB64: payload})
	if err != nil {
		return nil, err
	}
	return c.toSubmitResult(status, body)
}

// Query consulta a NFS-e pela chave de acesso (GET /nfse/{chave}).
func (c *SefinClient) Query(ctx context.Context, env int, creds Credentials, accessKey string) (*SubmitResult, error) {
	status, body, err := c.do(ctx, creds, http.MethodGet, c.endpoints.sefin(env)+"/nfse/"+url.PathEscape(accessKey), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.toSubmitResult(status, body)
	if err != nil {
		return nil, err
	}
	if res.AccessKey == "" && status < 300 {
		res.AccessKey = accessKey
	}
	return res, nil
}

// LookupDPS resolve a chave de acesso a partir do Id da DPS (GET /dps/{id}) e, se houver,
// busca a NFS-e correspondente.
func (c *SefinClient) LookupDPS(ctx context.Context, env int, creds Credentials, dpsID string) (*SubmitResult, error) {
	status, body, err := c.do(ctx, creds, http.MethodGet, c.endpoints.sefin(env)+"/dps/"+url.PathEscape(dpsID), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.toSubmitResult(status, body)
	if err != nil || !res.Accepted() {
		return res, err
	}
	full, err := c.Query(ctx, env, creds, res.AccessKey)
	if err != nil {
		return nil, err
	}
	if full.DPSID == "" {
		full.DPSID = dpsID
	}
	return full, nil
}

// Cancel registra o evento de cancelamento assinado (POST /nfse/{chave}/eventos).
func (c *SefinClient) Cancel(ctx context.Context, env int, creds Credentials, accessKey string, signedEventXML []byte) (*EventResult, error) {
	payload, err := EncodePayload(signedEventXML)
	if err != nil {
		return nil, err
	}
	endpoint := c.endpoints.sefin(env) + "/nfse/" + url.PathEscape(accessKey) + "/eventos"
	status, body, err := c.do(ctx, creds, http.MethodPost, endpoint, eventRequest{EventXMLGZipB64: payload})
	if err != nil {
		return nil, err
	}
	resp, err := decodeResponse(status, body)
	if err != nil {
		return nil, err
	}
	res := &EventResult{StatusCode: status, Message: joinMessages(resp)}
	if status >= 200 && status < 300 {
		res.Accepted = true
		if resp.EventoXMLGZipB64 != "" {
			if res.EventXML, err = DecodePayload(resp.EventoXMLGZipB64); err != nil {
				return nil, fmt.Errorf("sefin: XML do evento: %w", err)
			}
		}
	}
	return res, nil
}

// FetchProof baixa o DANFSe (PDF) no ADN. Devolve nil, nil quando ainda não existe.
func (c *SefinClient) FetchProof(ctx context.Context, env int, creds Credentials, accessKey string) ([]byte, error) {
	status, body, err := c.do(ctx, creds, http.MethodGet, c.endpoints.adn(env)+"/danfse/"+url.PathEscape(accessKey), nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status >= 200 && status < 300:
		if len(body) == 0 {
			return nil, nil
		}
		return body, nil
	default:
		return nil, fmt.Errorf("adn: status %d ao baixar DANFSe", status)
	}
}

// ── HTTP ──────────────────────────────────────────────────────────────────────

// do executa a chamada. Falhas de transporte e respostas 5xx/408/429 voltam como erro retryable;
// as demais respostas são devolvidas com o status para o chamador interpretar.
func (c *SefinClient) do(ctx context.Context, creds Credentials, method, endpoint string, payload any) (int, []byte, error) {
	hc, err := c.httpClient(creds)
	if err != nil {
		return 0, nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("sefin: serializar requisição: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("sefin: criar requisição: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, domnfse.MarkRetryable(fmt.Errorf("sefin: timeout ou cancelamento: %w", ctx.Err()))
		}
		return 0, nil, domnfse.MarkRetryable(fmt.Errorf("sefin: chamada HTTP falhou: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, domnfse.MarkRetryable(fmt.Errorf("sefin: ler resposta: %w", err))
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, body, domnfse.MarkRetryable(
			fmt.Errorf("sefin: status %d: %s", resp.StatusCode, summarize(body)))
	}
	return resp.StatusCode, body, nil
}

// httpClient devolve um cliente mTLS por certificado; a rotação gera um novo transporte.
func (c *SefinClient) httpClient(creds Credentials) (*http.Client, error) {
	fp := creds.fingerprint()

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[fp]; ok {
		return hc, nil
	}

	pair, err := tls.X509KeyPair(creds.CertPEM, creds.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: par mTLS: %v", domain.ErrCertificateDecode, err)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{pair},
		RootCAs:      c.rootCAs,
		MinVersion:   tls.VersionTLS12,
	}
	hc := &http.Client{Timeout: c.timeout, Transport: tr}

	if len(c.clients) >= maxCachedTLS {
		for k, old := range c.clients {
			old.CloseIdleConnections()
			delete(c.clients, k)
		}
	}
	c.clients[fp] = hc
	return hc, nil
}

// ── Respostas ──────────────────────────────────────────────────────────────────

func decodeResponse(status int, body []byte) (*sefinResponse, error) {
	var resp sefinResponse
	if len(bytes.TrimSpace(body)) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		if status >= 200 && status < 300 {
			return nil, fmt.Errorf("sefin: resposta inválida: %w", err)
		}
		// Rejeição sem JSON: o corpo vira a mensagem.
		resp.Erro = &sefinMessage{Descricao: summarize(body)}
	}
	return &resp, nil
}

func (c *SefinClient) toSubmitResult(status int, body []byte) (*SubmitResult, error) {
	resp, err := decodeResponse(status, body)
	if err != nil {
		return nil, err
	}
	res := &SubmitResult{
		StatusCode: status,
		DPSID:      resp.IDDPS,
		Message:    joinMessages(resp),
	}
	if status < 200 || status >= 300 {
		if res.Message == "" {
			res.Message = fmt.Sprintf("sefin: status %d", status)
		}
		return res, nil
	}

	res.AccessKey = resp.ChaveAcesso
	if t, ok := parseProcessingTime(resp.DataHoraProcessamento); ok {
		res.IssuedAt = &t
	}
	if resp.NFSeXMLGZipB64 != "" {
		xmlBytes, err := DecodePayload(resp.NFSeXMLGZipB64)
		if err != nil {
			return nil, fmt.Errorf("sefin: XML da NFS-e: %w", err)
		}
		res.OfficialXML = xmlBytes
		res.Number = extractNumber(xmlBytes)
		if res.AccessKey == "" {
			res.AccessKey = extractAccessKey(xmlBytes)
		}
	}
	return res, nil
}

func joinMessages(resp *sefinResponse) string {
	msgs := resp.Erros
	if resp.Erro != nil {
		msgs = append(msgs, *resp.Erro)
	}
	if len(msgs) == 0 {
		msgs = resp.Alertas
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Descricao)
		if m.Complemento != "" {
			text += " (" + strings.TrimSpace(m.Complemento) + ")"
		}
		if m.Codigo != "" {
			text = m.Codigo + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "; ")
}

// extractNumber lê nNFSe do XML oficial.
func extractNumber(xmlBytes []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return ""
	}
	if el := doc.FindElement("//nNFSe"); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// extractAccessKey lê a chave do Id de infNFSe ("NFS" + 50 dígitos).
func extractAccessKey(xmlBytes []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return ""
	}
	if el := doc.FindElement("//infNFSe"); el != nil {
		return strings.TrimPrefix(el.SelectAttrValue("Id", ""), "NFS")
	}
	return ""
}

func parseProcessingTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, DateTimeLayout, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, brasilia); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimRight(strings.TrimSpace(v), "/"); v != "" {
			return v
		}
	}
	return ""
}
