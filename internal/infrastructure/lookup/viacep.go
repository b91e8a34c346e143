// Package lookup resolve o código IBGE do município a partir do CEP (ViaCEP).
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"
)

const DefaultViaCEPURL = "https://viacep.com.br/ws"

// ViaCEPClient consulta https://viacep.com.br/ws/{cep}/json/.
type ViaCEPClient struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewViaCEPClient cria o cliente com poucas tentativas: a consulta é best-effort.
func NewViaCEPClient(baseURL string, timeout time.Duration) *ViaCEPClient {
	if baseURL == "" {
		baseURL = DefaultViaCEPURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return &ViaCEPClient{baseURL: baseURL, client: rc}
}

type viaCEPResponse struct {
	CEP  string `json:"cep"`
	IBGE string `json:"ibge"`
	UF   string `json:"uf"`
	Erro any    `json:"erro"`
}

// LookupCityCode devolve o código IBGE (7 dígitos) do CEP; "" quando o CEP não existe.
func (c *ViaCEPClient) LookupCityCode(ctx context.Context, cep string) (string, error) {
	digits := pkgnfse.OnlyDigits(cep)
	if len(digits) != 8 {
		return "", fmt.Errorf("viacep: CEP inválido %q", cep)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+digits+"/json/", nil)
	if err != nil {
		return "", fmt.Errorf("viacep: criar requisição: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("viacep: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("viacep: status %d", resp.StatusCode)
	}

	var body viaCEPResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("viacep: resposta inválida: %w", err)
	}
	// ViaCEP responde {"erro": true} (ou "true") para CEP inexistente.
	if body.Erro != nil && body.Erro != false {
		return "", nil
	}
	code := pkgnfse.OnlyDigits(body.IBGE)
	if len(code) != 7 {
		return "", nil
	}
	return code, nil
}
