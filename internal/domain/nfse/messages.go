package nfse

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// ErrRetryable marca falhas transitórias: o job volta para a fila e é reprocessado com backoff.
var ErrRetryable = errors.New("nfse: falha transitória")

// MarkRetryable marca err como transitório preservando a cadeia original.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrRetryable)
}

// IsRetryable indica se err deve ser re-entregue pela fila.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) {
		return true
	}
	return transientPattern.MatchString(strings.ToLower(err.Error()))
}

// ── Tradução de erros ───────────────────────────────────────────────────────

const (
	// MaxRawMessageLength acima disso a mensagem técnica é substituída pela genérica.
	MaxRawMessageLength = 200

	MsgZeroAmount  = "Valor zero"
	MsgAddress     = "Endereço do tomador incompleto ou inválido. Verifique CEP, logradouro, número, bairro e município."
	MsgSchema      = "A Sefin recusou a estrutura do documento. Revise os dados cadastrais do emissor e do tomador."
	MsgTaxID       = "CPF/CNPJ do tomador inválido. Corrija o documento do cliente e emita novamente."
	MsgCertificate = "Problema com o certificado digital do emissor. Verifique a validade e a senha do certificado A1."
	MsgTransient   = "Serviço da Sefin Nacional temporariamente indisponível. A emissão será tentada novamente."
	MsgGeneric     = "Erro ao emitir NFS-e. Tente novamente mais tarde ou contate o suporte."
)

var transientPattern = regexp.MustCompile(
	`timeout|timed out|deadline exceeded|econnreset|connection reset|connection refused|` +
		`unexpected eof|no such host|\b(status|http) 5\d\d\b|indispon[ií]vel|temporariamente`)

type translationRule struct {
	name    string
	pattern *regexp.Regexp
	message string
}

// translationRules ordem importa: a primeira regra que casar vence.
var translationRules = []translationRule{
	{
		name:    "address",
		pattern: regexp.MustCompile(`endere[çc]o|\bcep\b|\bcmun\b|\bxlgr\b|logradouro|\bxbairro\b`),
		message: MsgAddress,
	},
	{
		name:    "schema",
		pattern: regexp.MustCompile(`schema|cvc-|xml mal formado|malformed|mal-formado`),
		message: MsgSchema,
	},
	{
		name:    "tax_id",
		pattern: regexp.MustCompile(`\b(cpf|cnpj)\b.*inv[áa]lid|inv[áa]lid.*\b(cpf|cnpj)\b`),
		message: MsgTaxID,
	},
	{
		name:    "certificate",
		pattern: regexp.MustCompile(`certificado|certificate|assinatura|signature`),
		message: MsgCertificate,
	},
	{
		name:    "transient",
		pattern: transientPattern,
		message: MsgTransient,
	},
}

// FriendlyMessage traduz a mensagem técnica (da Sefin ou interna) para o texto exibido no painel.
// Sem regra aplicável, mensagens curtas seguem como estão e longas viram MsgGeneric.
func FriendlyMessage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MsgGeneric
	}
	lower := strings.ToLower(raw)
	for _, r := range translationRules {
		if r.pattern.MatchString(lower) {
			return r.message
		}
	}
	if utf8.RuneCountInString(raw) > MaxRawMessageLength {
		return MsgGeneric
	}
	return raw
}

// WithFriendlyHint anexa a mensagem amigável como hint do erro.
func WithFriendlyHint(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithHint(err, FriendlyMessage(err.Error()))
}
