package nfse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
	pkgnfse "github.com/zapflow/nfse-api/pkg/nfse"
)

const (
	accessKeyLength       = 50
	maxServiceDescription = 2000
	maxCancelReason       = 255
	defaultDescription    = "Licença de uso de software (assinatura mensal)"
)

// XMLBuilderService monta a DPS e o pedido de evento (sem assinatura).
type XMLBuilderService struct {
	appVersion string
}

// NewXMLBuilderService cria o serviço; appVersion vai em verAplic.
func NewXMLBuilderService(appVersion string) *XMLBuilderService {
	if appVersion == "" {
		appVersion = "nfse-api"
	}
	return &XMLBuilderService{appVersion: appVersion}
}

// DPSID monta o Id da infDPS:
// "DPS" + cLocEmi(7) + tpInsc(1) + inscrição do emitente(14) + série(5) + nDPS(15).
func DPSID(cfg *entity.IssuerTaxConfig, number int64) string {
	issuer := pkgnfse.OnlyDigits(cfg.CNPJ)
	inscription := pkgnfse.InscriptionCNPJ
	if len(issuer) == pkgnfse.CPFLength {
		inscription = pkgnfse.InscriptionCPF
	}
	return pkgnfse.DPSIDPrefix +
		leftPad(pkgnfse.OnlyDigits(cfg.CityCode), 7) +
		inscription +
		leftPad(issuer, 14) +
		leftPad(pkgnfse.OnlyDigits(cfg.DPSSeries), 5) +
		leftPad(strconv.FormatInt(number, 10), 15)
}

// EventID monta o Id do infPedReg: "PRE" + chave(50) + tipo do evento(6) + nPedRegEvento(3).
func EventID(accessKey string, requestNumber int) string {
	return pkgnfse.EventIDPrefix + accessKey + pkgnfse.EventCancellation + fmt.Sprintf("%03d", requestNumber)
}

// Build gera a DPS na ordem do leiaute nacional.
func (s *XMLBuilderService) Build(ctx *DPSBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Config == nil || ctx.Payer == nil {
		return nil, fmt.Errorf("nfse: faltam config ou tomador no contexto")
	}
	if ctx.Sequence <= 0 {
		return nil, fmt.Errorf("nfse: número da DPS inválido: %d", ctx.Sequence)
	}
	cfg := ctx.Config

	var tax entity.TaxParams
	switch ctx.Payer.Kind {
	case domnfse.PayerIndividual:
		tax = cfg.IndividualTax
	case domnfse.PayerEntity:
		tax = cfg.EntityTax
	default:
		return nil, fmt.Errorf("nfse: tomador não classificado")
	}
	if tax.NationalServiceCode == "" {
		return nil, fmt.Errorf("nfse: cTribNac não configurado para tomador %s", ctx.Payer.Kind)
	}

	emitted := ctx.EmittedAt.In(brasilia)
	w := newXMLWriter()

	w.open("DPS", attr("xmlns", pkgnfse.Namespace), attr("versao", pkgnfse.LayoutVersion))
	w.open("infDPS", attr("Id", DPSID(cfg, ctx.Sequence)))

	w.leaf("tpAmb", strconv.Itoa(environment(cfg)))
	w.leaf("dhEmi", emitted.Format(DateTimeLayout))
	w.leaf("verAplic", s.appVersion)
	w.leaf("serie", pkgnfse.OnlyDigits(cfg.DPSSeries))
	w.leaf("nDPS", strconv.FormatInt(ctx.Sequence, 10))
	w.leaf("dCompet", emitted.Format(DateLayout))
	w.leaf("tpEmit", pkgnfse.EmitterProvider)
	w.leaf("cLocEmi", pkgnfse.OnlyDigits(cfg.CityCode))

	// ---- Prestador
	w.open("prest")
	w.leaf("CNPJ", pkgnfse.OnlyDigits(cfg.CNPJ))
	if im := strings.TrimSpace(cfg.MunicipalRegistration); im != "" && !strings.EqualFold(im, pkgnfse.MunicipalRegistrationSkip) {
		w.leaf("IM", im)
	}
	w.open("regTrib")
	w.leaf("opSimpNac", strconv.Itoa(simplesNacional(cfg)))
	if cfg.SimplesNacional == pkgnfse.SimplesMEEPP && cfg.SimplesRegime > 0 {
		w.leaf("regApTribSN", strconv.Itoa(cfg.SimplesRegime))
	}
	w.leaf("regEspTrib", strconv.Itoa(cfg.SpecialTaxRegime))
	w.close("regTrib")
	w.close("prest")

	// ---- Tomador
	payer := ctx.Payer
	w.open("toma")
	if payer.IsIndividual() {
		w.leaf("CPF", payer.TaxID)
	} else {
		w.leaf("CNPJ", payer.TaxID)
	}
	w.leaf("xNome", payer.Name)
	w.open("end")
	w.open("endNac")
	w.leaf("cMun", payer.Address.CityCode)
	w.leaf("CEP", payer.Address.CEP)
	w.close("endNac")
	w.leaf("xLgr", payer.Address.Street)
	w.leaf("nro", payer.Address.Number)
	w.optional("xCpl", payer.Address.Complement)
	w.leaf("xBairro", payer.Address.District)
	w.close("end")
	w.optional("email", payer.Email)
	w.close("toma")

	// ---- Serviço
	w.open("serv")
	w.open("locPrest")
	w.leaf("cLocPrestacao", pkgnfse.OnlyDigits(cfg.CityCode))
	w.close("locPrest")
	w.open("cServ")
	w.leaf("cTribNac", pkgnfse.OnlyDigits(tax.NationalServiceCode))
	w.optional("cTribMun", tax.MunicipalServiceCode)
	w.leaf("xDescServ", serviceDescription(tax.Description))
	w.optional("cNBS", pkgnfse.OnlyDigits(tax.NBSCode))
	w.close("cServ")
	w.close("serv")

	// ---- Valores
	w.open("valores")
	w.open("vServPrest")
	w.leaf("vServ", decimal.New(ctx.AmountCents, -2).StringFixed(2))
	w.close("vServPrest")
	w.open("trib")
	w.open("tribMun")
	w.leaf("tribISSQN", pkgnfse.ISSQNTributavel)
	w.leaf("tpRetISSQN", pkgnfse.ISSQNRetencaoNaoRet)
	if tax.ISSRate.IsPositive() {
		w.leaf("pAliq", tax.ISSRate.StringFixed(2))
	}
	w.close("tribMun")
	w.open("totTrib")
	if cfg.SimplesNacional == pkgnfse.SimplesMEEPP {
		w.leaf("pTotTribSN", tax.ISSRate.StringFixed(2))
	} else {
		w.leaf("indTotTrib", "0")
	}
	w.close("totTrib")
	w.close("trib")
	w.close("valores")

	w.close("infDPS")
	w.close("DPS")
	return w.bytes()
}

// BuildCancellation gera o pedRegEvento de cancelamento (evento 101101).
func (s *XMLBuilderService) BuildCancellation(ctx *CancellationContext) ([]byte, error) {
	if ctx == nil || ctx.Config == nil {
		return nil, fmt.Errorf("nfse: falta config no contexto do cancelamento")
	}
	key := pkgnfse.OnlyDigits(ctx.AccessKey)
	if len(key) != accessKeyLength {
		return nil, fmt.Errorf("nfse: chave de acesso deve ter %d dígitos, recebida com %d", accessKeyLength, len(key))
	}
	reason := strings.TrimSpace(ctx.Reason)
	if reason == "" {
		return nil, fmt.Errorf("nfse: motivo do cancelamento vazio")
	}
	if utf8.RuneCountInString(reason) > maxCancelReason {
		reason = string([]rune(reason)[:maxCancelReason])
	}

	w := newXMLWriter()
	w.open("pedRegEvento", attr("xmlns", pkgnfse.Namespace), attr("versao", pkgnfse.LayoutVersion))
	w.open("infPedReg", attr("Id", EventID(key, pkgnfse.FirstEventRequestNumber)))
	w.leaf("tpAmb", strconv.Itoa(environment(ctx.Config)))
	w.leaf("verAplic", s.appVersion)
	w.leaf("dhEvento", ctx.At.In(brasilia).Format(DateTimeLayout))
	w.leaf("CNPJAutor", pkgnfse.OnlyDigits(ctx.Config.CNPJ))
	w.leaf("chNFSe", key)
	w.leaf("nPedRegEvento", strconv.Itoa(pkgnfse.FirstEventRequestNumber))
	w.open("e" + pkgnfse.EventCancellation)
	w.leaf("xDesc", pkgnfse.EventCancellationDesc)
	w.leaf("cMotivo", pkgnfse.CancelReasonOther)
	w.leaf("xMotivo", reason)
	w.close("e" + pkgnfse.EventCancellation)
	w.close("infPedReg")
	w.close("pedRegEvento")
	return w.bytes()
}

func environment(cfg *entity.IssuerTaxConfig) int {
	if cfg.Environment == pkgnfse.EnvironmentProduction {
		return pkgnfse.EnvironmentProduction
	}
	return pkgnfse.EnvironmentHomolog
}

func simplesNacional(cfg *entity.IssuerTaxConfig) int {
	if cfg.SimplesNacional == 0 {
		return pkgnfse.SimplesNaoOptante
	}
	return cfg.SimplesNacional
}

func serviceDescription(desc string) string {
	desc = strings.Join(strings.Fields(desc), " ")
	if desc == "" {
		return defaultDescription
	}
	if utf8.RuneCountInString(desc) > maxServiceDescription {
		return string([]rune(desc)[:maxServiceDescription])
	}
	return desc
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

// ── Escrita sequencial com encoding/xml ─────────────────────────────────────

type xmlWriter struct {
	buf bytes.Buffer
	enc *xml.Encoder
	err error
}

func newXMLWriter() *xmlWriter {
	w := &xmlWriter{}
	w.buf.WriteString(xml.Header[:len(xml.Header)-1])
	w.enc = xml.NewEncoder(&w.buf)
	return w
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (w *xmlWriter) open(name string, attrs ...xml.Attr) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (w *xmlWriter) close(name string) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *xmlWriter) leaf(name, value string) {
	w.open(name)
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.CharData(value))
	}
	w.close(name)
}

func (w *xmlWriter) optional(name, value string) {
	if strings.TrimSpace(value) != "" {
		w.leaf(name, strings.TrimSpace(value))
	}
}

func (w *xmlWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, fmt.Errorf("nfse: escrever XML: %w", w.err)
	}
	if err := w.enc.Flush(); err != nil {
		return nil, fmt.Errorf("nfse: escrever XML: %w", err)
	}
	return w.buf.Bytes(), nil
}
