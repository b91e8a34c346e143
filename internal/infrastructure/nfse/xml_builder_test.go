package nfse_test

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/internal/domain/entity"
	domnfse "github.com/zapflow/nfse-api/internal/domain/nfse"
	"github.com/zapflow/nfse-api/internal/infrastructure/nfse"
)

func issuerConfig() *entity.IssuerTaxConfig {
	return &entity.IssuerTaxConfig{
		ID:                    "cfg-1",
		CNPJ:                  "11.222.333/0001-81",
		MunicipalRegistration: "1234567",
		CityCode:              "3550308",
		UFCode:                "35",
		DPSSeries:             "1",
		Environment:           2,
		SimplesNacional:       1,
		SpecialTaxRegime:      0,
		EntityTax: entity.TaxParams{
			NationalServiceCode: "010501",
			NBSCode:             "115022000",
			ISSRate:             decimal.RequireFromString("2.00"),
			Description:         "Licenciamento de software - plano empresarial",
		},
		IndividualTax: entity.TaxParams{
			NationalServiceCode:  "010502",
			MunicipalServiceCode: "001",
			ISSRate:              decimal.RequireFromString("3.5"),
			Description:          "Licenciamento de software - plano pessoal",
		},
	}
}

func classify(t *testing.T, taxID string) *domnfse.Payer {
	t.Helper()
	p, err := domnfse.ClassifyPayer(entity.PayerData{
		Name:     "Cliente Teste",
		TaxID:    taxID,
		Email:    "cliente@example.com",
		CEP:      "01310-100",
		Street:   "Avenida Paulista",
		Number:   "1000",
		District: "Bela Vista",
		CityCode: "3550308",
		UF:       "SP",
	})
	require.NoError(t, err)
	return p
}

func buildDoc(t *testing.T, ctx *nfse.DPSBuildContext) *etree.Element {
	t.Helper()
	out, err := nfse.NewXMLBuilderService("zapflow-1.4.0").Build(ctx)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	return doc.Root()
}

func childTags(el *etree.Element) []string {
	var tags []string
	for _, c := range el.ChildElements() {
		tags = append(tags, c.Tag)
	}
	return tags
}

func TestDPSID(t *testing.T) {
	id := nfse.DPSID(issuerConfig(), 42)
	assert.Equal(t, "DPS355030821122233300018100001000000000000042", id)
	assert.Len(t, id, 45)
}

func TestBuild_ElementOrderAndValues(t *testing.T) {
	root := buildDoc(t, &nfse.DPSBuildContext{
		InvoiceID:   "inv-1",
		AmountCents: 14990,
		Payer:       classify(t, "11.222.333/0001-81"),
		Config:      issuerConfig(),
		Sequence:    42,
		EmittedAt:   time.Date(2026, 3, 10, 17, 5, 0, 0, time.UTC),
	})

	assert.Equal(t, "DPS", root.Tag)
	assert.Equal(t, "http://www.sped.fazenda.gov.br/nfse", root.SelectAttrValue("xmlns", ""))
	assert.Equal(t, "1.00", root.SelectAttrValue("versao", ""))

	inf := root.SelectElement("infDPS")
	require.NotNil(t, inf)
	assert.Equal(t, "DPS355030821122233300018100001000000000000042", inf.SelectAttrValue("Id", ""))
	assert.Equal(t,
		[]string{"tpAmb", "dhEmi", "verAplic", "serie", "nDPS", "dCompet", "tpEmit", "cLocEmi", "prest", "toma", "serv", "valores"},
		childTags(inf))

	assert.Equal(t, "2", inf.SelectElement("tpAmb").Text())
	assert.Equal(t, "2026-03-10T14:05:00-03:00", inf.SelectElement("dhEmi").Text())
	assert.Equal(t, "zapflow-1.4.0", inf.SelectElement("verAplic").Text())
	assert.Equal(t, "1", inf.SelectElement("serie").Text())
	assert.Equal(t, "42", inf.SelectElement("nDPS").Text())
	assert.Equal(t, "2026-03-10", inf.SelectElement("dCompet").Text())
	assert.Equal(t, "3550308", inf.SelectElement("cLocEmi").Text())

	assert.Equal(t, "11222333000181", inf.FindElement("prest/CNPJ").Text())
	assert.Equal(t, "1234567", inf.FindElement("prest/IM").Text())
	assert.Equal(t, "1", inf.FindElement("prest/regTrib/opSimpNac").Text())
	assert.Nil(t, inf.FindElement("prest/regTrib/regApTribSN"))

	assert.Equal(t, "149.90", inf.FindElement("valores/vServPrest/vServ").Text())
	assert.Equal(t, "0", inf.FindElement("valores/trib/totTrib/indTotTrib").Text())
}

// ──────────────────────────────────────────────────────────────────────────────
// O tipo do tomador escolhe o conjunto de códigos/alíquota e o elemento CPF/CNPJ.
// ──────────────────────────────────────────────────────────────────────────────

func TestBuild_PersonTypeBranching(t *testing.T) {
	base := nfse.DPSBuildContext{
		AmountCents: 5000,
		Config:      issuerConfig(),
		Sequence:    7,
		EmittedAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	t.Run("pessoa física", func(t *testing.T) {
		ctx := base
		ctx.Payer = classify(t, "529.982.247-25")
		inf := buildDoc(t, &ctx).SelectElement("infDPS")

		assert.Equal(t, "52998224725", inf.FindElement("toma/CPF").Text())
		assert.Nil(t, inf.FindElement("toma/CNPJ"))
		assert.Equal(t, "010502", inf.FindElement("serv/cServ/cTribNac").Text())
		assert.Equal(t, "001", inf.FindElement("serv/cServ/cTribMun").Text())
		assert.Nil(t, inf.FindElement("serv/cServ/cNBS"))
		assert.Equal(t, "3.50", inf.FindElement("valores/trib/tribMun/pAliq").Text())
	})

	t.Run("pessoa jurídica", func(t *testing.T) {
		ctx := base
		ctx.Payer = classify(t, "11.222.333/0001-81")
		inf := buildDoc(t, &ctx).SelectElement("infDPS")

		assert.Equal(t, "11222333000181", inf.FindElement("toma/CNPJ").Text())
		assert.Nil(t, inf.FindElement("toma/CPF"))
		assert.Equal(t, "010501", inf.FindElement("serv/cServ/cTribNac").Text())
		assert.Nil(t, inf.FindElement("serv/cServ/cTribMun"))
		assert.Equal(t, "115022000", inf.FindElement("serv/cServ/cNBS").Text())
		assert.Equal(t, "2.00", inf.FindElement("valores/trib/tribMun/pAliq").Text())
	})
}

func TestBuild_OmitsExemptMunicipalRegistration(t *testing.T) {
	cfg := issuerConfig()
	cfg.MunicipalRegistration = "isento"
	cfg.SimplesNacional = 3
	cfg.SimplesRegime = 1

	inf := buildDoc(t, &nfse.DPSBuildContext{
		AmountCents: 100,
		Payer:       classify(t, "529.982.247-25"),
		Config:      cfg,
		Sequence:    1,
		EmittedAt:   time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC),
	}).SelectElement("infDPS")

	assert.Nil(t, inf.FindElement("prest/IM"))
	assert.Equal(t, []string{"opSimpNac", "regApTribSN", "regEspTrib"}, childTags(inf.FindElement("prest/regTrib")))
	assert.Equal(t, "3.50", inf.FindElement("valores/trib/totTrib/pTotTribSN").Text())
}

func TestBuild_CompetenceUsesBrasiliaDate(t *testing.T) {
	inf := buildDoc(t, &nfse.DPSBuildContext{
		AmountCents: 100,
		Payer:       classify(t, "529.982.247-25"),
		Config:      issuerConfig(),
		Sequence:    1,
		EmittedAt:   time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC),
	}).SelectElement("infDPS")

	assert.Equal(t, "2026-03-10T23:30:00-03:00", inf.SelectElement("dhEmi").Text())
	assert.Equal(t, "2026-03-10", inf.SelectElement("dCompet").Text())
}

func TestBuild_RejectsUnclassifiedPayer(t *testing.T) {
	_, err := nfse.NewXMLBuilderService("v1").Build(&nfse.DPSBuildContext{
		AmountCents: 100,
		Payer:       &domnfse.Payer{TaxID: "123"},
		Config:      issuerConfig(),
		Sequence:    1,
		EmittedAt:   time.Now(),
	})
	assert.Error(t, err)
}

func TestBuildCancellation(t *testing.T) {
	key := "35503082112223330001810000000000000420000000000001"
	require.Len(t, key, 50)

	out, err := nfse.NewXMLBuilderService("v1").BuildCancellation(&nfse.CancellationContext{
		AccessKey: key,
		Reason:    "Cobrança estornada a pedido do cliente",
		Config:    issuerConfig(),
		At:        time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	inf := doc.Root().SelectElement("infPedReg")
	require.NotNil(t, inf)

	assert.Equal(t, "PRE"+key+"101101001", inf.SelectAttrValue("Id", ""))
	assert.Equal(t,
		[]string{"tpAmb", "verAplic", "dhEvento", "CNPJAutor", "chNFSe", "nPedRegEvento", "e101101"},
		childTags(inf))
	assert.Equal(t, "2026-04-02T12:00:00-03:00", inf.SelectElement("dhEvento").Text())
	assert.Equal(t, "Cancelamento de NFS-e", inf.FindElement("e101101/xDesc").Text())
	assert.Equal(t, "9", inf.FindElement("e101101/cMotivo").Text())
	assert.Equal(t, "Cobrança estornada a pedido do cliente", inf.FindElement("e101101/xMotivo").Text())

	_, err = nfse.NewXMLBuilderService("v1").BuildCancellation(&nfse.CancellationContext{
		AccessKey: "123", Reason: "motivo qualquer longo", Config: issuerConfig(), At: time.Now(),
	})
	assert.Error(t, err)
}
