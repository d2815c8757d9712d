package nfse_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse/signer"
)

func buildContext(taxID string) *nfse.DPSBuildContext {
	return &nfse.DPSBuildContext{
		Invoice: &entity.Invoice{
			ID:            "inv-1",
			ServiceAmount: decimal.RequireFromString("1000.00"),
			Description:   "Consultoria em TI",
			RPSNumber:     42,
			RPSSeries:     "A",
			IssuedAt:      time.Date(2026, 10, 16, 10, 30, 0, 0, time.FixedZone("BRT", -3*3600)),
		},
		Client: &entity.Client{
			TaxID:         taxID,
			Name:          "Cliente Exemplo",
			Email:         "cliente@example.com",
			Street:        "Av. Paulista",
			Number:        "1000",
			Neighborhood:  "Bela Vista",
			PostalCode:    "01310-100",
			MunicipalCode: "3550308",
		},
		Config: &entity.FiscalConfig{
			CNPJ:                  "11.222.333/0001-81",
			CompanyName:           "Prestadora Ltda",
			MunicipalRegistration: "1234567",
			MunicipalCode:         "3304557",
			ISSRate:               decimal.NewFromInt(2),
			Environment:           entity.EnvironmentSandbox,
			Provider:              entity.ProviderABRASF,
			ServiceTaxCode:        "01.07",
		},
		ElementID: "Rabc123",
	}
}

func parseXML(t *testing.T, b []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(b))
	return doc.Root()
}

func TestXMLBuilder_ValoresYId(t *testing.T) {
	built, err := nfse.NewXMLBuilderService("").Build(buildContext("11.222.333/0001-81"))
	require.NoError(t, err)

	root := parseXML(t, built.Payload)
	assert.Equal(t, "EnviarLoteRpsSincronoEnvio", root.Tag)

	inf := root.FindElement("//InfDeclaracaoPrestacaoServico")
	require.NotNil(t, inf)
	assert.Equal(t, "Rabc123", inf.SelectAttrValue("Id", ""))
	assert.Equal(t, built.ElementID, inf.SelectAttrValue("Id", ""))

	assert.Equal(t, "1000.00", inf.FindElement("Servico/Valores/ValorServicos").Text())
	assert.Equal(t, "20.00", inf.FindElement("Servico/Valores/ValorIss").Text())
	assert.Equal(t, "0.0200", inf.FindElement("Servico/Valores/Aliquota").Text())
	assert.Equal(t, "3304557", inf.FindElement("Servico/CodigoMunicipio").Text())
	assert.Equal(t, "42", inf.FindElement("Rps/IdentificacaoRps/Numero").Text())
	assert.Equal(t, "2026-10-16", inf.FindElement("Competencia").Text())
	assert.Equal(t, "11222333000181", inf.FindElement("Prestador/CpfCnpj/Cnpj").Text())

	assert.Equal(t, "980.00", built.Amounts.Net.StringFixed(2))
}

func TestXMLBuilder_TomadorExclusivo(t *testing.T) {
	cases := []struct {
		name    string
		taxID   string
		cnpj    bool
		cpf     bool
		anonimo bool
	}{
		{"cnpj", "11.222.333/0001-81", true, false, false},
		{"cpf", "529.982.247-25", false, true, false},
		{"anonimo", "123", false, false, true},
		{"vacío", "", false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			built, err := nfse.NewXMLBuilderService("").Build(buildContext(tc.taxID))
			require.NoError(t, err)
			toma := parseXML(t, built.Payload).FindElement("//TomadorServico")
			require.NotNil(t, toma)

			assert.Equal(t, tc.cnpj, toma.FindElement("IdentificacaoTomador/CpfCnpj/Cnpj") != nil)
			assert.Equal(t, tc.cpf, toma.FindElement("IdentificacaoTomador/CpfCnpj/Cpf") != nil)
			assert.Equal(t, tc.anonimo, toma.FindElement("IdentificacaoTomador") == nil)
			assert.Equal(t, tc.anonimo, built.Recipient.Kind == domnfse.RecipientAnonymous)
		})
	}
}

func TestXMLBuilder_DireccionPorDefecto(t *testing.T) {
	ctx := buildContext("")
	ctx.Client = nil
	ctx.Config.MunicipalCode = ""

	built, err := nfse.NewXMLBuilderService("").Build(ctx)
	require.NoError(t, err)
	toma := parseXML(t, built.Payload).FindElement("//TomadorServico")
	assert.Equal(t, "NAO INFORMADO", toma.FindElement("Endereco/Endereco").Text())
	assert.Equal(t, "S/N", toma.FindElement("Endereco/Numero").Text())
	assert.Equal(t, "CENTRO", toma.FindElement("Endereco/Bairro").Text())
	assert.Equal(t, "3550308", toma.FindElement("Endereco/CodigoMunicipio").Text())
	assert.Equal(t, "SP", toma.FindElement("Endereco/Uf").Text())
	assert.NotEmpty(t, built.Warnings)
}

func TestXMLBuilder_MunicipioDeRespaldoConfigurable(t *testing.T) {
	ctx := buildContext("")
	ctx.Client = nil
	ctx.Config.MunicipalCode = ""

	built, err := nfse.NewXMLBuilderService("4106902").Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4106902", parseXML(t, built.Payload).FindElement("//Servico/CodigoMunicipio").Text())
}

func TestXMLBuilder_EscapaTexto(t *testing.T) {
	ctx := buildContext("")
	ctx.Invoice.Description = "Suporte <premium> & manutenção"
	built, err := nfse.NewXMLBuilderService("").Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(built.Payload), "Suporte &lt;premium&gt; &amp; manutenção")
	assert.Equal(t, "Suporte <premium> & manutenção", parseXML(t, built.Payload).FindElement("//Discriminacao").Text())
}

func TestXMLBuilder_ContextoIncompleto(t *testing.T) {
	_, err := nfse.NewXMLBuilderService("").Build(&nfse.DPSBuildContext{})
	assert.Error(t, err)

	ctx := buildContext("")
	ctx.Invoice.ServiceAmount = decimal.NewFromInt(-1)
	_, err = nfse.NewJSONBuilderService("").Build(ctx)
	assert.Error(t, err)
}

// El Id firmado es el mismo Id del bloque sin firmar.
func TestXMLBuilder_FirmaReferenciaElId(t *testing.T) {
	built, err := nfse.NewXMLBuilderService("").Build(buildContext("52998224725"))
	require.NoError(t, err)

	bundle, err := signer.LoadFromP12("signer/testdata/ecnpj.p12", "123456")
	require.NoError(t, err)
	signed, err := signer.NewDigitalSignatureService(signer.DigestSHA1).Sign(built.Payload, built.ElementID, bundle.TLSCertificate())
	require.NoError(t, err)

	root := parseXML(t, signed)
	sig := root.FindElement("//Signature")
	require.NotNil(t, sig)
	ref := sig.FindElement("SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#"+built.ElementID, ref.SelectAttrValue("URI", ""))

	// ABRASF: Signature dentro de Rps, después de InfDeclaracaoPrestacaoServico.
	target := root.FindElement("//InfDeclaracaoPrestacaoServico")
	require.NotNil(t, target)
	assert.Equal(t, "Rps", sig.Parent().Tag)
	assert.Same(t, target.Parent(), sig.Parent())

	_, err = signer.Verify(signed)
	assert.NoError(t, err)
}

func TestJSONBuilder_Forma(t *testing.T) {
	built, err := nfse.NewJSONBuilderService("").Build(buildContext("11.222.333/0001-81"))
	require.NoError(t, err)

	body := string(built.Payload)
	assert.True(t, strings.HasPrefix(body, `{"infDPS":{`))
	assert.Contains(t, body, `"vServ":1000.00`)
	assert.Contains(t, body, `"vISS":20.00`)
	assert.Contains(t, body, `"vLiq":980.00`)
	assert.Contains(t, body, `"pAliq":0.02`)

	var doc struct {
		InfDPS struct {
			TpAmb int                    `json:"tpAmb"`
			NDPS  string                 `json:"nDPS"`
			DhEmi string                 `json:"dhEmi"`
			Toma  map[string]interface{} `json:"toma"`
		} `json:"infDPS"`
	}
	require.NoError(t, json.Unmarshal(built.Payload, &doc))
	assert.Equal(t, 2, doc.InfDPS.TpAmb)
	assert.Equal(t, "42", doc.InfDPS.NDPS)
	assert.Equal(t, "2026-10-16T10:30:00-03:00", doc.InfDPS.DhEmi)
	assert.Equal(t, "11222333000181", doc.InfDPS.Toma["CNPJ"])
	assert.NotContains(t, doc.InfDPS.Toma, "CPF")
}

func TestJSONBuilder_Ambiente(t *testing.T) {
	ctx := buildContext("52998224725")
	ctx.Config.Environment = entity.EnvironmentProduction
	built, err := nfse.NewJSONBuilderService("").Build(ctx)
	require.NoError(t, err)

	var doc map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(built.Payload, &doc))
	assert.EqualValues(t, 1, doc["infDPS"]["tpAmb"])
	toma := doc["infDPS"]["toma"].(map[string]interface{})
	assert.Equal(t, "52998224725", toma["CPF"])
	assert.NotContains(t, toma, "CNPJ")
}

func TestElementIDFromKey(t *testing.T) {
	assert.Equal(t, "R0f8fad5bd9cb469fa16570867728950e", nfse.ElementIDFromKey("0f8fad5b-d9cb-469f-a165-70867728950e"))
}

func TestXMLBuilder_ConsultaLote(t *testing.T) {
	b := nfse.NewXMLBuilderService("")
	cfg := buildContext("").Config

	out, err := b.BuildConsultaLote(cfg, "PROT-987")
	require.NoError(t, err)

	root := parseXML(t, out)
	assert.Equal(t, "ConsultarLoteRpsEnvio", root.Tag)
	assert.Equal(t, "11222333000181", root.FindElement("./Prestador/CpfCnpj/Cnpj").Text())
	assert.Equal(t, "1234567", root.FindElement("./Prestador/InscricaoMunicipal").Text())
	assert.Equal(t, "PROT-987", root.FindElement("./Protocolo").Text())

	_, err = b.BuildConsultaLote(cfg, "")
	assert.Error(t, err)
}
