package nfse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// XMLBuilderService construye el lote ABRASF 2.04 EnviarLoteRpsSincronoEnvio (sin firma).
type XMLBuilderService struct {
	fallbackMunicipalCode string
}

// NewXMLBuilderService crea el servicio. fallbackMunicipalCode vacío ⇒ pkgnfse.DefaultMunicipalCode.
func NewXMLBuilderService(fallbackMunicipalCode string) *XMLBuilderService {
	return &XMLBuilderService{fallbackMunicipalCode: fallbackMunicipalCode}
}

// Build genera el documento. La firma se agrega después sobre InfDeclaracaoPrestacaoServico
// (Id = BuiltDPS.ElementID).
func (s *XMLBuilderService) Build(ctx *DPSBuildContext) (*BuiltDPS, error) {
	p, err := prepare(ctx, s.fallbackMunicipalCode)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	w := &xmlWriter{enc: enc}

	w.open("EnviarLoteRpsSincronoEnvio", attr("xmlns", pkgnfse.NamespaceABRASF))
	w.open("LoteRps", attr("Id", "L"+p.lotNumber), attr("versao", pkgnfse.VersionABRASF))
	w.text("NumeroLote", p.lotNumber)
	s.writePrestador(w, p)
	w.text("QuantidadeRps", "1")
	w.open("ListaRps")
	w.open("Rps")

	// El bloque firmado declara el namespace para que su forma canónica no dependa del lote.
	w.open("InfDeclaracaoPrestacaoServico", attr("Id", p.elementID), attr("xmlns", pkgnfse.NamespaceABRASF))
	w.open("Rps")
	w.open("IdentificacaoRps")
	w.text("Numero", strconv.FormatInt(p.inv.RPSNumber, 10))
	w.text("Serie", p.serie())
	w.text("Tipo", pkgnfse.TipoRPS)
	w.close("IdentificacaoRps")
	w.text("DataEmissao", p.issuedAt.Format("2006-01-02"))
	w.text("Status", pkgnfse.StatusRPSNormal)
	w.close("Rps")
	w.text("Competencia", p.issuedAt.Format("2006-01-02"))
	s.writeServico(w, p)
	s.writePrestador(w, p)
	s.writeTomador(w, p)
	w.text("OptanteSimplesNacional", pkgnfse.Nao)
	w.text("IncentivoFiscal", pkgnfse.Nao)
	w.close("InfDeclaracaoPrestacaoServico")

	w.close("Rps")
	w.close("ListaRps")
	w.close("LoteRps")
	w.close("EnviarLoteRpsSincronoEnvio")

	if w.err != nil {
		return nil, w.err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return &BuiltDPS{
		Payload:   buf.Bytes(),
		ElementID: p.elementID,
		LotNumber: p.lotNumber,
		Amounts:   p.amounts,
		Recipient: p.toma.Recipient,
		Warnings:  p.warnings,
	}, nil
}

// BuildConsultaLote genera ConsultarLoteRpsEnvio para consultar el lote por protocolo.
func (s *XMLBuilderService) BuildConsultaLote(cfg *entity.FiscalConfig, protocol string) ([]byte, error) {
	if cfg == nil || protocol == "" {
		return nil, fmt.Errorf("nfse: consulta de lote requiere configuración fiscal y protocolo")
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	w := &xmlWriter{enc: enc}

	w.open("ConsultarLoteRpsEnvio", attr("xmlns", pkgnfse.NamespaceABRASF))
	s.writePrestador(w, &prepared{cfg: cfg})
	w.text("Protocolo", protocol)
	w.close("ConsultarLoteRpsEnvio")

	if w.err != nil {
		return nil, w.err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *XMLBuilderService) writeServico(w *xmlWriter, p *prepared) {
	w.open("Servico")
	w.open("Valores")
	w.text("ValorServicos", money(p.amounts.Service))
	w.text("ValorIss", money(p.amounts.ISS))
	w.text("Aliquota", domnfse.RateFraction(p.amounts.Rate).StringFixed(4))
	w.close("Valores")
	w.text("IssRetido", pkgnfse.Nao)
	w.text("ItemListaServico", p.cfg.ServiceTaxCode)
	w.text("Discriminacao", p.description())
	w.text("CodigoMunicipio", p.mun)
	w.text("ExigibilidadeISS", pkgnfse.ExigibilidadeExigivel)
	w.text("MunicipioIncidencia", p.mun)
	w.close("Servico")
}

func (s *XMLBuilderService) writePrestador(w *xmlWriter, p *prepared) {
	w.open("Prestador")
	w.open("CpfCnpj")
	w.text("Cnpj", pkgnfse.OnlyDigits(p.cfg.CNPJ))
	w.close("CpfCnpj")
	if im := pkgnfse.OnlyDigits(p.cfg.MunicipalRegistration); im != "" {
		w.text("InscricaoMunicipal", im)
	}
	w.close("Prestador")
}

// writeTomador: solo uno de Cnpj/Cpf; el consumidor anónimo no lleva IdentificacaoTomador.
func (s *XMLBuilderService) writeTomador(w *xmlWriter, p *prepared) {
	t := p.toma
	w.open("TomadorServico")
	if t.Recipient.Kind != domnfse.RecipientAnonymous {
		w.open("IdentificacaoTomador")
		w.open("CpfCnpj")
		if cnpj := t.Recipient.CNPJ(); cnpj != "" {
			w.text("Cnpj", cnpj)
		} else {
			w.text("Cpf", t.Recipient.CPF())
		}
		w.close("CpfCnpj")
		w.close("IdentificacaoTomador")
	}
	w.text("RazaoSocial", t.Name)
	w.open("Endereco")
	w.text("Endereco", t.Street)
	w.text("Numero", t.Number)
	w.text("Bairro", t.Neighborhood)
	w.text("CodigoMunicipio", t.MunicipalCode)
	if t.UF != "" {
		w.text("Uf", t.UF)
	}
	if t.PostalCode != "" {
		w.text("Cep", t.PostalCode)
	}
	w.close("Endereco")
	if t.Email != "" {
		w.open("Contato")
		w.text("Email", t.Email)
		w.close("Contato")
	}
	w.close("TomadorServico")
}

// xmlWriter acumula el primer error del encoder para no chequear cada token.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

func (w *xmlWriter) open(local string, attrs ...xml.Attr) {
	w.token(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
}

func (w *xmlWriter) close(local string) {
	w.token(xml.EndElement{Name: xml.Name{Local: local}})
}

func (w *xmlWriter) text(local, value string) {
	w.open(local)
	w.token(xml.CharData(value))
	w.close(local)
}
