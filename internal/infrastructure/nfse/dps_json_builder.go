package nfse

import (
	"encoding/json"
	"strconv"

	domnfse "github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// Forma JSON de la DPS esperada por la API del agregador nacional.
type dpsEnvelope struct {
	InfDPS infDPS `json:"infDPS"`
}

type infDPS struct {
	ID      string     `json:"Id"`
	TpAmb   int        `json:"tpAmb"`
	DhEmi   string     `json:"dhEmi"`
	Serie   string     `json:"serie"`
	NDPS    string     `json:"nDPS"`
	CLocEmi string     `json:"cLocEmi"`
	Prest   dpsPrest   `json:"prest"`
	Toma    dpsToma    `json:"toma"`
	Serv    dpsServ    `json:"serv"`
	Valores dpsValores `json:"valores"`
}

type dpsPrest struct {
	CNPJ  string `json:"CNPJ"`
	IM    string `json:"IM,omitempty"`
	XNome string `json:"xNome,omitempty"`
}

// dpsToma lleva a lo sumo uno de CNPJ/CPF.
type dpsToma struct {
	CNPJ  string      `json:"CNPJ,omitempty"`
	CPF   string      `json:"CPF,omitempty"`
	XNome string      `json:"xNome"`
	Email string      `json:"email,omitempty"`
	End   dpsEndereco `json:"end"`
}

type dpsEndereco struct {
	XLgr    string `json:"xLgr"`
	Nro     string `json:"nro"`
	XBairro string `json:"xBairro"`
	CMun    string `json:"cMun"`
	UF      string `json:"UF,omitempty"`
	CEP     string `json:"CEP,omitempty"`
}

type dpsServ struct {
	CTribNac      string `json:"cTribNac,omitempty"`
	XDescServ     string `json:"xDescServ"`
	CLocPrestacao string `json:"cLocPrestacao"`
}

// Montos como json.Number para serializar con exactamente dos decimales.
type dpsValores struct {
	VServ json.Number `json:"vServ"`
	VISS  json.Number `json:"vISS"`
	VLiq  json.Number `json:"vLiq"`
	PAliq json.Number `json:"pAliq"`
}

// JSONBuilderService construye la DPS JSON {"infDPS": {...}}.
type JSONBuilderService struct {
	fallbackMunicipalCode string
}

// NewJSONBuilderService crea el servicio. fallbackMunicipalCode vacío ⇒ pkgnfse.DefaultMunicipalCode.
func NewJSONBuilderService(fallbackMunicipalCode string) *JSONBuilderService {
	return &JSONBuilderService{fallbackMunicipalCode: fallbackMunicipalCode}
}

// Build genera el cuerpo JSON. tpAmb: 1 producción, 2 homologación.
func (s *JSONBuilderService) Build(ctx *DPSBuildContext) (*BuiltDPS, error) {
	p, err := prepare(ctx, s.fallbackMunicipalCode)
	if err != nil {
		return nil, err
	}

	tpAmb := pkgnfse.TpAmbHomologacao
	if p.cfg.IsProduction() {
		tpAmb = pkgnfse.TpAmbProducao
	}
	t := p.toma
	doc := dpsEnvelope{InfDPS: infDPS{
		ID:      p.elementID,
		TpAmb:   tpAmb,
		DhEmi:   p.issuedAt.Format("2006-01-02T15:04:05-07:00"),
		Serie:   p.serie(),
		NDPS:    strconv.FormatInt(p.inv.RPSNumber, 10),
		CLocEmi: p.mun,
		Prest: dpsPrest{
			CNPJ:  pkgnfse.OnlyDigits(p.cfg.CNPJ),
			IM:    pkgnfse.OnlyDigits(p.cfg.MunicipalRegistration),
			XNome: p.cfg.CompanyName,
		},
		Toma: dpsToma{
			CNPJ:  t.Recipient.CNPJ(),
			CPF:   t.Recipient.CPF(),
			XNome: t.Name,
			Email: t.Email,
			End: dpsEndereco{
				XLgr:    t.Street,
				Nro:     t.Number,
				XBairro: t.Neighborhood,
				CMun:    t.MunicipalCode,
				UF:      t.UF,
				CEP:     t.PostalCode,
			},
		},
		Serv: dpsServ{
			CTribNac:      p.cfg.ServiceTaxCode,
			XDescServ:     p.description(),
			CLocPrestacao: p.mun,
		},
		Valores: dpsValores{
			VServ: json.Number(money(p.amounts.Service)),
			VISS:  json.Number(money(p.amounts.ISS)),
			VLiq:  json.Number(money(p.amounts.Net)),
			PAliq: json.Number(domnfse.RateFraction(p.amounts.Rate).String()),
		},
	}}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &BuiltDPS{
		Payload:   payload,
		ElementID: p.elementID,
		LotNumber: p.lotNumber,
		Amounts:   p.amounts,
		Recipient: t.Recipient,
		Warnings:  p.warnings,
	}, nil
}
