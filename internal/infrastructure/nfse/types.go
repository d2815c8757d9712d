// Package nfse implementa la construcción, transmisión y normalización de NFS-e:
// lote ABRASF 2.04 (SOAP municipal) y DPS JSON (API del agregador nacional).
package nfse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// DPSBuildContext datos necesarios para construir la DPS/RPS de una nota.
type DPSBuildContext struct {
	Invoice *entity.Invoice
	Client  *entity.Client // Opcional: sin tomador se emite como consumidor anónimo
	Config  *entity.FiscalConfig

	// ElementID Id del bloque de información firmado. Vacío ⇒ "RPS<numero>".
	ElementID string
	// LotNumber número del lote ABRASF. Vacío ⇒ número del RPS.
	LotNumber string
	// IssuedAt fecha/hora de emisión (dhEmi). Cero ⇒ Invoice.IssuedAt.
	IssuedAt time.Time
}

// BuiltDPS documento sin firmar más los datos derivados que el orquestador necesita.
type BuiltDPS struct {
	Payload   []byte
	ElementID string
	LotNumber string
	Amounts   domnfse.Amounts
	Recipient domnfse.Recipient
	// Warnings avisos no bloqueantes (dígito verificador del tomador, municipio por defecto).
	Warnings []string
}

// ElementIDFromKey deriva un Id XML válido (NCName) de la clave de idempotencia de la nota.
func ElementIDFromKey(key string) string {
	return "R" + strings.ReplaceAll(key, "-", "")
}

// party datos normalizados del tomador.
type party struct {
	Recipient     domnfse.Recipient
	Name          string
	Email         string
	Street        string
	Number        string
	Neighborhood  string
	PostalCode    string
	MunicipalCode string
	UF            string
}

// prepared resultado común de validación y normalización de ambos builders.
type prepared struct {
	inv       *entity.Invoice
	cfg       *entity.FiscalConfig
	mun       string // municipio del prestador (o el de respaldo)
	toma      party
	amounts   domnfse.Amounts
	elementID string
	lotNumber string
	issuedAt  time.Time
	warnings  []string
}

func prepare(ctx *DPSBuildContext, fallbackMunicipalCode string) (*prepared, error) {
	if ctx == nil || ctx.Invoice == nil || ctx.Config == nil {
		return nil, fmt.Errorf("nfse: faltan invoice o configuración fiscal en el contexto")
	}
	if fallbackMunicipalCode == "" {
		fallbackMunicipalCode = pkgnfse.DefaultMunicipalCode
	}
	p := &prepared{inv: ctx.Invoice, cfg: ctx.Config}

	amounts, err := domnfse.CalculateISS(ctx.Invoice.ServiceAmount, ctx.Config.ISSRate)
	if err != nil {
		return nil, err
	}
	p.amounts = amounts

	providerMun := pkgnfse.OnlyDigits(ctx.Config.MunicipalCode)
	if providerMun == "" {
		providerMun = fallbackMunicipalCode
	}
	p.mun = providerMun
	p.toma, p.warnings = normalizeClient(ctx.Client, providerMun)
	if pkgnfse.OnlyDigits(ctx.Config.MunicipalCode) == "" {
		p.warnings = append(p.warnings, "prestador sin código de municipio; se usa "+fallbackMunicipalCode)
	}

	p.elementID = ctx.ElementID
	if p.elementID == "" {
		p.elementID = "RPS" + strconv.FormatInt(ctx.Invoice.RPSNumber, 10)
	}
	p.lotNumber = ctx.LotNumber
	if p.lotNumber == "" {
		p.lotNumber = strconv.FormatInt(ctx.Invoice.RPSNumber, 10)
	}
	p.issuedAt = ctx.IssuedAt
	if p.issuedAt.IsZero() {
		p.issuedAt = ctx.Invoice.IssuedAt
	}
	return p, nil
}

func (p *prepared) serie() string {
	if p.inv.RPSSeries == "" {
		return "1"
	}
	return p.inv.RPSSeries
}

func (p *prepared) description() string {
	if strings.TrimSpace(p.inv.Description) == "" {
		return "Prestação de serviços"
	}
	return p.inv.Description
}

// normalizeClient aplica los valores por defecto de dirección y selecciona la variante del tomador.
// El municipio del tomador cae al del prestador cuando falta.
func normalizeClient(c *entity.Client, providerMunicipalCode string) (party, []string) {
	if c == nil {
		c = &entity.Client{}
	}
	var warnings []string
	r := domnfse.NewRecipient(c.TaxID)
	if err := r.Validate(); err != nil {
		warnings = append(warnings, "documento del tomador con dígito verificador inválido: "+err.Error())
	}

	mun := pkgnfse.OnlyDigits(c.MunicipalCode)
	if mun == "" {
		mun = providerMunicipalCode
	}
	return party{
		Recipient:     r,
		Name:          orDefault(c.Name, pkgnfse.PlaceholderName),
		Email:         strings.TrimSpace(c.Email),
		Street:        orDefault(c.Street, pkgnfse.PlaceholderStreet),
		Number:        orDefault(c.Number, pkgnfse.PlaceholderNumber),
		Neighborhood:  orDefault(c.Neighborhood, pkgnfse.PlaceholderNeighborhood),
		PostalCode:    pkgnfse.OnlyDigits(c.PostalCode),
		MunicipalCode: mun,
		UF:            pkgnfse.UFFromMunicipalCode(mun),
	}, warnings
}

func orDefault(v, dflt string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return dflt
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
