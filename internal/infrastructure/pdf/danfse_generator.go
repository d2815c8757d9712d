// Package pdf genera la representação gráfica de la NFS-e (DANFSe) con Maroto v2.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  PRESTADOR: Razón social + CNPJ + IM │ NFS-e Nº + Código     │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOMADOR: Nombre + CPF/CNPJ + dirección                      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  DISCRIMINAÇÃO DOS SERVIÇOS                                  │
//	│  ─────────────────────────────────────────────────────────  │
//	│  VALORES: Serviço / Alíquota / ISS / Líquido                 │
//	│  ─────────────────────────────────────────────────────────  │
//	│  QR (link de la NFS-e) + leyenda                             │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 92, Blue: 75}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// DANFSeGenerator implementa billing.DANFSePDFGenerator usando Maroto v2.
type DANFSeGenerator struct{}

// NewDANFSeGenerator construye el generador.
func NewDANFSeGenerator() *DANFSeGenerator { return &DANFSeGenerator{} }

// GenerateDANFSe genera el PDF de una nota autorizada y devuelve sus bytes.
func (g *DANFSeGenerator) GenerateDANFSe(_ context.Context, data *entity.EmissionData) ([]byte, error) {
	if data == nil || data.Invoice == nil || data.Config == nil {
		return nil, fmt.Errorf("pdf: faltan nota o configuración fiscal")
	}
	inv, cfg := data.Invoice, data.Config
	client := data.Client
	if client == nil {
		client = &entity.Client{}
	}

	amounts, err := domnfse.CalculateISS(inv.ServiceAmount, cfg.ISSRate)
	if err != nil {
		return nil, fmt.Errorf("pdf: calcular ISS: %w", err)
	}

	mcfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("DANFSe - NFS-e "+inv.NFSeNumber, true).
		WithAuthor(cfg.CompanyName, true).
		Build()

	m := maroto.New(mcfg)

	m.AddRows(headerRow(inv, cfg))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(tomadorRow(client))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(serviceRows(inv, cfg)...)
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(valuesRow(amounts))
	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(inv)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: prestador (izq) y número de la NFS-e + código de verificación (der).
func headerRow(inv *entity.Invoice, cfg *entity.FiscalConfig) core.Row {
	return row.New(22).Add(
		col.New(7).Add(
			text.New(nonEmpty(cfg.CompanyName, "Prestador"), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CNPJ: "+pkgnfse.FormatTaxID(cfg.CNPJ), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
			text.New("Inscrição Municipal: "+nonEmpty(cfg.MunicipalRegistration, "—"), props.Text{
				Size: 8, Top: 14, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("NOTA FISCAL DE SERVIÇOS ELETRÔNICA", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New("Nº "+nonEmpty(inv.NFSeNumber, "—"), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Código de verificação: "+nonEmpty(inv.AuthCode, "—"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
			text.New("Emissão: "+inv.IssuedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 18, Color: colorGray,
			}),
		),
	)
}

func tomadorRow(c *entity.Client) core.Row {
	doc := "Consumidor não identificado"
	if r := domnfse.NewRecipient(c.TaxID); r.Kind != domnfse.RecipientAnonymous {
		doc = strings.ToUpper(r.Kind.String()) + ": " + pkgnfse.FormatTaxID(r.Document())
	}
	addr := strings.Join(nonEmptyAll(c.Street, c.Number, c.Neighborhood, c.PostalCode), ", ")

	return row.New(18).Add(
		col.New(12).Add(
			text.New("TOMADOR DO SERVIÇO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(c.Name, pkgnfse.PlaceholderName), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("%s   |   Email: %s", doc, nonEmpty(c.Email, "—")), props.Text{
				Size: 8, Top: 11, Color: colorGray,
			}),
			text.New("Endereço: "+nonEmpty(addr, "—"), props.Text{
				Size: 8, Top: 15, Color: colorGray,
			}),
		),
	)
}

func serviceRows(inv *entity.Invoice, cfg *entity.FiscalConfig) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("DISCRIMINAÇÃO DOS SERVIÇOS", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}
	for _, chunk := range splitEvery(nonEmpty(inv.Description, "Prestação de serviços"), 110) {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 8, Top: 1, Left: 2}),
		)))
	}
	rows = append(rows, row.New(6).Add(col.New(12).Add(
		text.New(fmt.Sprintf("Código do serviço: %s   |   Município: %s",
			nonEmpty(cfg.ServiceTaxCode, "—"), nonEmpty(cfg.MunicipalCode, "—"),
		), props.Text{Size: 7, Top: 2, Color: colorGray}),
	)))
	return rows
}

// valuesRow: bloque de valores alineado a la derecha.
func valuesRow(a domnfse.Amounts) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	return row.New(26).Add(
		col.New(5),
		col.New(4).Add(
			label("Valor dos serviços:"),
			label("Alíquota ISS:"),
			label("Valor do ISS:"),
			text.New("VALOR LÍQUIDO:", props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2,
			}),
		),
		col.New(3).Add(
			value(pkgnfse.FormatBRL(a.Service)),
			value(a.Rate.String()+"%"),
			value(pkgnfse.FormatBRL(a.ISS)),
			text.New(pkgnfse.FormatBRL(a.Net), props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1,
			}),
		),
	)
}

// footerRows: QR con el link de la NFS-e (si existe) + leyenda.
func footerRows(inv *entity.Invoice) []core.Row {
	var rows []core.Row
	if inv.PDFURL != "" {
		rows = append(rows, row.New(45).Add(
			col.New(4).Add(code.NewQr(inv.PDFURL, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("Consulte a autenticidade desta NFS-e\nno portal da prefeitura ou do emissor nacional.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New(inv.PDFURL, props.Text{Size: 7, Top: 16, Left: 3, Color: colorGray}),
			),
		))
	}
	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New(
			"Documento auxiliar da NFS-e. A validade jurídica é da nota emitida no ambiente "+
				"da prefeitura ou do emissor nacional, identificada pelo número e código de verificação acima.",
			props.Text{Size: 6.5, Color: colorGray, Top: 2},
		),
	)))
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func nonEmptyAll(ss ...string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitEvery divide s en trozos de max n runas.
func splitEvery(s string, n int) []string {
	var parts []string
	r := []rune(s)
	for len(r) > n {
		parts = append(parts, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}
