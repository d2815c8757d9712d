package pdf_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/pdf"
)

func authorizedData() *entity.EmissionData {
	return &entity.EmissionData{
		Invoice: &entity.Invoice{
			ID:            "inv-1",
			ServiceAmount: decimal.RequireFromString("1000.00"),
			Description:   "Consultoria em arquitetura de software",
			IssuedAt:      time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC),
			Status:        entity.InvoiceStatusAuthorized,
			NFSeNumber:    "2026000001",
			AuthCode:      "XYZ9",
			PDFURL:        "https://nfse.example/2026000001",
		},
		Client: &entity.Client{TaxID: "52998224725", Name: "Maria Souza", Street: "Rua A", Number: "10"},
		Config: &entity.FiscalConfig{
			CNPJ:        "11222333000181",
			CompanyName: "Empresa Teste Ltda",
			ISSRate:     decimal.NewFromInt(2),
		},
	}
}

func TestDANFSeGenerator_GeneraPDF(t *testing.T) {
	out, err := pdf.NewDANFSeGenerator().GenerateDANFSe(context.Background(), authorizedData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestDANFSeGenerator_SinTomadorNiLink(t *testing.T) {
	data := authorizedData()
	data.Client = nil
	data.Invoice.PDFURL = ""

	out, err := pdf.NewDANFSeGenerator().GenerateDANFSe(context.Background(), data)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestDANFSeGenerator_DatosIncompletos(t *testing.T) {
	_, err := pdf.NewDANFSeGenerator().GenerateDANFSe(context.Background(), &entity.EmissionData{})
	assert.Error(t, err)
}
