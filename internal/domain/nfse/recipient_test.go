package nfse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
)

// La selección del tomador es total y exclusiva sobre la cadena de dígitos limpia.
func TestNewRecipient_SeleccionExclusiva(t *testing.T) {
	for n := 0; n <= 20; n++ {
		doc := strings.Repeat("7", n)
		r := nfse.NewRecipient(doc)

		switch n {
		case 14:
			assert.Equal(t, nfse.RecipientCNPJ, r.Kind)
			assert.Equal(t, doc, r.CNPJ())
			assert.Empty(t, r.CPF())
		case 11:
			assert.Equal(t, nfse.RecipientCPF, r.Kind)
			assert.Equal(t, doc, r.CPF())
			assert.Empty(t, r.CNPJ())
		default:
			assert.Equal(t, nfse.RecipientAnonymous, r.Kind, "longitud %d debe ser anónimo", n)
			assert.Empty(t, r.CNPJ())
			assert.Empty(t, r.CPF())
		}
		assert.False(t, r.CNPJ() != "" && r.CPF() != "", "nunca ambos documentos")
	}
}

func TestNewRecipient_LimpiaPuntuacion(t *testing.T) {
	r := nfse.NewRecipient("11.222.333/0001-81")
	assert.Equal(t, nfse.RecipientCNPJ, r.Kind)
	assert.Equal(t, "11222333000181", r.CNPJ())
	assert.NoError(t, r.Validate())

	r = nfse.NewRecipient("529.982.247-25")
	assert.Equal(t, nfse.RecipientCPF, r.Kind)
	assert.Equal(t, "52998224725", r.CPF())
	assert.NoError(t, r.Validate())
}

func TestNewRecipient_AnonimoSiempreValido(t *testing.T) {
	r := nfse.NewRecipient("")
	assert.Equal(t, "anonymous", r.Kind.String())
	assert.NoError(t, r.Validate())
}

func TestMessage_String(t *testing.T) {
	m := nfse.Message{Code: "E160", Message: "CNPJ do tomador inválido", Correction: "Informe um CNPJ válido"}
	assert.Equal(t, "E160 - CNPJ do tomador inválido (Correção: Informe um CNPJ válido)", m.String())
	assert.Equal(t, "Falha", nfse.Message{Message: "Falha"}.String())
}

func TestResult_FirstError(t *testing.T) {
	r := nfse.Failure(nfse.Message{Code: "A1", Message: "primeiro"}, nfse.Message{Code: "A2", Message: "segundo"})
	assert.True(t, r.IsFailure())
	assert.Equal(t, "A1 - primeiro", r.FirstError())
	assert.Empty(t, nfse.Pending("123", "1", "").FirstError())
}
