package nfse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/nfse-emissor/pkg/nfse"
)

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "11222333000181", nfse.OnlyDigits("11.222.333/0001-81"))
	assert.Equal(t, "01310100", nfse.OnlyDigits("01310-100"))
	assert.Equal(t, "", nfse.OnlyDigits("sem documento"))
}

func TestValidateCNPJ(t *testing.T) {
	assert.NoError(t, nfse.ValidateCNPJ("11.222.333/0001-81"))
	assert.NoError(t, nfse.ValidateCNPJ("11222333000181"))
	assert.Error(t, nfse.ValidateCNPJ("11.222.333/0001-82"), "dígito verificador alterado")
	assert.Error(t, nfse.ValidateCNPJ("11111111111111"), "dígitos repetidos")
	assert.Error(t, nfse.ValidateCNPJ("1122233300018"), "longitud incorrecta")
}

func TestValidateCPF(t *testing.T) {
	assert.NoError(t, nfse.ValidateCPF("529.982.247-25"))
	assert.NoError(t, nfse.ValidateCPF("52998224725"))
	assert.Error(t, nfse.ValidateCPF("529.982.247-26"))
	assert.Error(t, nfse.ValidateCPF("000.000.000-00"))
	assert.Error(t, nfse.ValidateCPF("5299822472"))
}

func TestUFFromMunicipalCode(t *testing.T) {
	assert.Equal(t, "SP", nfse.UFFromMunicipalCode("3550308"))
	assert.Equal(t, "RJ", nfse.UFFromMunicipalCode("3304557"))
	assert.Equal(t, "DF", nfse.UFFromMunicipalCode("5300108"))
	assert.Empty(t, nfse.UFFromMunicipalCode("99"))
	assert.Empty(t, nfse.UFFromMunicipalCode("9900000"))
}
