package signer_test

import (
	"crypto/rsa"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse/signer"
)

// testdata/ecnpj.p12: RSA 2048 autofirmado, CN "EMPRESA TESTE LTDA:11222333000181", contraseña 123456.
const testPassword = "123456"

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return b
}

func TestLoadBundle_ExtraeLlaveCertificadoYCNPJ(t *testing.T) {
	b, err := signer.LoadBundle(readFixture(t, "ecnpj.p12"), testPassword)
	require.NoError(t, err)

	require.NotNil(t, b.Certificate)
	require.NotNil(t, b.PrivateKey)
	assert.Equal(t, "11222333000181", b.SubjectTaxID)
	assert.Contains(t, string(b.CertificatePEM), "-----BEGIN CERTIFICATE-----")

	priv, ok := b.PrivateKey.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, priv.PublicKey.Equal(b.Certificate.PublicKey))

	tc := b.TLSCertificate()
	assert.Len(t, tc.Certificate, 1)
	assert.Equal(t, b.Certificate, tc.Leaf)
}

// ecnpj_keybag.p12: openssl pkcs12 -export -keypbe NONE (keyBag plano, certificado en PBES2/AES).
// ecnpj_aes.p12: valores por defecto de OpenSSL 3 (shrouded PBES2/AES, MAC SHA-256).
func TestLoadBundle_KeyBagPlanoYPBES2(t *testing.T) {
	for _, name := range []string{"ecnpj_keybag.p12", "ecnpj_aes.p12"} {
		t.Run(name, func(t *testing.T) {
			b, err := signer.LoadBundle(readFixture(t, name), testPassword)
			require.NoError(t, err)
			assert.Equal(t, "11222333000181", b.SubjectTaxID)

			priv, ok := b.PrivateKey.(*rsa.PrivateKey)
			require.True(t, ok)
			assert.True(t, priv.PublicKey.Equal(b.Certificate.PublicKey))

			_, err = signer.LoadBundle(readFixture(t, name), "errada")
			var certErr *domain.CertificateError
			require.True(t, errors.As(err, &certErr), "se esperaba CertificateError, se obtuvo %v", err)
			assert.Contains(t, err.Error(), "contraseña del certificado incorrecta")
		})
	}
}

func TestCNPJFromCN(t *testing.T) {
	assert.Equal(t, "11222333000181", signer.CNPJFromCN("EMPRESA TESTE LTDA:11222333000181"))
	assert.Equal(t, "11222333000181", signer.CNPJFromCN("EMPRESA 2:11222333000181 CPF 52998224725"))
	assert.Equal(t, "11222333000181", signer.CNPJFromCN("11222333000181 99887766000155"))
	assert.Empty(t, signer.CNPJFromCN("FULANO DE TAL:52998224725"))
}

func TestLoadBundle_SinCNPJEnCN(t *testing.T) {
	b, err := signer.LoadBundle(readFixture(t, "sem_cnpj.p12"), testPassword)
	require.NoError(t, err)
	assert.Empty(t, b.SubjectTaxID)
}

func TestLoadBundle_Errores(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		password string
	}{
		{"contraseña incorrecta", readFixture(t, "ecnpj.p12"), "errada"},
		{"vacío", nil, testPassword},
		{"no es PKCS#12", readFixture(t, "cert.pem"), testPassword},
		{"truncado", readFixture(t, "ecnpj.p12")[:200], testPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := signer.LoadBundle(tc.data, tc.password)
			assert.Nil(t, b)
			var certErr *domain.CertificateError
			assert.True(t, errors.As(err, &certErr), "se esperaba CertificateError, se obtuvo %v", err)
		})
	}
}

func TestLoadBundle_ContraseñaIncorrectaMensaje(t *testing.T) {
	_, err := signer.LoadBundle(readFixture(t, "ecnpj.p12"), "errada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contraseña del certificado incorrecta")
}

func TestLoadFromP12_ArchivoInexistente(t *testing.T) {
	_, err := signer.LoadFromP12("testdata/no-existe.p12", testPassword)
	var certErr *domain.CertificateError
	assert.True(t, errors.As(err, &certErr))
}
