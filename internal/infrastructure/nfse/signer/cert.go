// Carga del certificado ICP-Brasil (e-CNPJ A1) desde bytes PKCS#12.

package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/crypto/pkcs12"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/jhoicas/nfse-emissor/internal/domain"
)

var cnpjInCN = regexp.MustCompile(`\d{14}`)

// Bundle llave privada + certificado extraídos del PKCS#12.
// Vive solo en memoria durante una emisión; nunca se persiste descifrado.
type Bundle struct {
	PrivateKey     crypto.Signer
	Certificate    *x509.Certificate
	CertificatePEM []byte
	// SubjectTaxID primer bloque de 14 dígitos del CN del sujeto (vacío si no hay).
	SubjectTaxID string
}

// LoadBundle descifra el PKCS#12 con la contraseña y toma la primera llave y el primer certificado.
// Errores: contraseña incorrecta, bytes corruptos, sin llave o sin certificado ⇒ *domain.CertificateError.
//
// Primero x/crypto/pkcs12 (bolsa shrouded pkcs8ShroudedKeyBag, 3DES/RC2, MAC SHA-1: los A1
// de las AC brasileñas). Si el archivo usa algo que no soporta (keyBag plano, PBES2/AES o
// MAC SHA-256 de OpenSSL 3) se reintenta con go-pkcs12.
func LoadBundle(p12 []byte, password string) (*Bundle, error) {
	const op = "LoadBundle"
	if len(p12) == 0 {
		return nil, &domain.CertificateError{Op: op, Msg: "PKCS#12 vacío"}
	}

	key, cert, err := decodeShrouded(p12, password)
	if err != nil && !isIncorrectPassword(err) {
		var cerr *domain.CertificateError
		if !errors.As(err, &cerr) {
			key, cert, err = decodeAny(p12, password)
		}
	}
	if err != nil {
		var cerr *domain.CertificateError
		switch {
		case errors.As(err, &cerr):
			return nil, cerr
		case isIncorrectPassword(err):
			return nil, &domain.CertificateError{Op: op, Msg: "contraseña del certificado incorrecta", Err: err}
		default:
			return nil, &domain.CertificateError{Op: op, Msg: "PKCS#12 inválido", Err: err}
		}
	}

	return &Bundle{
		PrivateKey:     key,
		Certificate:    cert,
		CertificatePEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}),
		SubjectTaxID:   CNPJFromCN(cert.Subject.CommonName),
	}, nil
}

// CNPJFromCN primer bloque de 14 dígitos del CN ("EMPRESA LTDA:11222333000181"); vacío si no hay.
func CNPJFromCN(cn string) string {
	return cnpjInCN.FindString(cn)
}

// decodeShrouded vía x/crypto/pkcs12. Errores de contenido (sin llave, sin certificado,
// llave ilegible) ya salen como *domain.CertificateError; los demás son del decodificador.
func decodeShrouded(p12 []byte, password string) (crypto.Signer, *x509.Certificate, error) {
	const op = "LoadBundle"
	blocks, err := pkcs12.ToPEM(p12, password)
	if err != nil {
		return nil, nil, err
	}

	var (
		key  crypto.Signer
		cert *x509.Certificate
	)
	for _, b := range blocks {
		switch {
		case key == nil && strings.HasSuffix(b.Type, "PRIVATE KEY"):
			k, err := parsePrivateKey(b)
			if err != nil {
				return nil, nil, &domain.CertificateError{Op: op, Msg: "llave privada ilegible", Err: err}
			}
			key = k
		case cert == nil && b.Type == "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, nil, &domain.CertificateError{Op: op, Msg: "certificado ilegible", Err: err}
			}
			cert = c
		}
	}
	if key == nil {
		return nil, nil, &domain.CertificateError{Op: op, Msg: "el PKCS#12 no contiene llave privada"}
	}
	if cert == nil {
		return nil, nil, &domain.CertificateError{Op: op, Msg: "el PKCS#12 no contiene certificado"}
	}
	return key, cert, nil
}

// decodeAny vía go-pkcs12: acepta keyBag plano (1.2.840.113549.1.12.10.1.1) además del shrouded.
func decodeAny(p12 []byte, password string) (crypto.Signer, *x509.Certificate, error) {
	const op = "LoadBundle"
	k, cert, _, err := gopkcs12.DecodeChain(p12, password)
	if err != nil {
		return nil, nil, err
	}
	switch k := k.(type) {
	case *rsa.PrivateKey:
		return k, cert, nil
	case *ecdsa.PrivateKey:
		return k, cert, nil
	default:
		return nil, nil, &domain.CertificateError{Op: op, Msg: fmt.Sprintf("tipo de llave no soportado %T", k)}
	}
}

func isIncorrectPassword(err error) bool {
	return errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, gopkcs12.ErrIncorrectPassword)
}

// LoadFromP12 lee el archivo .p12/.pfx y delega en LoadBundle.
func LoadFromP12(path, password string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.CertificateError{Op: "LoadFromP12", Msg: "leer " + path, Err: err}
	}
	return LoadBundle(data, password)
}

// TLSCertificate arma el par para mTLS y para el firmador.
func (b *Bundle) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{b.Certificate.Raw},
		PrivateKey:  b.PrivateKey,
		Leaf:        b.Certificate,
	}
}

// parsePrivateKey: pkcs12.ToPEM marca toda llave como "PRIVATE KEY" aunque los bytes
// sean PKCS#1 (RSA) o SEC1 (EC).
func parsePrivateKey(b *pem.Block) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS1PrivateKey(b.Bytes); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(b.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(b.Bytes)
	if err != nil {
		return nil, err
	}
	switch k := k.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("tipo de llave no soportado %T", k)
	}
}
