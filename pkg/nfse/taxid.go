// Package nfse: utilidades de documentos fiscales brasileños (CNPJ / CPF) y
// catálogos mínimos para NFS-e.
package nfse

import (
	"fmt"
	"unicode"
)

// Longitudes de documento (solo dígitos).
const (
	CNPJLength = 14
	CPFLength  = 11
)

// pesos del módulo 11 de Receita Federal.
var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// OnlyDigits elimina todo carácter que no sea dígito.
// "12.345.678/0001-95" → "12345678000195"
func OnlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 128 && unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// ValidateCNPJ valida los dos dígitos verificadores del CNPJ (con o sin puntuación).
func ValidateCNPJ(taxID string) error {
	d := OnlyDigits(taxID)
	if len(d) != CNPJLength {
		return fmt.Errorf("nfse: CNPJ debe tener %d dígitos, se recibieron %d", CNPJLength, len(d))
	}
	if allSame(d) {
		return fmt.Errorf("nfse: CNPJ inválido (dígitos repetidos)")
	}
	dv1 := checkDigit(d[:12], cnpjWeights1)
	dv2 := checkDigit(d[:12]+string(dv1), cnpjWeights2)
	if d[12] != dv1 || d[13] != dv2 {
		return fmt.Errorf("nfse: dígitos verificadores del CNPJ inválidos: esperado %c%c, recibido %s", dv1, dv2, d[12:])
	}
	return nil
}

// ValidateCPF valida los dos dígitos verificadores del CPF (con o sin puntuación).
func ValidateCPF(taxID string) error {
	d := OnlyDigits(taxID)
	if len(d) != CPFLength {
		return fmt.Errorf("nfse: CPF debe tener %d dígitos, se recibieron %d", CPFLength, len(d))
	}
	if allSame(d) {
		return fmt.Errorf("nfse: CPF inválido (dígitos repetidos)")
	}
	dv1 := checkDigit(d[:9], descending(10))
	dv2 := checkDigit(d[:10], descending(11))
	if d[9] != dv1 || d[10] != dv2 {
		return fmt.Errorf("nfse: dígitos verificadores del CPF inválidos: esperado %c%c, recibido %s", dv1, dv2, d[9:])
	}
	return nil
}

func checkDigit(base string, weights []int) byte {
	var sum int
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

// descending genera pesos n, n-1, ..., 2.
func descending(n int) []int {
	w := make([]int, 0, n-1)
	for i := n; i >= 2; i-- {
		w = append(w, i)
	}
	return w
}

func allSame(d string) bool {
	for i := 1; i < len(d); i++ {
		if d[i] != d[0] {
			return false
		}
	}
	return true
}

var ufByIBGE = map[string]string{
	"11": "RO", "12": "AC", "13": "AM", "14": "RR", "15": "PA", "16": "AP", "17": "TO",
	"21": "MA", "22": "PI", "23": "CE", "24": "RN", "25": "PB", "26": "PE", "27": "AL", "28": "SE", "29": "BA",
	"31": "MG", "32": "ES", "33": "RJ", "35": "SP",
	"41": "PR", "42": "SC", "43": "RS",
	"50": "MS", "51": "MT", "52": "GO", "53": "DF",
}

// UFFromMunicipalCode devuelve la sigla del estado a partir de los dos primeros dígitos del código IBGE.
// "3550308" → "SP". Retorna "" si el código no es reconocido.
func UFFromMunicipalCode(code string) string {
	d := OnlyDigits(code)
	if len(d) != 7 {
		return ""
	}
	return ufByIBGE[d[:2]]
}
