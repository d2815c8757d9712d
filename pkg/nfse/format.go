package nfse

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatTaxID aplica la máscara de CNPJ (00.000.000/0000-00) o CPF (000.000.000-00).
// Cualquier otra longitud se devuelve sin cambios.
func FormatTaxID(taxID string) string {
	d := OnlyDigits(taxID)
	switch len(d) {
	case CNPJLength:
		return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
	case CPFLength:
		return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
	default:
		return taxID
	}
}

// FormatBRL formatea un monto como moneda brasileña: 1234.5 → "R$ 1.234,50".
func FormatBRL(v decimal.Decimal) string {
	s := v.Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	n := len(intPart)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 && (n-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteByte(intPart[i])
	}
	out := "R$ " + sb.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
