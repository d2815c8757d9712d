package nfse

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Amounts valores monetarios de la DPS ya redondeados a 2 decimales.
type Amounts struct {
	Service decimal.Decimal // round2(valor do serviço)
	ISS     decimal.Decimal // round2(serviço × alíquota / 100)
	Net     decimal.Decimal // round2(serviço − ISS)
	Rate    decimal.Decimal // alíquota en porcentaje entero, tal como se almacena
}

// CalculateISS calcula ISS y valor líquido.
// rate es el porcentaje entero almacenado en la configuración fiscal (2 = 2 %).
func CalculateISS(serviceAmount, rate decimal.Decimal) (Amounts, error) {
	if serviceAmount.IsNegative() {
		return Amounts{}, fmt.Errorf("nfse: valor do serviço negativo (%s)", serviceAmount)
	}
	if rate.IsNegative() {
		return Amounts{}, fmt.Errorf("nfse: alíquota ISS negativa (%s)", rate)
	}
	iss := serviceAmount.Mul(rate).Div(hundred).Round(2)
	return Amounts{
		Service: serviceAmount.Round(2),
		ISS:     iss,
		Net:     serviceAmount.Sub(iss).Round(2),
		Rate:    rate,
	}, nil
}

// RateFraction convierte el porcentaje a fracción (2 → 0.02). Solo se usa en la frontera de salida.
func RateFraction(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(hundred)
}
