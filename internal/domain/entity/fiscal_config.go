package entity

import "github.com/shopspring/decimal"

// Ambientes de emisión.
const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"
)

// Proveedores soportados para la transmisión.
const (
	ProviderABRASF   = "abrasf"   // Webservice SOAP municipal (ABRASF 2.04)
	ProviderNacional = "nacional" // API REST del agregador nacional (JSON infDPS)
)

// FiscalConfig configuración fiscal del prestador (emisor).
type FiscalConfig struct {
	CNPJ                  string
	CompanyName           string
	MunicipalRegistration string          // Inscrição Municipal
	MunicipalCode         string          // Código IBGE del municipio del prestador
	ISSRate               decimal.Decimal // Porcentaje entero (2 = 2 %); se convierte a fracción solo al serializar
	Environment           string          // production | sandbox
	Provider              string          // abrasf | nacional
	CertificateRef        string          // Referencia al PKCS#12 en el CertificateRepository
	CertificatePassword   string
	ServiceTaxCode        string // Item da lista de serviço / código de tributação nacional
}

// IsProduction indica si se emite en el ambiente de producción.
func (c *FiscalConfig) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// EmissionData agrupa lo que el núcleo lee del almacén para emitir o consultar una nota.
type EmissionData struct {
	Invoice *Invoice
	Client  *Client
	Config  *FiscalConfig
}
