package entity

// Client tomador del servicio. Todos los campos pueden faltar: el builder aplica
// valores por defecto (dirección) y el tomador sin documento válido se emite
// como consumidor anónimo.
type Client struct {
	ID            string
	TaxID         string // CPF o CNPJ, con o sin puntuación
	Name          string
	Email         string
	Street        string
	Number        string
	Neighborhood  string
	PostalCode    string
	MunicipalCode string // Código IBGE del municipio
}
