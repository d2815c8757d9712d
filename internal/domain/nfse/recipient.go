package nfse

import pkgnfse "github.com/jhoicas/nfse-emissor/pkg/nfse"

// RecipientKind variante del tomador según el documento.
type RecipientKind int

const (
	RecipientAnonymous RecipientKind = iota // Sin documento válido: ni CNPJ ni CPF
	RecipientCNPJ                           // 14 dígitos
	RecipientCPF                            // 11 dígitos
)

func (k RecipientKind) String() string {
	switch k {
	case RecipientCNPJ:
		return "cnpj"
	case RecipientCPF:
		return "cpf"
	default:
		return "anonymous"
	}
}

// Recipient identificación del tomador. Solo uno de CNPJ/CPF puede estar lleno.
type Recipient struct {
	Kind RecipientKind
	doc  string
}

// NewRecipient selecciona la variante a partir del documento limpio (solo dígitos).
// La selección es total y exclusiva: 14 ⇒ CNPJ, 11 ⇒ CPF, cualquier otra longitud ⇒ anónimo.
func NewRecipient(taxID string) Recipient {
	d := pkgnfse.OnlyDigits(taxID)
	switch len(d) {
	case pkgnfse.CNPJLength:
		return Recipient{Kind: RecipientCNPJ, doc: d}
	case pkgnfse.CPFLength:
		return Recipient{Kind: RecipientCPF, doc: d}
	default:
		return Recipient{Kind: RecipientAnonymous}
	}
}

// CNPJ devuelve el CNPJ si la variante es CNPJ; "" en otro caso.
func (r Recipient) CNPJ() string {
	if r.Kind == RecipientCNPJ {
		return r.doc
	}
	return ""
}

// CPF devuelve el CPF si la variante es CPF; "" en otro caso.
func (r Recipient) CPF() string {
	if r.Kind == RecipientCPF {
		return r.doc
	}
	return ""
}

// Document devuelve el documento de la variante (vacío para anónimo).
func (r Recipient) Document() string { return r.doc }

// Validate comprueba los dígitos verificadores de la variante. El anónimo siempre es válido.
func (r Recipient) Validate() error {
	switch r.Kind {
	case RecipientCNPJ:
		return pkgnfse.ValidateCNPJ(r.doc)
	case RecipientCPF:
		return pkgnfse.ValidateCPF(r.doc)
	default:
		return nil
	}
}
