package dto

import (
	"time"

	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
)

// NFSeMessageResponse error estructurado devuelto por la prefeitura o el agregador.
type NFSeMessageResponse struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Correction string `json:"correction,omitempty"`
}

// NFSeResultResponse respuesta de POST /api/nfse/:id/emit y GET /api/nfse/:id/status.
// Solo se llenan los campos de la variante indicada en Kind (success | pending | failure).
type NFSeResultResponse struct {
	InvoiceID string `json:"invoice_id"`
	Kind      string `json:"kind"`

	Status           string     `json:"status,omitempty"`
	Number           string     `json:"number,omitempty"`
	VerificationCode string     `json:"verification_code,omitempty"`
	PDFURL           string     `json:"pdf_url,omitempty"`
	IssueDate        *time.Time `json:"issue_date,omitempty"`

	Protocol  string `json:"protocol,omitempty"`
	LotNumber string `json:"lot_number,omitempty"`
	Message   string `json:"message,omitempty"`

	Errors []NFSeMessageResponse `json:"errors,omitempty"`
}

// FromResult mapea el resultado canónico a la respuesta HTTP.
func FromResult(invoiceID string, r nfse.Result) NFSeResultResponse {
	out := NFSeResultResponse{InvoiceID: invoiceID, Kind: string(r.Kind)}
	switch r.Kind {
	case nfse.KindSuccess:
		out.Status = r.Status
		out.Number = r.Number
		out.VerificationCode = r.VerificationCode
		out.PDFURL = r.PDFURL
		out.IssueDate = r.IssueDate
	case nfse.KindPending:
		out.Protocol = r.Protocol
		out.LotNumber = r.LotNumber
		out.Message = r.Message
	case nfse.KindFailure:
		out.Errors = make([]NFSeMessageResponse, 0, len(r.Errors))
		for _, m := range r.Errors {
			out.Errors = append(out.Errors, NFSeMessageResponse{Code: m.Code, Message: m.Message, Correction: m.Correction})
		}
	}
	return out
}

// HealthResponse cuerpo de GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
