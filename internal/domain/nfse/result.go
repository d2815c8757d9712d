// Package nfse contiene el modelo canónico del resultado de emisión/consulta de
// NFS-e y las reglas puras de cálculo (ISS, líquido) y selección del tomador.
package nfse

import (
	"fmt"
	"strings"
	"time"
)

// Kind discrimina la variante del resultado.
type Kind string

const (
	KindSuccess Kind = "success"
	KindPending Kind = "pending"
	KindFailure Kind = "failure"
)

// Message error estructurado devuelto por el gobierno/agregador.
type Message struct {
	Code       string `json:"codigo,omitempty"`
	Message    string `json:"mensagem"`
	Correction string `json:"correcao,omitempty"`
}

// String formatea el mensaje para mostrarlo al usuario: "E160 - Mensaje (Corrección: ...)".
func (m Message) String() string {
	var sb strings.Builder
	if m.Code != "" {
		sb.WriteString(m.Code)
		sb.WriteString(" - ")
	}
	sb.WriteString(m.Message)
	if m.Correction != "" {
		sb.WriteString(" (Correção: ")
		sb.WriteString(m.Correction)
		sb.WriteString(")")
	}
	return sb.String()
}

// Result es el resultado canónico: exactamente una de las variantes según Kind.
//
//	Success{Status, Number, VerificationCode, PDFURL, IssueDate}
//	Pending{Protocol, LotNumber, Message}
//	Failure{Errors, Raw}
type Result struct {
	Kind Kind

	// Success
	Status           string
	Number           string
	VerificationCode string
	PDFURL           string
	IssueDate        *time.Time

	// Pending
	Protocol  string
	LotNumber string
	Message   string

	// Failure
	Errors []Message

	// Raw cuerpo crudo de la respuesta (se conserva para auditoría en cualquier variante).
	Raw string
}

// Success construye la variante de NFS-e emitida.
func Success(number, verificationCode, pdfURL string, issueDate *time.Time) Result {
	return Result{
		Kind:             KindSuccess,
		Status:           "autorizada",
		Number:           number,
		VerificationCode: verificationCode,
		PDFURL:           pdfURL,
		IssueDate:        issueDate,
	}
}

// Pending construye la variante de lote en procesamiento.
func Pending(protocol, lotNumber, message string) Result {
	return Result{Kind: KindPending, Protocol: protocol, LotNumber: lotNumber, Message: message}
}

// Failure construye la variante de rechazo con la lista ordenada de errores.
func Failure(errs ...Message) Result {
	return Result{Kind: KindFailure, Errors: errs}
}

// FailureMessage atajo para un rechazo con un único mensaje sin código.
func FailureMessage(msg string) Result {
	return Failure(Message{Message: msg})
}

// WithRaw adjunta el cuerpo crudo.
func (r Result) WithRaw(raw string) Result {
	r.Raw = raw
	return r
}

func (r Result) IsSuccess() bool { return r.Kind == KindSuccess }
func (r Result) IsPending() bool { return r.Kind == KindPending }
func (r Result) IsFailure() bool { return r.Kind == KindFailure }

// FirstError devuelve el primer error estructurado formateado, o "" si no hay.
func (r Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].String()
}

// String resumen legible para logs.
func (r Result) String() string {
	switch r.Kind {
	case KindSuccess:
		return fmt.Sprintf("success(numero=%s, codigo=%s)", r.Number, r.VerificationCode)
	case KindPending:
		return fmt.Sprintf("pending(protocolo=%s, lote=%s)", r.Protocol, r.LotNumber)
	case KindFailure:
		return fmt.Sprintf("failure(%d erros: %s)", len(r.Errors), r.FirstError())
	default:
		return "unknown"
	}
}
