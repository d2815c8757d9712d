package billing

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
	infranfse "github.com/jhoicas/nfse-emissor/internal/infrastructure/nfse"
)

// DPSBuilder construye el documento sin firmar (lote ABRASF en XML o DPS en JSON).
type DPSBuilder interface {
	Build(ctx *infranfse.DPSBuildContext) (*infranfse.BuiltDPS, error)
}

// MunicipalBuilder además del lote arma el cuerpo de ConsultarLoteRps.
type MunicipalBuilder interface {
	DPSBuilder
	BuildConsultaLote(cfg *entity.FiscalConfig, protocol string) ([]byte, error)
}

// MunicipalTransport envía operaciones SOAP al webservice municipal con mTLS.
type MunicipalTransport interface {
	Call(ctx context.Context, env string, op infranfse.SOAPOperation, header, body []byte, cert tls.Certificate) (*infranfse.RawResponse, error)
}

// AggregatorAPI API REST del agregador nacional.
type AggregatorAPI interface {
	SubmitDPS(ctx context.Context, payload []byte, idempotencyKey string) (*infranfse.RawResponse, error)
	GetDPS(ctx context.Context, id string) (*infranfse.RawResponse, error)
}

// ResultParser normaliza las respuestas del gobierno/agregador al resultado canónico.
// Diagnose/DiagnoseREST devuelven *domain.ProtocolError para respuestas fuera del
// protocolo (HTML, SOAP Fault, forma desconocida); solo se usan en logs.
type ResultParser interface {
	Parse(body []byte) nfse.Result
	ParseREST(body []byte) nfse.Result
	Diagnose(body []byte) error
	DiagnoseREST(body []byte) error
}

// Tipos de evento publicados tras una reconciliación terminal.
const (
	EventNFSeAuthorized = "nfse.authorized"
	EventNFSeRejected   = "nfse.rejected"
)

// StatusEvent notificación de cambio de estado fiscal de una nota.
type StatusEvent struct {
	Type         string    `json:"type"`
	InvoiceID    string    `json:"invoice_id"`
	Status       string    `json:"status"`
	NFSeNumber   string    `json:"nfse_number,omitempty"`
	AuthCode     string    `json:"auth_code,omitempty"`
	PDFURL       string    `json:"pdf_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher publica eventos de estado. Un fallo al publicar nunca revierte la nota.
type EventPublisher interface {
	Publish(ctx context.Context, evt StatusEvent) error
}

// DANFSePDFGenerator genera la representación gráfica (DANFSe) de una NFS-e autorizada.
type DANFSePDFGenerator interface {
	GenerateDANFSe(ctx context.Context, data *entity.EmissionData) ([]byte, error)
}
