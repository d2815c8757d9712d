package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de la nota de servicio frente a la prefeitura / agregador nacional.
const (
	InvoiceStatusDraft      = "draft"      // Creada, aún no transmitida
	InvoiceStatusPending    = "pending"    // Transmitida, esperando procesamiento del lote
	InvoiceStatusAuthorized = "authorized" // NFS-e emitida (terminal)
	InvoiceStatusRejected   = "rejected"   // Rechazada con errores estructurados (terminal)
)

// Invoice representa la nota de servicio (DPS/RPS) y los campos del resultado fiscal.
// La persistencia es del colaborador externo; el núcleo solo lee la nota y escribe
// los campos fiscales (Status en adelante).
type Invoice struct {
	ID            string
	ClientID      string
	ServiceAmount decimal.Decimal
	ISSAmount     decimal.Decimal
	Description   string
	RPSNumber     int64  // Número secuencial del DPS/RPS
	RPSSeries     string // Serie del RPS (ABRASF) o del DPS
	IssuedAt      time.Time

	Status         string
	NFSeNumber     string
	AuthCode       string // Código de verificação
	PDFURL         string
	ErrorMessage   string // Primer error estructurado (código + mensaje + corrección)
	ErrorList      string // JSON con la lista completa de errores (auditoría)
	RawReturn      string // Respuesta cruda del gobierno/agregador
	Protocol       string // Protocolo del lote (ABRASF) o id del DPS en el agregador
	IdempotencyKey string // Una clave por nota; se reutiliza en reintentos
	UpdatedAt      time.Time
}

// IsTerminal indica si la nota ya tiene un resultado definitivo.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusAuthorized || i.Status == InvoiceStatusRejected
}
