package repository

import (
	"context"

	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia de la nota de servicio.
// El núcleo solo lee {nota, tomador, configuración fiscal} y escribe los campos del resultado fiscal.
type InvoiceRepository interface {
	// GetEmissionData devuelve la nota con su tomador y la configuración fiscal del prestador.
	// Retorna (nil, nil) si la nota no existe.
	GetEmissionData(ctx context.Context, invoiceID string) (*entity.EmissionData, error)

	// UpdateFiscalResult persiste en una sola escritura atómica (por id) los campos:
	// status, iss_amount, nfse_number, auth_code, pdf_url, error_message, error_list, raw_return,
	// protocol, idempotency_key, updated_at.
	UpdateFiscalResult(ctx context.Context, invoice *entity.Invoice) error
}
