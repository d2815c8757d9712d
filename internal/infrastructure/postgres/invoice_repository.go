package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const emissionDataQuery = `
	SELECT i.id::text, COALESCE(i.client_id::text, ''),
	       i.service_amount, i.iss_amount, COALESCE(i.description, ''),
	       i.rps_number, i.rps_series, i.issued_at,
	       i.status, COALESCE(i.nfse_number, ''), COALESCE(i.auth_code, ''), COALESCE(i.pdf_url, ''),
	       COALESCE(i.error_message, ''), COALESCE(i.error_list, ''), COALESCE(i.raw_return, ''),
	       COALESCE(i.protocol, ''), COALESCE(i.idempotency_key, ''), i.updated_at,
	       c.id IS NOT NULL,
	       COALESCE(c.tax_id, ''), COALESCE(c.name, ''), COALESCE(c.email, ''),
	       COALESCE(c.street, ''), COALESCE(c.number, ''), COALESCE(c.neighborhood, ''),
	       COALESCE(c.postal_code, ''), COALESCE(c.municipal_code, ''),
	       f.id IS NOT NULL,
	       COALESCE(f.cnpj, ''), COALESCE(f.company_name, ''), COALESCE(f.municipal_registration, ''),
	       COALESCE(f.municipal_code, ''), COALESCE(f.iss_rate, 0), COALESCE(f.environment, ''),
	       COALESCE(f.provider, ''), COALESCE(f.certificate_ref, ''), COALESCE(f.certificate_password, ''),
	       COALESCE(f.service_tax_code, '')
	FROM invoices i
	LEFT JOIN clients c        ON c.id = i.client_id
	LEFT JOIN fiscal_configs f ON f.id = i.fiscal_config_id
	WHERE i.id = $1`

// GetEmissionData lee la nota, su tomador y la configuración fiscal del prestador en una consulta.
// Retorna (nil, nil) si la nota no existe; Client/Config quedan nil si no están asociados.
func (r *InvoiceRepo) GetEmissionData(ctx context.Context, invoiceID string) (*entity.EmissionData, error) {
	var (
		inv       entity.Invoice
		cli       entity.Client
		cfg       entity.FiscalConfig
		hasClient bool
		hasConfig bool
	)
	err := r.q.QueryRow(ctx, emissionDataQuery, invoiceID).Scan(
		&inv.ID, &inv.ClientID,
		&inv.ServiceAmount, &inv.ISSAmount, &inv.Description,
		&inv.RPSNumber, &inv.RPSSeries, &inv.IssuedAt,
		&inv.Status, &inv.NFSeNumber, &inv.AuthCode, &inv.PDFURL,
		&inv.ErrorMessage, &inv.ErrorList, &inv.RawReturn,
		&inv.Protocol, &inv.IdempotencyKey, &inv.UpdatedAt,
		&hasClient,
		&cli.TaxID, &cli.Name, &cli.Email,
		&cli.Street, &cli.Number, &cli.Neighborhood,
		&cli.PostalCode, &cli.MunicipalCode,
		&hasConfig,
		&cfg.CNPJ, &cfg.CompanyName, &cfg.MunicipalRegistration,
		&cfg.MunicipalCode, &cfg.ISSRate, &cfg.Environment,
		&cfg.Provider, &cfg.CertificateRef, &cfg.CertificatePassword,
		&cfg.ServiceTaxCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get emission data: %w", err)
	}

	data := &entity.EmissionData{Invoice: &inv}
	if hasClient {
		cli.ID = inv.ClientID
		data.Client = &cli
	}
	if hasConfig {
		data.Config = &cfg
	}
	return data, nil
}

// UpdateFiscalResult escribe los campos del resultado fiscal en un único UPDATE por id.
func (r *InvoiceRepo) UpdateFiscalResult(ctx context.Context, inv *entity.Invoice) error {
	const query = `
		UPDATE invoices
		SET status          = $2,
		    iss_amount      = $3,
		    nfse_number     = $4,
		    auth_code       = $5,
		    pdf_url         = $6,
		    error_message   = $7,
		    error_list      = $8,
		    raw_return      = $9,
		    protocol        = $10,
		    idempotency_key = $11,
		    updated_at      = $12
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		inv.ID,
		inv.Status,
		inv.ISSAmount,
		nullIfEmpty(inv.NFSeNumber),
		nullIfEmpty(inv.AuthCode),
		nullIfEmpty(inv.PDFURL),
		nullIfEmpty(inv.ErrorMessage),
		nullIfEmpty(inv.ErrorList),
		nullIfEmpty(inv.RawReturn),
		nullIfEmpty(inv.Protocol),
		nullIfEmpty(inv.IdempotencyKey),
		inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("idempotency key %s ya usada por otra nota: %w", inv.IdempotencyKey, domain.ErrConflict)
		}
		return fmt.Errorf("update fiscal result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update fiscal result %s: %w", inv.ID, domain.ErrNotFound)
	}
	return nil
}
