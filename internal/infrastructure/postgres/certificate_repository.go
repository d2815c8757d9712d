package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
)

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

// CertificateRepo guarda los PKCS#12 en la tabla certificates (columna bytea).
type CertificateRepo struct {
	q Querier
}

// NewCertificateRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCertificateRepository(q Querier) *CertificateRepo {
	return &CertificateRepo{q: q}
}

// Fetch devuelve los bytes PKCS#12 de la referencia.
func (r *CertificateRepo) Fetch(ctx context.Context, ref string) ([]byte, error) {
	var p12 []byte
	err := r.q.QueryRow(ctx, `SELECT pkcs12 FROM certificates WHERE ref = $1`, ref).Scan(&p12)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("certificado %q: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return p12, nil
}

// Save inserta o reemplaza el PKCS#12 de la referencia.
func (r *CertificateRepo) Save(ctx context.Context, ref string, p12 []byte) error {
	const query = `
		INSERT INTO certificates (ref, pkcs12, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (ref) DO UPDATE SET pkcs12 = EXCLUDED.pkcs12, updated_at = now()`
	if _, err := r.q.Exec(ctx, query, ref, p12); err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}
