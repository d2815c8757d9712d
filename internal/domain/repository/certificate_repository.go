package repository

import "context"

// CertificateRepository entrega los bytes PKCS#12 (.pfx/.p12) a partir de la referencia guardada
// en la configuración fiscal. Los bytes nunca se persisten descifrados.
type CertificateRepository interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// CertificateStore además permite registrar un bundle (importación desde la CLI).
type CertificateStore interface {
	CertificateRepository
	Save(ctx context.Context, ref string, p12 []byte) error
}
