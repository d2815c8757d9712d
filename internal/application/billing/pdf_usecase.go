package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/nfse-emissor/internal/domain"
	"github.com/jhoicas/nfse-emissor/internal/domain/entity"
	"github.com/jhoicas/nfse-emissor/internal/domain/repository"
)

// PDFUseCase genera la representação gráfica (DANFSe) de una NFS-e.
// Solo se permite para notas autorizadas (con número y código de verificación).
type PDFUseCase struct {
	invoiceRepo repository.InvoiceRepository
	generator   DANFSePDFGenerator
}

// NewPDFUseCase construye el caso de uso inyectando sus dependencias.
func NewPDFUseCase(invoiceRepo repository.InvoiceRepository, generator DANFSePDFGenerator) *PDFUseCase {
	return &PDFUseCase{invoiceRepo: invoiceRepo, generator: generator}
}

// DownloadDANFSe recupera la nota y genera el PDF.
//
// Retorna:
//   - (pdfBytes, filename, nil)  si todo sale bien.
//   - domain.ErrNotFound         si la nota no existe.
//   - domain.ErrInvalidState     si la nota aún no está autorizada.
func (uc *PDFUseCase) DownloadDANFSe(ctx context.Context, invoiceID string) (pdfBytes []byte, filename string, err error) {
	// ── 1. Cargar nota + tomador + configuración ──────────────────────────────
	data, err := uc.invoiceRepo.GetEmissionData(ctx, invoiceID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener nota: %w", err)
	}
	if data == nil || data.Invoice == nil {
		return nil, "", domain.ErrNotFound
	}

	// ── 2. Solo notas autorizadas ─────────────────────────────────────────────
	inv := data.Invoice
	if inv.Status != entity.InvoiceStatusAuthorized || inv.NFSeNumber == "" {
		return nil, "", fmt.Errorf("%w: la nota está en estado %s, el DANFSe solo existe para NFS-e autorizadas",
			domain.ErrInvalidState, inv.Status)
	}
	if data.Config == nil {
		return nil, "", domain.ErrMissingFiscalConf
	}

	// ── 3. Generar PDF ────────────────────────────────────────────────────────
	pdfBytes, err = uc.generator.GenerateDANFSe(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}
	return pdfBytes, fmt.Sprintf("nfse_%s.pdf", inv.NFSeNumber), nil
}
