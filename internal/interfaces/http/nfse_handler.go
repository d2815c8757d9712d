package http

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfse-emissor/internal/application/dto"
	"github.com/jhoicas/nfse-emissor/internal/domain/nfse"
)

// NFSeEmitter contrato que el handler necesita del orquestador.
// Lo implementa *billing.NFSeOrchestrator.
type NFSeEmitter interface {
	Emit(ctx context.Context, invoiceID string) (nfse.Result, error)
	CheckStatus(ctx context.Context, invoiceID string) (nfse.Result, error)
}

// DANFSeDownloader descarga el DANFSe; lo implementa *billing.PDFUseCase.
type DANFSeDownloader interface {
	DownloadDANFSe(ctx context.Context, invoiceID string) ([]byte, string, error)
}

// NFSeHandler maneja emisión, consulta y DANFSe (protegido).
type NFSeHandler struct {
	emitter NFSeEmitter
	pdf     DANFSeDownloader
}

// NewNFSeHandler construye el handler.
func NewNFSeHandler(emitter NFSeEmitter, pdf DANFSeDownloader) *NFSeHandler {
	return &NFSeHandler{emitter: emitter, pdf: pdf}
}

// Emit transmite la nota y devuelve el resultado canónico.
// POST /api/nfse/:id/emit
//
// 200 success/failure, 202 pending (lote aún en proceso).
func (h *NFSeHandler) Emit(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	res, err := h.emitter.Emit(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(resultStatus(res)).JSON(dto.FromResult(id, res))
}

// Status consulta el lote/DPS por protocolo y reconcilia.
// GET /api/nfse/:id/status
func (h *NFSeHandler) Status(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	res, err := h.emitter.CheckStatus(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(resultStatus(res)).JSON(dto.FromResult(id, res))
}

// PDF descarga el DANFSe de una NFS-e autorizada.
// GET /api/nfse/:id/pdf
func (h *NFSeHandler) PDF(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	pdfBytes, filename, err := h.pdf.DownloadDANFSe(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(pdfBytes)
}

func resultStatus(r nfse.Result) int {
	if r.IsPending() {
		return fiber.StatusAccepted
	}
	return fiber.StatusOK
}
