package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfse-emissor/internal/application/dto"
	"github.com/jhoicas/nfse-emissor/internal/domain"
)

// writeError traduce la taxonomía de errores del dominio a status HTTP.
// Los sentinels se revisan primero porque los errores tipados los envuelven.
func writeError(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		return fiber.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrMissingFiscalConf):
		return fiber.StatusUnprocessableEntity, "MISSING_FISCAL_CONFIG"
	case errors.Is(err, domain.ErrMissingCertificate):
		return fiber.StatusUnprocessableEntity, "MISSING_CERTIFICATE"
	case errors.Is(err, domain.ErrMissingCredentials):
		return fiber.StatusUnprocessableEntity, "MISSING_CREDENTIALS"
	}

	var (
		certErr  *domain.CertificateError
		signErr  *domain.SigningError
		authErr  *domain.AuthError
		transErr *domain.TransportError
	)
	switch {
	case errors.As(err, &certErr):
		return fiber.StatusUnprocessableEntity, "CERTIFICATE_INVALID"
	case errors.As(err, &signErr):
		return fiber.StatusInternalServerError, "SIGNING_FAILED"
	case errors.As(err, &authErr):
		return fiber.StatusBadGateway, "AUTH_FAILED"
	case errors.As(err, &transErr):
		return fiber.StatusBadGateway, "TRANSPORT_FAILED"
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}
