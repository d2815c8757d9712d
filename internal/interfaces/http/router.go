package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfse-emissor/internal/application/dto"
	"github.com/jhoicas/nfse-emissor/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Emitter     NFSeEmitter
	DANFSe      DANFSeDownloader
	JWTSecret   string
	JWTIssuer   string
	ServiceName string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(dto.HealthResponse{Status: "ok", Service: deps.ServiceName})
	})

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))

	nfseGroup := protected.Group("/nfse")
	h := NewNFSeHandler(deps.Emitter, deps.DANFSe)
	nfseGroup.Post("/:id/emit", RequireRole(jwt.RoleAdmin, jwt.RoleEmissor), h.Emit)
	nfseGroup.Get("/:id/status", RequireRole(jwt.RoleAdmin, jwt.RoleEmissor, jwt.RoleConsulta), h.Status)
	nfseGroup.Get("/:id/pdf", RequireRole(jwt.RoleAdmin, jwt.RoleEmissor, jwt.RoleConsulta), h.PDF)
}
