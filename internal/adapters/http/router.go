package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for licensing use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	tokens  ports.TokenSigner
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, tokens ports.TokenSigner) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// NewRouter registers M91 HTTP routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/licensing/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)

			r.Post("/licenses/validate", handler.validate)
			r.Post("/licenses/heartbeat", handler.heartbeat)
			r.Post("/licenses/validate/force", handler.forceValidate)
			r.Get("/licenses/{license_id}", handler.getLicense)
			r.Delete("/licenses/{license_id}/activations/{device_fingerprint}", handler.deactivateDevice)
			r.Get("/me/licenses", handler.listMyLicenses)
			r.Get("/me/redemptions", handler.listMyRedemptions)
			r.Post("/redeem", handler.redeem)

			r.Route("/admin", func(r chi.Router) {
				r.Use(handler.adminMiddleware)

				r.Post("/licenses", handler.issueLicense)
				r.Post("/licenses/{license_id}/suspend", handler.suspendLicense)
				r.Post("/licenses/{license_id}/resume", handler.resumeLicense)
				r.Post("/licenses/{license_id}/revoke", handler.revokeLicense)
				r.Post("/licenses/{license_id}/renew", handler.renewLicense)

				r.Post("/campaigns", handler.createCampaign)
				r.Get("/campaigns", handler.listCampaigns)
				r.Get("/campaigns/{campaign_id}", handler.getCampaign)
				r.Put("/campaigns/{campaign_id}", handler.updateCampaign)
				r.Post("/campaigns/{campaign_id}/pause", handler.pauseCampaign)
				r.Post("/campaigns/{campaign_id}/resume", handler.resumeCampaign)
				r.Post("/campaigns/{campaign_id}/end", handler.endCampaign)
				r.Post("/campaigns/{campaign_id}/codes", handler.generateCodes)
				r.Get("/campaigns/{campaign_id}/codes", handler.listCodes)
				r.Delete("/codes/{code_id}", handler.deactivateCode)
			})
		})
	})

	return r
}
