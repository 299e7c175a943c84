package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.ValidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "validate_license", err)
		return
	}

	res, err := h.service.ValidateAndActivate(r.Context(), claims.UserID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "validate_license", err)
		return
	}
	writeResolution(w, res)
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.ValidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "heartbeat", err)
		return
	}

	res, err := h.service.Heartbeat(r.Context(), claims.UserID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "heartbeat", err)
		return
	}
	writeResolution(w, res)
}

func (h *Handler) forceValidate(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.ForceValidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "force_validate", err)
		return
	}

	res, err := h.service.ForceValidate(r.Context(), claims.UserID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "force_validate", err)
		return
	}
	writeResolution(w, res)
}

func (h *Handler) getLicense(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	licenseID, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "get_license", err)
		return
	}

	view, err := h.service.GetLicense(r.Context(), claims.UserID, licenseID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) listMyLicenses(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	var productID *uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("product_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeValidationError(r.Context(), w, "list_my_licenses", err)
			return
		}
		productID = &id
	}
	var status *domain.LicenseStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := domain.LicenseStatus(strings.ToUpper(raw))
		status = &s
	}

	views, err := h.service.ListMyLicenses(r.Context(), claims.UserID, productID, status)
	if err != nil {
		writeMappedError(r.Context(), w, "list_my_licenses", err)
		return
	}
	writeSuccess(w, http.StatusOK, views)
}

func (h *Handler) deactivateDevice(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	licenseID, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "deactivate_device", err)
		return
	}
	fingerprint := chi.URLParam(r, "device_fingerprint")

	if err := h.service.DeactivateDevice(r.Context(), claims.UserID, licenseID, fingerprint); err != nil {
		writeMappedError(r.Context(), w, "deactivate_device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeResolution renders an activation outcome. Successful resolutions are a
// plain success envelope; ALL_LICENSES_FULL is a 409 that carries the live
// session listing so the client can offer a kick dialog.
func writeResolution(w http.ResponseWriter, res application.ValidateResult) {
	if res.Valid {
		writeSuccess(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]any{
		"status":          "error",
		"code":            res.ErrorCode,
		"message":         "no license has a free session slot",
		"timestamp":       time.Now().UTC(),
		"resolution":      res.Resolution,
		"active_sessions": res.ActiveSessions,
	})
}
