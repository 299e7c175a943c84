package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type issueLicenseBody struct {
	OwnerID       uuid.UUID  `json:"owner_id"`
	PlanID        uuid.UUID  `json:"plan_id"`
	SourceOrderID *uuid.UUID `json:"source_order_id,omitempty"`
}

type lifecycleBody struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) issueLicense(w http.ResponseWriter, r *http.Request) {
	var body issueLicenseBody
	if err := decodeBody(r, &body); err != nil {
		writeValidationError(r.Context(), w, "issue_license", err)
		return
	}

	license, err := h.service.IssueLicense(r.Context(), application.IssueLicenseRequest{
		OwnerID:       body.OwnerID,
		PlanID:        body.PlanID,
		SourceOrderID: body.SourceOrderID,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "issue_license", err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"license_id":  license.LicenseID,
		"license_key": license.LicenseKey,
		"status":      license.Status,
		"valid_until": license.ValidUntil,
	})
}

func (h *Handler) suspendLicense(w http.ResponseWriter, r *http.Request) {
	h.licenseLifecycle(w, r, "suspend_license", func(licenseID uuid.UUID, reason string) error {
		return h.service.SuspendLicense(r.Context(), licenseID, reason)
	})
}

func (h *Handler) resumeLicense(w http.ResponseWriter, r *http.Request) {
	h.licenseLifecycle(w, r, "resume_license", func(licenseID uuid.UUID, _ string) error {
		return h.service.ResumeLicense(r.Context(), licenseID)
	})
}

func (h *Handler) revokeLicense(w http.ResponseWriter, r *http.Request) {
	h.licenseLifecycle(w, r, "revoke_license", func(licenseID uuid.UUID, reason string) error {
		return h.service.RevokeLicense(r.Context(), licenseID, reason)
	})
}

func (h *Handler) renewLicense(w http.ResponseWriter, r *http.Request) {
	licenseID, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "renew_license", err)
		return
	}
	license, err := h.service.RenewLicense(r.Context(), licenseID)
	if err != nil {
		writeMappedError(r.Context(), w, "renew_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"license_id":  license.LicenseID,
		"status":      license.Status,
		"valid_until": license.ValidUntil,
	})
}

func (h *Handler) licenseLifecycle(w http.ResponseWriter, r *http.Request, operation string, action func(uuid.UUID, string) error) {
	licenseID, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		writeValidationError(r.Context(), w, operation, err)
		return
	}
	var body lifecycleBody
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeValidationError(r.Context(), w, operation, err)
			return
		}
	}
	if err := action(licenseID, body.Reason); err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.CampaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_campaign", err)
		return
	}

	view, err := h.service.CreateCampaign(r.Context(), claims.UserID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_campaign", err)
		return
	}
	writeSuccess(w, http.StatusCreated, view)
}

func (h *Handler) updateCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaign_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "update_campaign", err)
		return
	}
	var req application.CampaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_campaign", err)
		return
	}

	view, err := h.service.UpdateCampaign(r.Context(), campaignID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_campaign", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaign_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "get_campaign", err)
		return
	}
	view, err := h.service.GetCampaign(r.Context(), campaignID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_campaign", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) listCampaigns(w http.ResponseWriter, r *http.Request) {
	var status *domain.CampaignStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := domain.CampaignStatus(strings.ToUpper(raw))
		status = &s
	}

	page, err := h.service.ListCampaigns(r.Context(), status, pageFromQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_campaigns", err)
		return
	}
	writeSuccess(w, http.StatusOK, page)
}

func (h *Handler) pauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.campaignTransition(w, r, "pause_campaign", h.service.PauseCampaign)
}

func (h *Handler) resumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.campaignTransition(w, r, "resume_campaign", h.service.ResumeCampaign)
}

func (h *Handler) endCampaign(w http.ResponseWriter, r *http.Request) {
	h.campaignTransition(w, r, "end_campaign", h.service.EndCampaign)
}

func (h *Handler) campaignTransition(w http.ResponseWriter, r *http.Request, operation string, transition func(ctx context.Context, campaignID uuid.UUID) (application.CampaignView, error)) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaign_id"))
	if err != nil {
		writeValidationError(r.Context(), w, operation, err)
		return
	}
	view, err := transition(r.Context(), campaignID)
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) generateCodes(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaign_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "generate_codes", err)
		return
	}
	var req application.CodeGenerateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "generate_codes", err)
		return
	}

	res, err := h.service.GenerateCodes(r.Context(), campaignID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "generate_codes", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listCodes(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "campaign_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "list_codes", err)
		return
	}
	page, err := h.service.ListCodes(r.Context(), campaignID, pageFromQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_codes", err)
		return
	}
	writeSuccess(w, http.StatusOK, page)
}

func (h *Handler) deactivateCode(w http.ResponseWriter, r *http.Request) {
	codeID, err := uuid.Parse(chi.URLParam(r, "code_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "deactivate_code", err)
		return
	}
	if err := h.service.DeactivateCode(r.Context(), codeID); err != nil {
		writeMappedError(r.Context(), w, "deactivate_code", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageFromQuery(r *http.Request) application.PageQuery {
	return application.PageQuery{
		Page:  parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit: parseIntDefault(r.URL.Query().Get("limit"), 20),
	}
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
