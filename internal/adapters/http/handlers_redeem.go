package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

type redemptionView struct {
	RedemptionID uuid.UUID  `json:"redemption_id"`
	CampaignID   uuid.UUID  `json:"campaign_id"`
	LicenseID    *uuid.UUID `json:"license_id,omitempty"`
	RedeemedAt   time.Time  `json:"redeemed_at"`
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	var req application.RedeemClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "redeem_claim", err)
		return
	}
	req.IPAddress = readIP(r)
	req.UserAgent = r.UserAgent()

	res, err := h.service.RedeemClaim(r.Context(), claims.UserID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "redeem_claim", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listMyRedemptions(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	redemptions, err := h.service.ListMyRedemptions(r.Context(), claims.UserID)
	if err != nil {
		writeMappedError(r.Context(), w, "list_my_redemptions", err)
		return
	}
	views := make([]redemptionView, 0, len(redemptions))
	for _, red := range redemptions {
		views = append(views, redemptionView{
			RedemptionID: red.RedemptionID,
			CampaignID:   red.CampaignID,
			LicenseID:    red.LicenseID,
			RedeemedAt:   red.RedeemedAt,
		})
	}
	writeSuccess(w, http.StatusOK, views)
}
