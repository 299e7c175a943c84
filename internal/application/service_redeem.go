package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// RedeemClaim converts a raw code into a license for the caller. The whole
// claim runs in one store transaction: every quota increment is conditional,
// and a lost race rolls the earlier increments back and surfaces the mapped
// error. Checks run fail-fast in fixed order (code gates, campaign gates,
// per-user quota) so concurrent claimers observe consistent failures.
func (s *Service) RedeemClaim(ctx context.Context, userID uuid.UUID, req RedeemClaimRequest) (RedeemClaimResponse, error) {
	allowed, err := s.rateLimits.Allow(ctx, "redeem:"+userID.String(), s.cfg.RedeemRateThreshold, s.cfg.RedeemRateWindow)
	if err != nil {
		return RedeemClaimResponse{}, fmt.Errorf("redeem rate limit: %w", err)
	}
	if !allowed {
		return RedeemClaimResponse{}, domain.ErrRedeemRateLimited
	}

	normalized, err := s.hasher.Normalize(req.Code)
	if err != nil {
		return RedeemClaimResponse{}, err
	}
	if err := s.hasher.Validate(normalized); err != nil {
		return RedeemClaimResponse{}, err
	}
	codeHash := s.hasher.Hash(normalized)

	var resp RedeemClaimResponse
	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		now := s.nowFn()

		code, err := s.codes.GetByHash(txCtx, codeHash)
		if err != nil {
			return err
		}
		if err := code.RedeemableError(now); err != nil {
			return err
		}

		campaign, err := s.campaigns.GetByID(txCtx, code.CampaignID)
		if err != nil {
			return err
		}
		if err := campaignAvailabilityError(&campaign, now); err != nil {
			return err
		}

		// Exclusive row lock on the per-user counter serializes concurrent
		// claims by the same user for the rest of the transaction.
		counter, err := s.counters.GetForUpdate(txCtx, userID, campaign.CampaignID)
		if err != nil {
			return err
		}
		if campaign.PerUserLimit > 0 && counter.Count >= campaign.PerUserLimit {
			return domain.ErrUserLimitExceeded
		}

		ok, err := s.codes.IncrementRedemptions(txCtx, code.CodeID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCodeDepleted
		}
		ok, err = s.campaigns.IncrementSeatsUsed(txCtx, campaign.CampaignID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCampaignFull
		}
		if err := s.counters.Increment(txCtx, counter.CounterID); err != nil {
			return err
		}

		license, err := s.provisionForRedeem(txCtx, userID, campaign.PlanID, now)
		if err != nil {
			return err
		}

		redemption := domain.Redemption{
			RedemptionID: uuid.New(),
			CodeID:       code.CodeID,
			CampaignID:   campaign.CampaignID,
			UserID:       userID,
			LicenseID:    &license.LicenseID,
			RedeemedAt:   now,
			IPAddress:    req.IPAddress,
			UserAgent:    req.UserAgent,
		}
		if err := s.redemptions.Insert(txCtx, redemption); err != nil {
			return err
		}
		if err := s.enqueueEvent(txCtx, EventRedeemClaimed, campaign.CampaignID.String(), redeemClaimedEvent{
			RedemptionID: redemption.RedemptionID,
			CampaignID:   campaign.CampaignID,
			CodeID:       code.CodeID,
			UserID:       userID,
			LicenseID:    license.LicenseID,
			RedeemedAt:   now,
		}, now); err != nil {
			return err
		}

		plan, err := s.plans.GetByID(txCtx, campaign.PlanID)
		if err != nil {
			return err
		}
		resp = RedeemClaimResponse{
			LicenseID:   license.LicenseID,
			LicenseKey:  license.LicenseKey,
			ProductCode: plan.ProductCode,
			PlanName:    plan.Name,
			ValidUntil:  license.ValidUntil,
		}
		return nil
	})
	if err != nil {
		return RedeemClaimResponse{}, err
	}
	return resp, nil
}

// ListMyRedemptions returns the caller's claim history, newest first.
func (s *Service) ListMyRedemptions(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	return s.redemptions.ListByUser(ctx, userID)
}

// provisionForRedeem creates a license for the plan's product, or extends the
// caller's existing non-revoked one by the plan duration. Extension anchors at
// the current validUntil while it is in the future, so stacking claims adds
// time instead of resetting it.
func (s *Service) provisionForRedeem(ctx context.Context, userID, planID uuid.UUID, now time.Time) (domain.License, error) {
	plan, err := s.plans.GetAvailableByID(ctx, planID)
	if err != nil {
		return domain.License{}, err
	}

	existing, err := s.licenses.FindNonRevokedByOwnerAndProduct(ctx, userID, plan.ProductID)
	switch {
	case err == nil:
		if plan.DurationDays <= 0 {
			return existing, nil
		}
		anchor := now
		if existing.ValidUntil != nil && existing.ValidUntil.After(now) {
			anchor = *existing.ValidUntil
		}
		validUntil := anchor.AddDate(0, 0, plan.DurationDays)
		if err := s.licenses.Renew(ctx, existing.LicenseID, validUntil, now); err != nil {
			return domain.License{}, err
		}
		existing.Status = domain.LicenseActive
		existing.ValidUntil = &validUntil
		return existing, nil
	case !errors.Is(err, domain.ErrLicenseNotFound):
		return domain.License{}, err
	}

	license, err := s.buildLicense(plan, userID, nil, now)
	if err != nil {
		return domain.License{}, err
	}
	created, err := s.licenses.Create(ctx, license)
	if err != nil {
		return domain.License{}, err
	}
	if err := s.enqueueEvent(ctx, EventLicenseIssued, created.LicenseID.String(), licenseIssuedEvent{
		LicenseID:  created.LicenseID,
		OwnerID:    created.OwnerID,
		ProductID:  created.ProductID,
		PlanID:     created.PlanID,
		ValidUntil: created.ValidUntil,
		IssuedAt:   now,
	}, now); err != nil {
		return domain.License{}, err
	}
	return created, nil
}

// campaignAvailabilityError maps the failing campaign gate to its error:
// lifecycle and window failures are CAMPAIGN_NOT_ACTIVE, seat exhaustion is
// CAMPAIGN_FULL.
func campaignAvailabilityError(c *domain.Campaign, now time.Time) error {
	if c.Status != domain.CampaignActive {
		return domain.ErrCampaignNotActive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return fmt.Errorf("%w: campaign has not started", domain.ErrCampaignNotActive)
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return fmt.Errorf("%w: campaign has ended", domain.ErrCampaignNotActive)
	}
	if c.SeatLimit != nil && c.SeatsUsed >= *c.SeatLimit {
		return domain.ErrCampaignFull
	}
	return nil
}
