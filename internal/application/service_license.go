package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// IssueLicense provisions a license from a plan for billing/admin
// collaborators. One non-revoked license per (owner, product): a second issue
// fails with LICENSE_ALREADY_EXISTS instead of silently stacking entitlements.
func (s *Service) IssueLicense(ctx context.Context, req IssueLicenseRequest) (domain.License, error) {
	plan, err := s.plans.GetAvailableByID(ctx, req.PlanID)
	if err != nil {
		return domain.License{}, err
	}

	_, err = s.licenses.FindNonRevokedByOwnerAndProduct(ctx, req.OwnerID, plan.ProductID)
	switch {
	case err == nil:
		return domain.License{}, domain.ErrLicenseAlreadyExists
	case !errors.Is(err, domain.ErrLicenseNotFound):
		return domain.License{}, err
	}

	now := s.nowFn()
	license, err := s.buildLicense(plan, req.OwnerID, req.SourceOrderID, now)
	if err != nil {
		return domain.License{}, err
	}

	var created domain.License
	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		var txErr error
		created, txErr = s.licenses.Create(txCtx, license)
		if txErr != nil {
			return txErr
		}
		return s.enqueueEvent(txCtx, EventLicenseIssued, created.LicenseID.String(), licenseIssuedEvent{
			LicenseID:  created.LicenseID,
			OwnerID:    created.OwnerID,
			ProductID:  created.ProductID,
			PlanID:     created.PlanID,
			ValidUntil: created.ValidUntil,
			IssuedAt:   now,
		}, now)
	})
	if err != nil {
		return domain.License{}, err
	}
	return created, nil
}

// SuspendLicense halts an ACTIVE license. Suspended licenses fail validation
// until resumed; existing activations keep their rows.
func (s *Service) SuspendLicense(ctx context.Context, licenseID uuid.UUID, reason string) error {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return err
	}
	if license.Status != domain.LicenseActive {
		return fmt.Errorf("%w: suspend requires ACTIVE, license is %s", domain.ErrInvalidLicenseState, license.Status)
	}
	return s.licenses.UpdateStatus(ctx, licenseID, domain.LicenseSuspended, reason, s.nowFn())
}

// ResumeLicense lifts a suspension.
func (s *Service) ResumeLicense(ctx context.Context, licenseID uuid.UUID) error {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return err
	}
	if license.Status != domain.LicenseSuspended {
		return fmt.Errorf("%w: resume requires SUSPENDED, license is %s", domain.ErrInvalidLicenseState, license.Status)
	}
	return s.licenses.UpdateStatus(ctx, licenseID, domain.LicenseActive, "", s.nowFn())
}

// RevokeLicense is terminal. It sweeps every live device slot in the same
// transaction and emits license.revoked so downstream consumers drop cached
// entitlements.
func (s *Service) RevokeLicense(ctx context.Context, licenseID uuid.UUID, reason string) error {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return err
	}
	if license.Status == domain.LicenseRevoked {
		return nil
	}
	now := s.nowFn()
	return s.tx.InTx(ctx, func(txCtx context.Context) error {
		if err := s.licenses.UpdateStatus(txCtx, licenseID, domain.LicenseRevoked, reason, now); err != nil {
			return err
		}
		if _, err := s.activations.DeactivateAllForLicense(txCtx, licenseID, domain.ReasonLicenseRevoked, now); err != nil {
			return err
		}
		return s.enqueueEvent(txCtx, EventLicenseRevoked, licenseID.String(), licenseRevokedEvent{
			LicenseID: licenseID,
			OwnerID:   license.OwnerID,
			Reason:    reason,
			RevokedAt: now,
		}, now)
	})
}

// RevokeBySourceOrder handles billing refund events keyed by the order id.
func (s *Service) RevokeBySourceOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	license, err := s.licenses.GetBySourceOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.RevokeLicense(ctx, license.LicenseID, reason)
}

// RenewLicense extends validity by the plan duration, anchored at the current
// validUntil when it is still in the future. A lapsed license is reactivated.
func (s *Service) RenewLicense(ctx context.Context, licenseID uuid.UUID) (domain.License, error) {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return domain.License{}, err
	}
	if license.Status == domain.LicenseRevoked {
		return domain.License{}, domain.ErrLicenseRevoked
	}
	plan, err := s.plans.GetByID(ctx, license.PlanID)
	if err != nil {
		return domain.License{}, err
	}
	if plan.DurationDays <= 0 {
		return license, nil
	}
	now := s.nowFn()
	anchor := now
	if license.ValidUntil != nil && license.ValidUntil.After(now) {
		anchor = *license.ValidUntil
	}
	validUntil := anchor.AddDate(0, 0, plan.DurationDays)
	if err := s.licenses.Renew(ctx, licenseID, validUntil, now); err != nil {
		return domain.License{}, err
	}
	license.Status = domain.LicenseActive
	license.ValidUntil = &validUntil
	license.UpdatedAt = now
	return license, nil
}

// GetLicense returns one license with its live device count, owner-scoped.
func (s *Service) GetLicense(ctx context.Context, userID, licenseID uuid.UUID) (LicenseView, error) {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return LicenseView{}, err
	}
	if !license.IsOwnedBy(userID) {
		return LicenseView{}, domain.ErrAccessDenied
	}
	active, err := s.activations.CountActive(ctx, licenseID, s.liveAfter(s.nowFn()))
	if err != nil {
		return LicenseView{}, err
	}
	return s.licenseView(license, int(active)), nil
}

// ListMyLicenses lists the caller's licenses with optional filters.
func (s *Service) ListMyLicenses(ctx context.Context, userID uuid.UUID, productID *uuid.UUID, status *domain.LicenseStatus) ([]LicenseView, error) {
	licenses, err := s.licenses.ListByOwner(ctx, userID, productID, status)
	if err != nil {
		return nil, err
	}
	liveAfter := s.liveAfter(s.nowFn())
	views := make([]LicenseView, 0, len(licenses))
	for _, l := range licenses {
		active, err := s.activations.CountActive(ctx, l.LicenseID, liveAfter)
		if err != nil {
			return nil, err
		}
		views = append(views, s.licenseView(l, int(active)))
	}
	return views, nil
}

func (s *Service) licenseView(license domain.License, activeDevices int) LicenseView {
	return LicenseView{
		LicenseID:     license.LicenseID,
		ProductID:     license.ProductID,
		PlanID:        license.PlanID,
		LicenseKey:    license.LicenseKey,
		Status:        license.EffectiveStatus(s.nowFn()),
		MaxDevices:    license.MaxDevices,
		ActiveDevices: activeDevices,
		Entitlements:  license.Entitlements,
		ValidFrom:     license.ValidFrom,
		ValidUntil:    license.ValidUntil,
	}
}

// buildLicense snapshots the plan policy onto a fresh license. Plans with zero
// duration produce perpetual licenses.
func (s *Service) buildLicense(plan domain.LicensePlan, ownerID uuid.UUID, sourceOrder *uuid.UUID, now time.Time) (domain.License, error) {
	key, err := s.hasher.GenerateRandomCode()
	if err != nil {
		return domain.License{}, err
	}
	var validUntil *time.Time
	if plan.DurationDays > 0 {
		until := now.AddDate(0, 0, plan.DurationDays)
		validUntil = &until
	}
	return domain.License{
		LicenseID:    uuid.New(),
		OwnerID:      ownerID,
		ProductID:    plan.ProductID,
		PlanID:       plan.PlanID,
		LicenseKey:   s.hasher.FormatForDisplay(key),
		Status:       domain.LicenseActive,
		MaxDevices:   plan.MaxDevices,
		Entitlements: plan.Entitlements,
		ValidFrom:    now,
		ValidUntil:   validUntil,
		SourceOrder:  sourceOrder,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
