package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// ValidateAndActivate runs the Auto-Resolve protocol: refresh the device's own
// slot if it has one, otherwise take an empty slot, otherwise reclaim one
// stale slot, otherwise hand the conflict to the user. Every slot write is a
// conditional store operation, so a lost race falls through to the next
// candidate instead of double-allocating.
func (s *Service) ValidateAndActivate(ctx context.Context, userID uuid.UUID, req ValidateRequest) (ValidateResult, error) {
	if strings.TrimSpace(req.DeviceFingerprint) == "" {
		return ValidateResult{}, fmt.Errorf("%w: device_fingerprint is required", domain.ErrInvalidRequest)
	}

	candidates, err := s.resolveCandidates(ctx, userID, req.LicenseID, req.ProductID)
	if err != nil {
		return ValidateResult{}, err
	}
	now := s.nowFn()

	// First pass, affinity: a device revalidating its own live slot is a
	// no-op refresh, which keeps validate idempotent under retry.
	for i := range candidates {
		ok, err := s.activations.RefreshHeartbeat(ctx, candidates[i].LicenseID, req.DeviceFingerprint, req.ClientVersion, req.ClientOS, now)
		if err != nil {
			return ValidateResult{}, err
		}
		if ok {
			return s.successResult(ctx, &candidates[i], req.DeviceFingerprint, ResolutionOK, nil, now)
		}
	}

	// First pass, empty slots.
	for i := range candidates {
		_, ok, err := s.activations.AcquireSlot(ctx, s.slotParams(&candidates[i], req, now))
		if err != nil {
			return ValidateResult{}, err
		}
		if ok {
			return s.successResult(ctx, &candidates[i], req.DeviceFingerprint, ResolutionOK, nil, now)
		}
	}

	// Second pass: reclaim the single oldest stale session per license.
	// Exactly one concurrent caller wins the reclaimed row; losing the
	// freed slot to a racer moves on to the next candidate.
	staleBefore := now.Add(-s.cfg.StaleThreshold)
	for i := range candidates {
		reclaimed, ok, err := s.activations.ReclaimStale(ctx, candidates[i].LicenseID, staleBefore, now)
		if err != nil {
			return ValidateResult{}, err
		}
		if !ok {
			continue
		}
		_, acquired, err := s.activations.AcquireSlot(ctx, s.slotParams(&candidates[i], req, now))
		if err != nil {
			return ValidateResult{}, err
		}
		if acquired {
			terminated := &TerminatedSessionInfo{
				DeviceDisplayName: displayNameOrUnknown(reclaimed.DeviceDisplayName),
				LastSeenAt:        reclaimed.LastSeenAt,
			}
			return s.successResult(ctx, &candidates[i], req.DeviceFingerprint, ResolutionAutoRecovered, terminated, now)
		}
	}

	return s.allLicensesFull(ctx, candidates, staleBefore, s.liveAfter(now))
}

// Heartbeat refreshes an existing activation only. Device affinity: the
// candidate list is walked in priority order and the first license the device
// is bound to wins. A slot someone else deactivated fails with
// SESSION_DEACTIVATED so the client knows to re-activate instead of retrying.
func (s *Service) Heartbeat(ctx context.Context, userID uuid.UUID, req ValidateRequest) (ValidateResult, error) {
	if strings.TrimSpace(req.DeviceFingerprint) == "" {
		return ValidateResult{}, fmt.Errorf("%w: device_fingerprint is required", domain.ErrInvalidRequest)
	}

	candidates, err := s.resolveCandidates(ctx, userID, req.LicenseID, req.ProductID)
	if err != nil {
		return ValidateResult{}, err
	}
	now := s.nowFn()

	for i := range candidates {
		activation, err := s.activations.GetByDevice(ctx, candidates[i].LicenseID, req.DeviceFingerprint)
		if errors.Is(err, domain.ErrActivationNotFound) {
			continue
		}
		if err != nil {
			return ValidateResult{}, err
		}
		if activation.Status == domain.ActivationDeactivated {
			return ValidateResult{}, domain.ErrSessionDeactivated
		}
		ok, err := s.activations.RefreshHeartbeat(ctx, candidates[i].LicenseID, req.DeviceFingerprint, req.ClientVersion, req.ClientOS, now)
		if err != nil {
			return ValidateResult{}, err
		}
		if !ok {
			// Deactivated between the read and the conditional write.
			return ValidateResult{}, domain.ErrSessionDeactivated
		}
		return s.successResult(ctx, &candidates[i], req.DeviceFingerprint, ResolutionOK, nil, now)
	}

	return ValidateResult{}, domain.ErrActivationNotFound
}

// ForceValidate kicks the caller-selected sessions off one license, then
// retries activation once. If a racer refills the freed slots first, the
// caller gets the ALL_LICENSES_FULL listing again rather than an opaque error.
func (s *Service) ForceValidate(ctx context.Context, userID uuid.UUID, req ForceValidateRequest) (ValidateResult, error) {
	if strings.TrimSpace(req.DeviceFingerprint) == "" {
		return ValidateResult{}, fmt.Errorf("%w: device_fingerprint is required", domain.ErrInvalidRequest)
	}
	if len(req.DeactivateActivationIDs) == 0 {
		return ValidateResult{}, fmt.Errorf("%w: deactivate_activation_ids is required", domain.ErrInvalidRequest)
	}

	license, err := s.licenses.GetByID(ctx, req.LicenseID)
	if err != nil {
		return ValidateResult{}, err
	}
	if !license.IsOwnedBy(userID) {
		return ValidateResult{}, domain.ErrAccessDenied
	}
	now := s.nowFn()
	if err := license.StatusError(now); err != nil {
		return ValidateResult{}, err
	}

	targets, err := s.activations.GetByIDs(ctx, req.DeactivateActivationIDs)
	if err != nil {
		return ValidateResult{}, err
	}
	byID := make(map[uuid.UUID]domain.Activation, len(targets))
	for _, t := range targets {
		byID[t.ActivationID] = t
	}
	for _, id := range req.DeactivateActivationIDs {
		target, found := byID[id]
		if !found {
			return ValidateResult{}, fmt.Errorf("%w: activation %s", domain.ErrActivationNotFound, id)
		}
		if target.LicenseID != license.LicenseID {
			return ValidateResult{}, fmt.Errorf("%w: activation %s", domain.ErrActivationOwnership, id)
		}
	}

	for _, id := range req.DeactivateActivationIDs {
		if byID[id].Status != domain.ActivationActive {
			continue
		}
		if _, err := s.activations.Deactivate(ctx, id, domain.ReasonForceValidate, now); err != nil {
			return ValidateResult{}, err
		}
	}

	// Single retry of the allocation protocol on this license.
	ok, err := s.activations.RefreshHeartbeat(ctx, license.LicenseID, req.DeviceFingerprint, req.ClientVersion, req.ClientOS, now)
	if err != nil {
		return ValidateResult{}, err
	}
	if !ok {
		_, ok, err = s.activations.AcquireSlot(ctx, s.slotParams(&license, ValidateRequest{
			DeviceFingerprint: req.DeviceFingerprint,
			DeviceDisplayName: req.DeviceDisplayName,
			ClientVersion:     req.ClientVersion,
			ClientOS:          req.ClientOS,
		}, now))
		if err != nil {
			return ValidateResult{}, err
		}
	}
	if ok {
		return s.successResult(ctx, &license, req.DeviceFingerprint, ResolutionOK, nil, now)
	}
	return s.allLicensesFull(ctx, []domain.License{license}, now.Add(-s.cfg.StaleThreshold), s.liveAfter(now))
}

// DeactivateDevice releases the caller's own slot on a license.
func (s *Service) DeactivateDevice(ctx context.Context, userID, licenseID uuid.UUID, fingerprint string) error {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return err
	}
	if !license.IsOwnedBy(userID) {
		return domain.ErrAccessDenied
	}
	activation, err := s.activations.GetByDevice(ctx, licenseID, fingerprint)
	if err != nil {
		return err
	}
	if activation.Status != domain.ActivationActive {
		return nil
	}
	_, err = s.activations.Deactivate(ctx, activation.ActivationID, domain.ReasonUserRequest, s.nowFn())
	return err
}

// resolveCandidates selects the licenses eligible for allocation, ordered
// latest validUntil first (perpetual licenses ahead of dated ones). A pinned
// licenseID narrows to that license after ownership and product checks.
func (s *Service) resolveCandidates(ctx context.Context, userID uuid.UUID, licenseID, productID *uuid.UUID) ([]domain.License, error) {
	now := s.nowFn()

	if licenseID != nil {
		license, err := s.licenses.GetByID(ctx, *licenseID)
		if err != nil {
			return nil, err
		}
		if !license.IsOwnedBy(userID) {
			return nil, domain.ErrAccessDenied
		}
		if productID != nil && license.ProductID != *productID {
			return nil, fmt.Errorf("%w: license does not belong to the requested product", domain.ErrLicenseNotFound)
		}
		if err := license.StatusError(now); err != nil {
			return nil, err
		}
		return []domain.License{license}, nil
	}

	candidates, err := s.licenses.ListCandidates(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	usable := candidates[:0]
	for _, c := range candidates {
		if c.EffectiveStatus(now) == domain.LicenseActive {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		// Distinguish "nothing owned" from "owned but unusable" so the
		// caller gets the precise status error, not a generic not-found.
		all, err := s.licenses.ListByOwner(ctx, userID, productID, nil)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, domain.ErrLicenseNotFound
		}
		return nil, all[0].StatusError(now)
	}
	sortCandidates(usable)
	return usable, nil
}

// sortCandidates orders by latest expiry, treating nil validUntil as furthest.
func sortCandidates(licenses []domain.License) {
	sort.SliceStable(licenses, func(i, j int) bool {
		vi, vj := licenses[i].ValidUntil, licenses[j].ValidUntil
		switch {
		case vi == nil:
			return vj != nil
		case vj == nil:
			return false
		default:
			return vi.After(*vj)
		}
	})
}

func (s *Service) slotParams(license *domain.License, req ValidateRequest, now time.Time) ports.SlotParams {
	return ports.SlotParams{
		LicenseID:         license.LicenseID,
		Capacity:          license.MaxDevices,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceDisplayName: req.DeviceDisplayName,
		ClientVersion:     req.ClientVersion,
		ClientOS:          req.ClientOS,
		LiveAfter:         s.liveAfter(now),
		Now:               now,
	}
}

func (s *Service) successResult(ctx context.Context, license *domain.License, fingerprint string, resolution Resolution, terminated *TerminatedSessionInfo, now time.Time) (ValidateResult, error) {
	productCode := ""
	if plan, err := s.plans.GetByID(ctx, license.PlanID); err == nil {
		productCode = plan.ProductCode
	}
	token, err := s.tokenSigner.SignSessionToken(ports.SessionTokenClaims{
		LicenseID:         license.LicenseID,
		ProductCode:       productCode,
		DeviceFingerprint: fingerprint,
		Entitlements:      license.Entitlements,
	}, s.cfg.SessionTokenTTL)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("sign session token: %w", err)
	}
	return ValidateResult{
		Valid:             true,
		Resolution:        resolution,
		LicenseID:         license.LicenseID,
		Status:            license.EffectiveStatus(now),
		ValidUntil:        license.ValidUntil,
		Entitlements:      license.Entitlements,
		SessionToken:      token,
		TerminatedSession: terminated,
	}, nil
}

// allLicensesFull builds the USER_ACTION_REQUIRED outcome with every live
// session across the candidates, newest activity first, so the user can pick
// one to kick.
func (s *Service) allLicensesFull(ctx context.Context, candidates []domain.License, staleBefore, liveAfter time.Time) (ValidateResult, error) {
	sessions := make([]SessionInfo, 0)
	for _, license := range candidates {
		active, err := s.activations.ListActive(ctx, license.LicenseID, liveAfter)
		if err != nil {
			return ValidateResult{}, err
		}
		planName := "Unknown Plan"
		if plan, planErr := s.plans.GetByID(ctx, license.PlanID); planErr == nil {
			planName = plan.Name
		}
		for _, a := range active {
			sessions = append(sessions, SessionInfo{
				LicenseID:         license.LicenseID,
				PlanName:          planName,
				ActivationID:      a.ActivationID,
				DeviceDisplayName: displayNameOrUnknown(a.DeviceDisplayName),
				DeviceFingerprint: maskFingerprint(a.DeviceFingerprint),
				ClientOS:          a.ClientOS,
				ClientVersion:     a.ClientVersion,
				LastSeenAt:        a.LastSeenAt,
				IsStale:           a.IsStale(staleBefore),
			})
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastSeenAt.After(sessions[j].LastSeenAt)
	})
	return ValidateResult{
		Valid:          false,
		Resolution:     ResolutionUserAction,
		ErrorCode:      domain.ErrAllLicensesFull.Code,
		ActiveSessions: sessions,
	}, nil
}

func displayNameOrUnknown(name string) string {
	if name == "" {
		return "Unknown Device"
	}
	return name
}
