package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func TestCreateCampaignValidation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	admin := uuid.New()
	plan := f.seedPlan(2, 30)

	view, err := f.service.CreateCampaign(ctx, admin, CampaignRequest{
		Name:         "Spring Launch",
		ProductID:    plan.ProductID,
		PlanID:       plan.PlanID,
		PerUserLimit: 1,
	})
	if err != nil {
		t.Fatalf("create campaign failed: %v", err)
	}
	if view.Status != domain.CampaignActive || view.SeatsUsed != 0 {
		t.Fatalf("new campaign must start ACTIVE and empty, got %+v", view)
	}

	if _, err := f.service.CreateCampaign(ctx, admin, CampaignRequest{
		ProductID: plan.ProductID,
		PlanID:    plan.PlanID,
	}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("missing name should fail, got %v", err)
	}

	zero := 0
	if _, err := f.service.CreateCampaign(ctx, admin, CampaignRequest{
		Name:      "Bad Seats",
		ProductID: plan.ProductID,
		PlanID:    plan.PlanID,
		SeatLimit: &zero,
	}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("zero seat limit should fail, got %v", err)
	}

	if _, err := f.service.CreateCampaign(ctx, admin, CampaignRequest{
		Name:      "Wrong Product",
		ProductID: uuid.New(),
		PlanID:    plan.PlanID,
	}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("plan/product mismatch should fail, got %v", err)
	}
}

func TestUpdateCampaignSeatLimitFloor(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 30)
	seats := 10
	campaign := f.seedCampaign(plan, &seats, 0)

	stored := f.campaigns.get(campaign.CampaignID)
	stored.SeatsUsed = 4
	f.campaigns.put(stored)

	three := 3
	if _, err := f.service.UpdateCampaign(ctx, campaign.CampaignID, CampaignRequest{
		Name:      campaign.Name,
		SeatLimit: &three,
	}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("seat limit below seats used must fail, got %v", err)
	}

	twenty := 20
	view, err := f.service.UpdateCampaign(ctx, campaign.CampaignID, CampaignRequest{
		Name:         "Renamed Promo",
		SeatLimit:    &twenty,
		PerUserLimit: 2,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if view.Name != "Renamed Promo" || view.SeatLimit == nil || *view.SeatLimit != 20 {
		t.Fatalf("update not applied: %+v", view)
	}
	if view.SeatsUsed != 4 {
		t.Fatalf("update must not touch seats used, got %d", view.SeatsUsed)
	}
}

func TestCampaignLifecycleTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 30)
	campaign := f.seedCampaign(plan, nil, 0)

	view, err := f.service.PauseCampaign(ctx, campaign.CampaignID)
	if err != nil || view.Status != domain.CampaignPaused {
		t.Fatalf("pause failed: %v / %+v", err, view)
	}
	view, err = f.service.ResumeCampaign(ctx, campaign.CampaignID)
	if err != nil || view.Status != domain.CampaignActive {
		t.Fatalf("resume failed: %v / %+v", err, view)
	}
	view, err = f.service.EndCampaign(ctx, campaign.CampaignID)
	if err != nil || view.Status != domain.CampaignEnded {
		t.Fatalf("end failed: %v / %+v", err, view)
	}
	if _, err := f.service.ResumeCampaign(ctx, campaign.CampaignID); !errors.Is(err, domain.ErrCampaignNotActive) {
		t.Fatalf("ended campaign must stay ended, got %v", err)
	}
	if _, err := f.service.UpdateCampaign(ctx, campaign.CampaignID, CampaignRequest{Name: "Zombie"}); !errors.Is(err, domain.ErrCampaignNotActive) {
		t.Fatalf("ended campaign must reject edits, got %v", err)
	}
}

func TestGenerateRandomCodes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 30)
	campaign := f.seedCampaign(plan, nil, 0)

	resp, err := f.service.GenerateCodes(ctx, campaign.CampaignID, CodeGenerateRequest{
		CodeType:       domain.CodeTypeRandom,
		Count:          5,
		MaxRedemptions: 1,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Count != 5 || len(resp.Codes) != 5 {
		t.Fatalf("expected 5 plaintext codes, got %+v", resp)
	}
	for _, display := range resp.Codes {
		if len(display) != 19 {
			t.Fatalf("random code not in display form: %q", display)
		}
	}

	// Each minted plaintext is claimable exactly once.
	if _, err := f.service.RedeemClaim(ctx, uuid.New(), RedeemClaimRequest{Code: resp.Codes[0]}); err != nil {
		t.Fatalf("minted code must redeem: %v", err)
	}
	if _, err := f.service.RedeemClaim(ctx, uuid.New(), RedeemClaimRequest{Code: resp.Codes[0]}); !errors.Is(err, domain.ErrCodeDepleted) {
		t.Fatalf("single-use code must deplete, got %v", err)
	}

	listing, err := f.service.ListCodes(ctx, campaign.CampaignID, PageQuery{})
	if err != nil || listing.Total != 5 {
		t.Fatalf("expected 5 stored codes, got %v / %v", listing.Total, err)
	}

	if _, err := f.service.GenerateCodes(ctx, campaign.CampaignID, CodeGenerateRequest{
		CodeType:       domain.CodeTypeRandom,
		Count:          maxCodeGenerateCount + 1,
		MaxRedemptions: 1,
	}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("oversized batch should fail, got %v", err)
	}
}

func TestCreateReusableCode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 30)
	campaign := f.seedCampaign(plan, nil, 0)

	resp, err := f.service.GenerateCodes(ctx, campaign.CampaignID, CodeGenerateRequest{
		CodeType:       domain.CodeTypeReusable,
		CustomCode:     "summer-2026-promo",
		MaxRedemptions: 100,
	})
	if err != nil {
		t.Fatalf("reusable code failed: %v", err)
	}
	if resp.Count != 1 || resp.Codes[0] != "SUMMER2026PROMO" {
		t.Fatalf("expected normalized plaintext back, got %+v", resp)
	}

	// The same code in any input form collides on the stored hash.
	if _, err := f.service.GenerateCodes(ctx, campaign.CampaignID, CodeGenerateRequest{
		CodeType:       domain.CodeTypeReusable,
		CustomCode:     "SUMMER 2026 PROMO",
		MaxRedemptions: 1,
	}); !errors.Is(err, domain.ErrCodeHashDuplicate) {
		t.Fatalf("duplicate hash should fail, got %v", err)
	}

	if _, err := f.service.RedeemClaim(ctx, uuid.New(), RedeemClaimRequest{Code: "summer 2026 promo"}); err != nil {
		t.Fatalf("reusable code must redeem from any form: %v", err)
	}
}

func TestDeactivateCodeStopsRedemption(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 30)
	campaign := f.seedCampaign(plan, nil, 0)
	code := f.seedCode(campaign.CampaignID, "KILLSWITCH", 100)

	if err := f.service.DeactivateCode(ctx, code.CodeID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := f.service.RedeemClaim(ctx, uuid.New(), RedeemClaimRequest{Code: "KILLSWITCH"}); !errors.Is(err, domain.ErrCodeDisabled) {
		t.Fatalf("deactivated code must be disabled, got %v", err)
	}
	if err := f.service.DeactivateCode(ctx, uuid.New()); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("unknown code should be not-found, got %v", err)
	}
}

func TestIssueLicenseOnePerProduct(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(3, 365)
	owner := uuid.New()
	order := uuid.New()

	issued, err := f.service.IssueLicense(ctx, IssueLicenseRequest{
		OwnerID:       owner,
		PlanID:        plan.PlanID,
		SourceOrderID: &order,
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if issued.Status != domain.LicenseActive || issued.MaxDevices != 3 {
		t.Fatalf("issued license malformed: %+v", issued)
	}
	if issued.ValidUntil == nil {
		t.Fatalf("365-day plan must produce a dated license")
	}

	if _, err := f.service.IssueLicense(ctx, IssueLicenseRequest{
		OwnerID: owner,
		PlanID:  plan.PlanID,
	}); !errors.Is(err, domain.ErrLicenseAlreadyExists) {
		t.Fatalf("second issue for same product should fail, got %v", err)
	}

	// After revocation a fresh license can be issued again.
	if err := f.service.RevokeLicense(ctx, issued.LicenseID, "refund"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := f.service.IssueLicense(ctx, IssueLicenseRequest{
		OwnerID: owner,
		PlanID:  plan.PlanID,
	}); err != nil {
		t.Fatalf("issue after revoke failed: %v", err)
	}
}

func TestSuspendResumeRevokeLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 365)
	owner := uuid.New()
	license := f.seedLicense(owner, plan, domain.LicenseActive, nil)

	if err := f.service.SuspendLicense(ctx, license.LicenseID, "payment overdue"); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if got := f.licenses.get(license.LicenseID); got.Status != domain.LicenseSuspended || got.StatusReason != "payment overdue" {
		t.Fatalf("suspend not recorded: %+v", got)
	}
	if err := f.service.SuspendLicense(ctx, license.LicenseID, "again"); !errors.Is(err, domain.ErrInvalidLicenseState) {
		t.Fatalf("double suspend should fail, got %v", err)
	}

	if err := f.service.ResumeLicense(ctx, license.LicenseID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if got := f.licenses.get(license.LicenseID); got.Status != domain.LicenseActive {
		t.Fatalf("resume not recorded: %+v", got)
	}

	if err := f.service.RevokeLicense(ctx, license.LicenseID, "chargeback"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	// Revoke is terminal and idempotent.
	if err := f.service.RevokeLicense(ctx, license.LicenseID, "chargeback"); err != nil {
		t.Fatalf("repeat revoke should be a no-op, got %v", err)
	}
	if err := f.service.ResumeLicense(ctx, license.LicenseID); !errors.Is(err, domain.ErrInvalidLicenseState) {
		t.Fatalf("revoked license must not resume, got %v", err)
	}

	sawRevoked := false
	for _, eventType := range f.outbox.eventTypes() {
		if eventType == EventLicenseRevoked {
			sawRevoked = true
		}
	}
	if !sawRevoked {
		t.Fatalf("revocation must emit license.revoked")
	}
}

func TestRevokeBySourceOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 365)
	owner := uuid.New()
	order := uuid.New()

	issued, err := f.service.IssueLicense(ctx, IssueLicenseRequest{
		OwnerID:       owner,
		PlanID:        plan.PlanID,
		SourceOrderID: &order,
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if err := f.service.RevokeBySourceOrder(ctx, order, "refund"); err != nil {
		t.Fatalf("revoke by order failed: %v", err)
	}
	if got := f.licenses.get(issued.LicenseID); got.Status != domain.LicenseRevoked {
		t.Fatalf("license not revoked: %+v", got)
	}
	if err := f.service.RevokeBySourceOrder(ctx, uuid.New(), "refund"); !errors.Is(err, domain.ErrLicenseNotFound) {
		t.Fatalf("unknown order should be not-found, got %v", err)
	}
}

func TestRenewLicenseAnchorsAtFutureExpiry(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 30)
	owner := uuid.New()

	future := time.Now().UTC().Add(5 * 24 * time.Hour)
	license := f.seedLicense(owner, plan, domain.LicenseActive, &future)

	renewed, err := f.service.RenewLicense(ctx, license.LicenseID)
	if err != nil {
		t.Fatalf("renew failed: %v", err)
	}
	want := future.AddDate(0, 0, 30)
	if renewed.ValidUntil == nil || !renewed.ValidUntil.Equal(want) {
		t.Fatalf("validUntil = %v, want %v", renewed.ValidUntil, want)
	}

	// A lapsed license re-anchors at now and reactivates.
	past := time.Now().UTC().Add(-24 * time.Hour)
	lapsed := f.seedLicense(uuid.New(), plan, domain.LicenseExpired, &past)
	renewed, err = f.service.RenewLicense(ctx, lapsed.LicenseID)
	if err != nil {
		t.Fatalf("renew lapsed failed: %v", err)
	}
	if renewed.Status != domain.LicenseActive || !renewed.ValidUntil.After(time.Now().UTC()) {
		t.Fatalf("lapsed license not reactivated: %+v", renewed)
	}

	revoked := f.seedLicense(uuid.New(), plan, domain.LicenseRevoked, nil)
	if _, err := f.service.RenewLicense(ctx, revoked.LicenseID); !errors.Is(err, domain.ErrLicenseRevoked) {
		t.Fatalf("revoked license must not renew, got %v", err)
	}
}

func TestGetAndListLicensesOwnerScoped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(2, 365)
	owner := uuid.New()
	license := f.seedLicense(owner, plan, domain.LicenseActive, nil)
	f.seedActivation(license.LicenseID, "fp-counted", "Laptop", time.Now().UTC())

	view, err := f.service.GetLicense(ctx, owner, license.LicenseID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if view.ActiveDevices != 1 || view.MaxDevices != 2 {
		t.Fatalf("device counts wrong: %+v", view)
	}

	if _, err := f.service.GetLicense(ctx, uuid.New(), license.LicenseID); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("foreign get must be denied, got %v", err)
	}

	views, err := f.service.ListMyLicenses(ctx, owner, nil, nil)
	if err != nil || len(views) != 1 {
		t.Fatalf("expected one license, got %v / %v", views, err)
	}
	active := domain.LicenseSuspended
	views, err = f.service.ListMyLicenses(ctx, owner, nil, &active)
	if err != nil || len(views) != 0 {
		t.Fatalf("status filter ignored: %v / %v", views, err)
	}
}

func TestRevokeLicenseSweepsActiveSlots(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	plan := f.seedPlan(3, 365)
	owner := uuid.New()
	license := f.seedLicense(owner, plan, domain.LicenseActive, nil)
	f.seedActivation(license.LicenseID, "fp-desktop", "Desktop", time.Now().UTC())
	f.seedActivation(license.LicenseID, "fp-laptop", "Laptop", time.Now().UTC())

	if err := f.service.RevokeLicense(ctx, license.LicenseID, "chargeback"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	for _, fp := range []string{"fp-desktop", "fp-laptop"} {
		a, _ := f.activations.get(license.LicenseID, fp)
		if a.Status != domain.ActivationDeactivated || a.DeactivatedReason != domain.ReasonLicenseRevoked {
			t.Fatalf("slot %s survived revocation: %+v", fp, a)
		}
	}
	count, _ := f.activations.CountActive(ctx, license.LicenseID, time.Time{})
	if count != 0 {
		t.Fatalf("revoked license still holds %d active slots", count)
	}
}
