package application

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// fixture wires the service against in-memory stores that mirror the
// conditional-write semantics of the real repositories, so the allocation and
// quota races can be exercised without a database.
type fixture struct {
	service     *Service
	hasher      CodeHasher
	licenses    *fakeLicenses
	activations *fakeActivations
	plans       *fakePlans
	campaigns   *fakeCampaigns
	codes       *fakeCodes
	redemptions *fakeRedemptions
	counters    *fakeCounters
	outbox      *fakeOutbox
	rateLimits  *fakeRateLimits
}

func newFixture() *fixture {
	return newFixtureWithConfig(Config{
		StaleThreshold:      30 * time.Minute,
		SessionTTL:          time.Hour,
		SessionTokenTTL:     15 * time.Minute,
		RedeemRateThreshold: 5,
		RedeemRateWindow:    time.Minute,
	})
}

func newFixtureWithConfig(cfg Config) *fixture {
	f := &fixture{
		hasher:      NewCodeHasher("test-pepper"),
		licenses:    &fakeLicenses{byID: map[uuid.UUID]domain.License{}},
		activations: &fakeActivations{byLicense: map[uuid.UUID]map[string]domain.Activation{}},
		plans:       &fakePlans{byID: map[uuid.UUID]domain.LicensePlan{}},
		campaigns:   &fakeCampaigns{byID: map[uuid.UUID]domain.Campaign{}},
		codes:       &fakeCodes{byID: map[uuid.UUID]domain.Code{}},
		redemptions: &fakeRedemptions{},
		counters:    &fakeCounters{byKey: map[string]domain.UserCampaignCounter{}},
		outbox:      &fakeOutbox{},
		rateLimits:  &fakeRateLimits{counts: map[string]int{}},
	}
	f.service = NewService(Dependencies{
		Config:      cfg,
		Tx:          &fakeTx{},
		Licenses:    f.licenses,
		Activations: f.activations,
		Plans:       f.plans,
		Campaigns:   f.campaigns,
		Codes:       f.codes,
		Redemptions: f.redemptions,
		Counters:    f.counters,
		Outbox:      f.outbox,
		RateLimits:  f.rateLimits,
		TokenSigner: &fakeSigner{},
		Hasher:      f.hasher,
	})
	return f
}

func (f *fixture) seedPlan(maxDevices, durationDays int) domain.LicensePlan {
	plan := domain.LicensePlan{
		PlanID:       uuid.New(),
		Code:         "PRO_ANNUAL",
		Name:         "Pro Annual",
		ProductID:    uuid.New(),
		ProductCode:  "studio",
		MaxDevices:   maxDevices,
		DurationDays: durationDays,
		Entitlements: []string{"export", "render"},
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	f.plans.put(plan)
	return plan
}

func (f *fixture) seedLicense(ownerID uuid.UUID, plan domain.LicensePlan, status domain.LicenseStatus, validUntil *time.Time) domain.License {
	now := time.Now().UTC()
	license := domain.License{
		LicenseID:    uuid.New(),
		OwnerID:      ownerID,
		ProductID:    plan.ProductID,
		PlanID:       plan.PlanID,
		LicenseKey:   "AAAA-BBBB-CCCC-DDDD",
		Status:       status,
		MaxDevices:   plan.MaxDevices,
		Entitlements: plan.Entitlements,
		ValidFrom:    now.Add(-time.Hour),
		ValidUntil:   validUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.licenses.put(license)
	return license
}

func (f *fixture) seedActivation(licenseID uuid.UUID, fingerprint, displayName string, lastSeen time.Time) domain.Activation {
	a := domain.Activation{
		ActivationID:      uuid.New(),
		LicenseID:         licenseID,
		DeviceFingerprint: fingerprint,
		DeviceDisplayName: displayName,
		Status:            domain.ActivationActive,
		LastSeenAt:        lastSeen,
		CreatedAt:         lastSeen,
	}
	f.activations.put(a)
	return a
}

func (f *fixture) seedCampaign(plan domain.LicensePlan, seatLimit *int, perUserLimit int) domain.Campaign {
	now := time.Now().UTC()
	campaign := domain.Campaign{
		CampaignID:   uuid.New(),
		Name:         "Launch Promo",
		ProductID:    plan.ProductID,
		PlanID:       plan.PlanID,
		SeatLimit:    seatLimit,
		PerUserLimit: perUserLimit,
		Status:       domain.CampaignActive,
		CreatedBy:    uuid.New(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.campaigns.put(campaign)
	return campaign
}

func (f *fixture) seedCode(campaignID uuid.UUID, plaintext string, maxRedemptions int) domain.Code {
	now := time.Now().UTC()
	normalized, _ := f.hasher.Normalize(plaintext)
	code := domain.Code{
		CodeID:         uuid.New(),
		CampaignID:     campaignID,
		CodeHash:       f.hasher.Hash(normalized),
		CodeType:       domain.CodeTypeReusable,
		MaxRedemptions: maxRedemptions,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.codes.put(code)
	return code
}

type fakeTx struct{}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeLicenses struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.License
}

func (f *fakeLicenses) put(l domain.License) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[l.LicenseID] = l
}

func (f *fakeLicenses) get(id uuid.UUID) domain.License {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeLicenses) Create(_ context.Context, license domain.License) (domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.OwnerID == license.OwnerID && existing.ProductID == license.ProductID &&
			existing.Status != domain.LicenseRevoked {
			return domain.License{}, domain.ErrLicenseAlreadyExists
		}
	}
	f.byID[license.LicenseID] = license
	return license, nil
}

func (f *fakeLicenses) GetByID(_ context.Context, licenseID uuid.UUID) (domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.byID[licenseID]
	if !ok {
		return domain.License{}, domain.ErrLicenseNotFound
	}
	return l, nil
}

func (f *fakeLicenses) GetBySourceOrder(_ context.Context, orderID uuid.UUID) (domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.byID {
		if l.SourceOrder != nil && *l.SourceOrder == orderID {
			return l, nil
		}
	}
	return domain.License{}, domain.ErrLicenseNotFound
}

func (f *fakeLicenses) FindNonRevokedByOwnerAndProduct(_ context.Context, ownerID, productID uuid.UUID) (domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.byID {
		if l.OwnerID == ownerID && l.ProductID == productID && l.Status != domain.LicenseRevoked {
			return l, nil
		}
	}
	return domain.License{}, domain.ErrLicenseNotFound
}

func (f *fakeLicenses) ListByOwner(_ context.Context, ownerID uuid.UUID, productID *uuid.UUID, status *domain.LicenseStatus) ([]domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.License
	for _, l := range f.byID {
		if l.OwnerID != ownerID {
			continue
		}
		if productID != nil && l.ProductID != *productID {
			continue
		}
		if status != nil && l.Status != *status {
			continue
		}
		out = append(out, l)
	}
	sortByValidUntil(out)
	return out, nil
}

func (f *fakeLicenses) ListCandidates(_ context.Context, ownerID uuid.UUID, productID *uuid.UUID) ([]domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.License
	for _, l := range f.byID {
		if l.OwnerID != ownerID || l.Status != domain.LicenseActive {
			continue
		}
		if productID != nil && l.ProductID != *productID {
			continue
		}
		out = append(out, l)
	}
	sortByValidUntil(out)
	return out, nil
}

func sortByValidUntil(licenses []domain.License) {
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

func (f *fakeLicenses) UpdateStatus(_ context.Context, licenseID uuid.UUID, status domain.LicenseStatus, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.byID[licenseID]
	if !ok {
		return domain.ErrLicenseNotFound
	}
	l.Status = status
	l.StatusReason = reason
	l.UpdatedAt = at
	f.byID[licenseID] = l
	return nil
}

func (f *fakeLicenses) Renew(_ context.Context, licenseID uuid.UUID, validUntil time.Time, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.byID[licenseID]
	if !ok || l.Status == domain.LicenseRevoked {
		return domain.ErrLicenseNotFound
	}
	l.Status = domain.LicenseActive
	l.StatusReason = ""
	l.ValidUntil = &validUntil
	l.UpdatedAt = at
	f.byID[licenseID] = l
	return nil
}

// fakeActivations keeps one row per (license, fingerprint). Allocation is
// two-phase like the store's statements, a capacity snapshot followed by the
// write, and is serialized per license the way the store locks the license
// row for the duration of the attempt.
type fakeActivations struct {
	mu        sync.Mutex
	byLicense map[uuid.UUID]map[string]domain.Activation

	allocMu   sync.Mutex
	allocLock map[uuid.UUID]*sync.Mutex
}

// rowLock models the exclusive license-row lock allocators take.
func (f *fakeActivations) rowLock(licenseID uuid.UUID) *sync.Mutex {
	f.allocMu.Lock()
	defer f.allocMu.Unlock()
	if f.allocLock == nil {
		f.allocLock = map[uuid.UUID]*sync.Mutex{}
	}
	lock := f.allocLock[licenseID]
	if lock == nil {
		lock = &sync.Mutex{}
		f.allocLock[licenseID] = lock
	}
	return lock
}

func (f *fakeActivations) put(a domain.Activation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.byLicense[a.LicenseID]
	if rows == nil {
		rows = map[string]domain.Activation{}
		f.byLicense[a.LicenseID] = rows
	}
	rows[a.DeviceFingerprint] = a
}

func (f *fakeActivations) get(licenseID uuid.UUID, fingerprint string) (domain.Activation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byLicense[licenseID][fingerprint]
	return a, ok
}

func (f *fakeActivations) liveCountLocked(licenseID uuid.UUID, liveAfter time.Time) int {
	count := 0
	for _, a := range f.byLicense[licenseID] {
		if a.Status == domain.ActivationActive && !a.LastSeenAt.Before(liveAfter) {
			count++
		}
	}
	return count
}

func (f *fakeActivations) AcquireSlot(_ context.Context, params ports.SlotParams) (domain.Activation, bool, error) {
	rowLock := f.rowLock(params.LicenseID)
	rowLock.Lock()
	defer rowLock.Unlock()

	f.mu.Lock()
	existing, found := f.byLicense[params.LicenseID][params.DeviceFingerprint]
	if found && existing.Status == domain.ActivationActive {
		// Mirrors ON CONFLICT DO NOTHING: the live row is untouched and the
		// caller loses; RefreshHeartbeat is the path for a live own slot.
		f.mu.Unlock()
		return domain.Activation{}, false, nil
	}
	live := f.liveCountLocked(params.LicenseID, params.LiveAfter)
	f.mu.Unlock()

	// The capacity snapshot and the write are distinct steps on purpose; the
	// yield widens the window an unserialized racer would slip through.
	runtime.Gosched()
	if live >= params.Capacity {
		return domain.Activation{}, false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.byLicense[params.LicenseID]
	if rows == nil {
		rows = map[string]domain.Activation{}
		f.byLicense[params.LicenseID] = rows
	}
	if found {
		existing.Status = domain.ActivationActive
		existing.DeviceDisplayName = params.DeviceDisplayName
		existing.ClientVersion = params.ClientVersion
		existing.ClientOS = params.ClientOS
		existing.LastSeenAt = params.Now
		existing.DeactivatedReason = ""
		rows[params.DeviceFingerprint] = existing
		return existing, true, nil
	}
	a := domain.Activation{
		ActivationID:      uuid.New(),
		LicenseID:         params.LicenseID,
		DeviceFingerprint: params.DeviceFingerprint,
		DeviceDisplayName: params.DeviceDisplayName,
		ClientVersion:     params.ClientVersion,
		ClientOS:          params.ClientOS,
		Status:            domain.ActivationActive,
		LastSeenAt:        params.Now,
		CreatedAt:         params.Now,
	}
	rows[params.DeviceFingerprint] = a
	return a, true, nil
}

func (f *fakeActivations) RefreshHeartbeat(_ context.Context, licenseID uuid.UUID, fingerprint, clientVersion, clientOS string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byLicense[licenseID][fingerprint]
	if !ok || a.Status != domain.ActivationActive {
		return false, nil
	}
	a.LastSeenAt = now
	if clientVersion != "" {
		a.ClientVersion = clientVersion
	}
	if clientOS != "" {
		a.ClientOS = clientOS
	}
	f.byLicense[licenseID][fingerprint] = a
	return true, nil
}

func (f *fakeActivations) ReclaimStale(_ context.Context, licenseID uuid.UUID, threshold, now time.Time) (domain.Activation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *domain.Activation
	for _, a := range f.byLicense[licenseID] {
		if a.Status != domain.ActivationActive || !a.LastSeenAt.Before(threshold) {
			continue
		}
		candidate := a
		if oldest == nil || candidate.LastSeenAt.Before(oldest.LastSeenAt) {
			oldest = &candidate
		}
	}
	if oldest == nil {
		return domain.Activation{}, false, nil
	}
	oldest.Status = domain.ActivationDeactivated
	oldest.DeactivatedReason = domain.ReasonAutoResolveStale
	f.byLicense[licenseID][oldest.DeviceFingerprint] = *oldest
	return *oldest, true, nil
}

func (f *fakeActivations) Deactivate(_ context.Context, activationID uuid.UUID, reason string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for licenseID, rows := range f.byLicense {
		for fp, a := range rows {
			if a.ActivationID != activationID {
				continue
			}
			if a.Status != domain.ActivationActive {
				return false, nil
			}
			a.Status = domain.ActivationDeactivated
			a.DeactivatedReason = reason
			f.byLicense[licenseID][fp] = a
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeActivations) DeactivateAllForLicense(_ context.Context, licenseID uuid.UUID, reason string, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var swept int64
	for fp, a := range f.byLicense[licenseID] {
		if a.Status != domain.ActivationActive {
			continue
		}
		a.Status = domain.ActivationDeactivated
		a.DeactivatedReason = reason
		f.byLicense[licenseID][fp] = a
		swept++
	}
	return swept, nil
}

func (f *fakeActivations) GetByDevice(_ context.Context, licenseID uuid.UUID, fingerprint string) (domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byLicense[licenseID][fingerprint]
	if !ok {
		return domain.Activation{}, domain.ErrActivationNotFound
	}
	return a, nil
}

func (f *fakeActivations) GetByIDs(_ context.Context, activationIDs []uuid.UUID) ([]domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(activationIDs))
	for _, id := range activationIDs {
		wanted[id] = true
	}
	var out []domain.Activation
	for _, rows := range f.byLicense {
		for _, a := range rows {
			if wanted[a.ActivationID] {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeActivations) ListActive(_ context.Context, licenseID uuid.UUID, liveAfter time.Time) ([]domain.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Activation
	for _, a := range f.byLicense[licenseID] {
		if a.Status == domain.ActivationActive && !a.LastSeenAt.Before(liveAfter) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func (f *fakeActivations) CountActive(_ context.Context, licenseID uuid.UUID, liveAfter time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.liveCountLocked(licenseID, liveAfter)), nil
}

type fakePlans struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.LicensePlan
}

func (f *fakePlans) put(p domain.LicensePlan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.PlanID] = p
}

func (f *fakePlans) GetByID(_ context.Context, planID uuid.UUID) (domain.LicensePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[planID]
	if !ok {
		return domain.LicensePlan{}, domain.ErrPlanNotFound
	}
	return p, nil
}

func (f *fakePlans) GetAvailableByID(ctx context.Context, planID uuid.UUID) (domain.LicensePlan, error) {
	p, err := f.GetByID(ctx, planID)
	if err != nil {
		return domain.LicensePlan{}, err
	}
	if !p.IsActive {
		return domain.LicensePlan{}, domain.ErrPlanNotAvailable
	}
	return p, nil
}

type fakeCampaigns struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Campaign
}

func (f *fakeCampaigns) put(c domain.Campaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.CampaignID] = c
}

func (f *fakeCampaigns) get(id uuid.UUID) domain.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeCampaigns) Create(_ context.Context, campaign domain.Campaign) (domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[campaign.CampaignID] = campaign
	return campaign, nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, campaignID uuid.UUID) (domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[campaignID]
	if !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return c, nil
}

func (f *fakeCampaigns) Update(_ context.Context, campaign domain.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[campaign.CampaignID]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	// seats_used only moves through IncrementSeatsUsed.
	campaign.SeatsUsed = stored.SeatsUsed
	f.byID[campaign.CampaignID] = campaign
	return nil
}

func (f *fakeCampaigns) List(_ context.Context, status *domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Campaign
	for _, c := range f.byID {
		if status != nil && c.Status != *status {
			continue
		}
		all = append(all, c)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeCampaigns) IncrementSeatsUsed(_ context.Context, campaignID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[campaignID]
	if !ok || c.Status != domain.CampaignActive {
		return false, nil
	}
	if c.SeatLimit != nil && c.SeatsUsed >= *c.SeatLimit {
		return false, nil
	}
	c.SeatsUsed++
	f.byID[campaignID] = c
	return true, nil
}

type fakeCodes struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Code
}

func (f *fakeCodes) put(c domain.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.CodeID] = c
}

func (f *fakeCodes) get(id uuid.UUID) domain.Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeCodes) Create(_ context.Context, code domain.Code) (domain.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.CodeHash == code.CodeHash {
			return domain.Code{}, domain.ErrCodeHashDuplicate
		}
	}
	f.byID[code.CodeID] = code
	return code, nil
}

func (f *fakeCodes) GetByID(_ context.Context, codeID uuid.UUID) (domain.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[codeID]
	if !ok {
		return domain.Code{}, domain.ErrCodeNotFound
	}
	return c, nil
}

func (f *fakeCodes) GetByHash(_ context.Context, codeHash string) (domain.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.CodeHash == codeHash {
			return c, nil
		}
	}
	return domain.Code{}, domain.ErrCodeNotFound
}

func (f *fakeCodes) ExistsByHash(_ context.Context, codeHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.CodeHash == codeHash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCodes) ListByCampaign(_ context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.Code, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Code
	for _, c := range f.byID {
		if c.CampaignID == campaignID {
			all = append(all, c)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeCodes) CountByCampaign(_ context.Context, campaignID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, c := range f.byID {
		if c.CampaignID == campaignID {
			count++
		}
	}
	return count, nil
}

func (f *fakeCodes) IncrementRedemptions(_ context.Context, codeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[codeID]
	if !ok || !c.Active || c.CurrentRedemptions >= c.MaxRedemptions {
		return false, nil
	}
	c.CurrentRedemptions++
	f.byID[codeID] = c
	return true, nil
}

func (f *fakeCodes) Deactivate(_ context.Context, codeID uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[codeID]
	if !ok {
		return domain.ErrCodeNotFound
	}
	c.Active = false
	c.UpdatedAt = now
	f.byID[codeID] = c
	return nil
}

type fakeRedemptions struct {
	mu   sync.Mutex
	rows []domain.Redemption
}

func (f *fakeRedemptions) Insert(_ context.Context, redemption domain.Redemption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, redemption)
	return nil
}

func (f *fakeRedemptions) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Redemption
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RedeemedAt.After(out[j].RedeemedAt)
	})
	return out, nil
}

type fakeCounters struct {
	mu    sync.Mutex
	byKey map[string]domain.UserCampaignCounter
}

func counterKey(userID, campaignID uuid.UUID) string {
	return userID.String() + "|" + campaignID.String()
}

func (f *fakeCounters) GetForUpdate(_ context.Context, userID, campaignID uuid.UUID) (domain.UserCampaignCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := counterKey(userID, campaignID)
	c, ok := f.byKey[key]
	if !ok {
		c = domain.UserCampaignCounter{CounterID: uuid.New(), UserID: userID, CampaignID: campaignID}
		f.byKey[key] = c
	}
	return c, nil
}

func (f *fakeCounters) Increment(_ context.Context, counterID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, c := range f.byKey {
		if c.CounterID == counterID {
			c.Count++
			f.byKey[key] = c
			return nil
		}
	}
	return domain.ErrCampaignNotFound
}

func (f *fakeCounters) count(userID, campaignID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byKey[counterKey(userID, campaignID)].Count
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeRateLimits struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeRateLimits) Allow(_ context.Context, key string, threshold int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key] <= threshold, nil
}

type fakeSigner struct{}

func (f *fakeSigner) VerifyAuthToken(string) (ports.AuthClaims, error) {
	return ports.AuthClaims{UserID: uuid.New(), Role: "USER"}, nil
}

func (f *fakeSigner) SignSessionToken(claims ports.SessionTokenClaims, _ time.Duration) (string, error) {
	return "session-" + claims.LicenseID.String(), nil
}
