package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// TxManager scopes a function to one store transaction. Repository calls made
// with the ctx it passes join that transaction, so a failed step rolls back
// every earlier write (the redeem claim depends on this).
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LicenseRepository defines persistence for license aggregates.
// Licenses are append-and-transition only; there is no delete.
type LicenseRepository interface {
	Create(ctx context.Context, license domain.License) (domain.License, error)
	GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error)
	GetBySourceOrder(ctx context.Context, orderID uuid.UUID) (domain.License, error)
	// FindNonRevokedByOwnerAndProduct backs the LICENSE_ALREADY_EXISTS guard
	// on issuance.
	FindNonRevokedByOwnerAndProduct(ctx context.Context, ownerID, productID uuid.UUID) (domain.License, error)
	// ListByOwner returns the caller's licenses with optional product/status
	// filters, newest validUntil first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, productID *uuid.UUID, status *domain.LicenseStatus) ([]domain.License, error)
	// ListCandidates returns the ACTIVE licenses eligible for slot allocation.
	ListCandidates(ctx context.Context, ownerID uuid.UUID, productID *uuid.UUID) ([]domain.License, error)
	UpdateStatus(ctx context.Context, licenseID uuid.UUID, status domain.LicenseStatus, reason string, at time.Time) error
	Renew(ctx context.Context, licenseID uuid.UUID, validUntil time.Time, at time.Time) error
}

// SlotParams carries everything a conditional slot write needs. Capacity is
// passed in rather than re-read so the predicate matches the license the
// caller just validated. LiveAfter is the session-liveness cutoff: only
// activations seen at or after it count against capacity.
type SlotParams struct {
	LicenseID         uuid.UUID
	Capacity          int
	DeviceFingerprint string
	DeviceDisplayName string
	ClientVersion     string
	ClientOS          string
	LiveAfter         time.Time
	Now               time.Time
}

// ActivationRepository manages license slots. Every mutating method is a
// conditional write: the boolean result reports whether this caller won the
// row, so racing allocators fall through instead of double-granting.
type ActivationRepository interface {
	// AcquireSlot creates (or reactivates) an activation for the device if
	// and only if the license still has a free slot at write time. The
	// implementation must serialize concurrent allocators on the same
	// license so that two racers can never both observe the last free slot.
	AcquireSlot(ctx context.Context, params SlotParams) (domain.Activation, bool, error)
	// RefreshHeartbeat bumps last_seen_at on the device's ACTIVE activation.
	// It never creates rows; false means no active slot exists for the device.
	RefreshHeartbeat(ctx context.Context, licenseID uuid.UUID, fingerprint, clientVersion, clientOS string, now time.Time) (bool, error)
	// ReclaimStale deactivates the single oldest activation whose heartbeat
	// predates threshold. Exactly one concurrent caller wins the row.
	ReclaimStale(ctx context.Context, licenseID uuid.UUID, threshold, now time.Time) (domain.Activation, bool, error)
	// Deactivate terminates one activation; false when it was not ACTIVE.
	Deactivate(ctx context.Context, activationID uuid.UUID, reason string, now time.Time) (bool, error)
	// DeactivateAllForLicense sweeps every ACTIVE activation on a license,
	// returning how many rows it terminated. Revocation uses this so a
	// revoked license never keeps live device slots.
	DeactivateAllForLicense(ctx context.Context, licenseID uuid.UUID, reason string, now time.Time) (int64, error)
	GetByDevice(ctx context.Context, licenseID uuid.UUID, fingerprint string) (domain.Activation, error)
	GetByIDs(ctx context.Context, activationIDs []uuid.UUID) ([]domain.Activation, error)
	// ListActive and CountActive see only live sessions: ACTIVE rows whose
	// heartbeat is at or after liveAfter.
	ListActive(ctx context.Context, licenseID uuid.UUID, liveAfter time.Time) ([]domain.Activation, error)
	CountActive(ctx context.Context, licenseID uuid.UUID, liveAfter time.Time) (int64, error)
}

// PlanRepository reads license plans used by provisioning and campaigns.
type PlanRepository interface {
	GetByID(ctx context.Context, planID uuid.UUID) (domain.LicensePlan, error)
	GetAvailableByID(ctx context.Context, planID uuid.UUID) (domain.LicensePlan, error)
}

// CampaignRepository persists redeem campaigns. IncrementSeatsUsed is the
// conditional atomic increment from the concurrency model: the WHERE clause
// re-checks seat availability at write time and false reports a lost race.
type CampaignRepository interface {
	Create(ctx context.Context, campaign domain.Campaign) (domain.Campaign, error)
	GetByID(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error)
	Update(ctx context.Context, campaign domain.Campaign) error
	List(ctx context.Context, status *domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int64, error)
	IncrementSeatsUsed(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// CodeRepository persists redeem codes; only hashes are ever stored.
type CodeRepository interface {
	Create(ctx context.Context, code domain.Code) (domain.Code, error)
	GetByID(ctx context.Context, codeID uuid.UUID) (domain.Code, error)
	GetByHash(ctx context.Context, codeHash string) (domain.Code, error)
	ExistsByHash(ctx context.Context, codeHash string) (bool, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.Code, int64, error)
	CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)
	// IncrementRedemptions is conditional on the code still being active and
	// below max_redemptions at write time.
	IncrementRedemptions(ctx context.Context, codeID uuid.UUID) (bool, error)
	Deactivate(ctx context.Context, codeID uuid.UUID, now time.Time) error
}

// RedemptionRepository is append-only audit storage for successful claims.
type RedemptionRepository interface {
	Insert(ctx context.Context, redemption domain.Redemption) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error)
}

// CounterRepository serializes per-(user, campaign) consumption.
// GetForUpdate creates the row lazily and returns it under an exclusive row
// lock held to the end of the surrounding transaction.
type CounterRepository interface {
	GetForUpdate(ctx context.Context, userID, campaignID uuid.UUID) (domain.UserCampaignCounter, error)
	Increment(ctx context.Context, counterID uuid.UUID) error
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for licensing events.
// Enqueue joins the caller's transaction so events and state commit together.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
