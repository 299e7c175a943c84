package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Event types emitted through the transactional outbox.
const (
	EventLicenseIssued  = "license.issued"
	EventLicenseRevoked = "license.revoked"
	EventRedeemClaimed  = "redeem.claimed"
)

type licenseIssuedEvent struct {
	LicenseID  uuid.UUID  `json:"license_id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	ProductID  uuid.UUID  `json:"product_id"`
	PlanID     uuid.UUID  `json:"plan_id"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
}

type licenseRevokedEvent struct {
	LicenseID uuid.UUID `json:"license_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Reason    string    `json:"reason,omitempty"`
	RevokedAt time.Time `json:"revoked_at"`
}

type redeemClaimedEvent struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	CodeID       uuid.UUID `json:"code_id"`
	UserID       uuid.UUID `json:"user_id"`
	LicenseID    uuid.UUID `json:"license_id"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}

// enqueueEvent serializes a payload into the outbox on the caller's
// transaction context, so the event commits or rolls back with the state
// change that produced it.
func (s *Service) enqueueEvent(ctx context.Context, eventType, partitionKey string, payload any, at time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      body,
		OccurredAt:   at,
	})
}
