package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the redeem campaign state machine:
// ACTIVE <-> PAUSED, {ACTIVE,PAUSED} -> ENDED, ENDED terminal.
type CampaignStatus string

const (
	CampaignActive CampaignStatus = "ACTIVE"
	CampaignPaused CampaignStatus = "PAUSED"
	CampaignEnded  CampaignStatus = "ENDED"
)

// Campaign is a redemption program bound to one product and one plan.
// SeatsUsed is monotonic and only ever moved by the store's conditional
// increment, so the in-memory value is a read snapshot, not a write source.
type Campaign struct {
	CampaignID   uuid.UUID
	Name         string
	Description  string
	ProductID    uuid.UUID
	PlanID       uuid.UUID
	SeatLimit    *int
	SeatsUsed    int
	PerUserLimit int
	Status       CampaignStatus
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAvailable reports whether the campaign can accept a claim right now.
// A nil SeatLimit means unlimited seats.
func (c *Campaign) IsAvailable(now time.Time) bool {
	if c.Status != CampaignActive {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	if c.SeatLimit != nil && c.SeatsUsed >= *c.SeatLimit {
		return false
	}
	return true
}

// Pause transitions ACTIVE -> PAUSED. Illegal transitions fail loudly and
// leave the state unchanged.
func (c *Campaign) Pause(now time.Time) error {
	if c.Status != CampaignActive {
		return fmt.Errorf("%w: pause requires ACTIVE, campaign is %s", ErrCampaignNotActive, c.Status)
	}
	c.Status = CampaignPaused
	c.UpdatedAt = now
	return nil
}

// Resume transitions PAUSED -> ACTIVE.
func (c *Campaign) Resume(now time.Time) error {
	if c.Status != CampaignPaused {
		return fmt.Errorf("%w: resume requires PAUSED, campaign is %s", ErrCampaignNotActive, c.Status)
	}
	c.Status = CampaignActive
	c.UpdatedAt = now
	return nil
}

// End transitions any non-terminal state to ENDED.
func (c *Campaign) End(now time.Time) error {
	if c.Status == CampaignEnded {
		return fmt.Errorf("%w: campaign already ended", ErrCampaignNotActive)
	}
	c.Status = CampaignEnded
	c.UpdatedAt = now
	return nil
}

// CodeType distinguishes generated single-purpose codes from shared ones.
type CodeType string

const (
	CodeTypeRandom   CodeType = "RANDOM"
	CodeTypeReusable CodeType = "REUSABLE"
)

// Code stores only the one-way hash of a redeem code, never the plaintext.
// CurrentRedemptions is monotonic and bounded by MaxRedemptions at write time.
type Code struct {
	CodeID             uuid.UUID
	CampaignID         uuid.UUID
	CodeHash           string
	CodeType           CodeType
	MaxRedemptions     int
	CurrentRedemptions int
	Active             bool
	ExpiresAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsRedeemable reports whether the code passes its own gates. The store's
// conditional increment re-checks the same predicate at write time; this read
// only produces the fail-fast error before any mutation.
func (c *Code) IsRedeemable(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return c.CurrentRedemptions < c.MaxRedemptions
}

// RedeemableError maps the failing gate to its specific domain error, in the
// same order the claim pipeline checks them.
func (c *Code) RedeemableError(now time.Time) error {
	if !c.Active {
		return ErrCodeDisabled
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ErrCodeExpired
	}
	if c.CurrentRedemptions >= c.MaxRedemptions {
		return ErrCodeDepleted
	}
	return nil
}

// Redemption is the immutable audit record of one successful claim.
type Redemption struct {
	RedemptionID uuid.UUID
	CodeID       uuid.UUID
	CampaignID   uuid.UUID
	UserID       uuid.UUID
	LicenseID    *uuid.UUID
	RedeemedAt   time.Time
	IPAddress    string
	UserAgent    string
}

// UserCampaignCounter tracks per-(user, campaign) consumption. Rows are
// created lazily on first claim and incremented under an exclusive row lock.
type UserCampaignCounter struct {
	CounterID  uuid.UUID
	UserID     uuid.UUID
	CampaignID uuid.UUID
	Count      int
}
