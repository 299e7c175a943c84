package domain

import (
	"time"

	"github.com/google/uuid"
)

// LicenseStatus is the stored lifecycle state of a license.
type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "ACTIVE"
	LicenseExpired   LicenseStatus = "EXPIRED"
	LicenseSuspended LicenseStatus = "SUSPENDED"
	LicenseRevoked   LicenseStatus = "REVOKED"
)

// License is the entitlement aggregate for M91. Concurrent-use capacity is
// enforced by the allocation protocol against live activation rows, never by a
// cached counter on this struct.
type License struct {
	LicenseID    uuid.UUID
	OwnerID      uuid.UUID
	ProductID    uuid.UUID
	PlanID       uuid.UUID
	LicenseKey   string
	Status       LicenseStatus
	MaxDevices   int
	Entitlements []string
	ValidFrom    time.Time
	ValidUntil   *time.Time
	StatusReason string
	SourceOrder  *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveStatus folds validity-window expiry into the stored status.
// A stored ACTIVE license past its validUntil is EXPIRED for all callers.
func (l *License) EffectiveStatus(now time.Time) LicenseStatus {
	if l.Status == LicenseActive && l.ValidUntil != nil && now.After(*l.ValidUntil) {
		return LicenseExpired
	}
	return l.Status
}

// StatusError returns the domain error matching a non-usable effective status,
// or nil when the license can serve activations.
func (l *License) StatusError(now time.Time) error {
	switch l.EffectiveStatus(now) {
	case LicenseActive:
		return nil
	case LicenseExpired:
		return ErrLicenseExpired
	case LicenseSuspended:
		return ErrLicenseSuspended
	case LicenseRevoked:
		return ErrLicenseRevoked
	default:
		return ErrInvalidLicenseState
	}
}

func (l *License) IsOwnedBy(userID uuid.UUID) bool {
	return l.OwnerID == userID
}

// ActivationStatus tracks the slot lifecycle. Licenses are never deleted and
// neither are activations; terminated slots keep their row for audit.
type ActivationStatus string

const (
	ActivationActive      ActivationStatus = "ACTIVE"
	ActivationDeactivated ActivationStatus = "DEACTIVATED"
)

// Deactivation reasons recorded when a slot is terminated.
const (
	ReasonForceValidate    = "FORCE_VALIDATE"
	ReasonAutoResolveStale = "AUTO_RESOLVE_STALE"
	ReasonUserRequest      = "USER_REQUEST"
	ReasonLicenseRevoked   = "LICENSE_REVOKED"
)

// Activation binds one device fingerprint to one license slot.
type Activation struct {
	ActivationID      uuid.UUID
	LicenseID         uuid.UUID
	DeviceFingerprint string
	DeviceDisplayName string
	ClientVersion     string
	ClientOS          string
	Status            ActivationStatus
	LastSeenAt        time.Time
	DeactivatedReason string
	CreatedAt         time.Time
}

// IsStale reports whether the slot's heartbeat is older than the threshold,
// making it eligible for automatic reclamation.
func (a *Activation) IsStale(threshold time.Time) bool {
	return a.LastSeenAt.Before(threshold)
}

// LicensePlan captures the sellable policy a license snapshots at issuance.
type LicensePlan struct {
	PlanID       uuid.UUID
	Code         string
	Name         string
	ProductID    uuid.UUID
	ProductCode  string
	MaxDevices   int
	DurationDays int
	Entitlements []string
	IsActive     bool
	CreatedAt    time.Time
}
