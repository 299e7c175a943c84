package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// Resolution is the closed outcome enum of the Auto-Resolve protocol.
type Resolution string

const (
	ResolutionOK            Resolution = "OK"
	ResolutionAutoRecovered Resolution = "AUTO_RECOVERED"
	ResolutionUserAction    Resolution = "USER_ACTION_REQUIRED"
)

// ValidateRequest activates (or re-validates) a device against the caller's
// licenses. LicenseID pins one license; otherwise every ACTIVE license for the
// product (or all products when ProductID is nil) is a candidate.
type ValidateRequest struct {
	LicenseID         *uuid.UUID `json:"license_id,omitempty"`
	ProductID         *uuid.UUID `json:"product_id,omitempty"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	DeviceDisplayName string     `json:"device_display_name,omitempty"`
	ClientVersion     string     `json:"client_version,omitempty"`
	ClientOS          string     `json:"client_os,omitempty"`
}

// ForceValidateRequest kicks caller-selected sessions and retries activation
// on one license.
type ForceValidateRequest struct {
	LicenseID               uuid.UUID   `json:"license_id"`
	DeviceFingerprint       string      `json:"device_fingerprint"`
	DeviceDisplayName       string      `json:"device_display_name,omitempty"`
	ClientVersion           string      `json:"client_version,omitempty"`
	ClientOS                string      `json:"client_os,omitempty"`
	DeactivateActivationIDs []uuid.UUID `json:"deactivate_activation_ids"`
}

// SessionInfo describes one live session in an ALL_LICENSES_FULL response so
// the user can choose which to kick. Fingerprints are masked before leaving
// the service.
type SessionInfo struct {
	LicenseID         uuid.UUID `json:"license_id"`
	PlanName          string    `json:"plan_name"`
	ActivationID      uuid.UUID `json:"activation_id"`
	DeviceDisplayName string    `json:"device_display_name"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	ClientOS          string    `json:"client_os,omitempty"`
	ClientVersion     string    `json:"client_version,omitempty"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	IsStale           bool      `json:"is_stale"`
}

// TerminatedSessionInfo reports the stale session Auto-Resolve reclaimed.
type TerminatedSessionInfo struct {
	DeviceDisplayName string    `json:"device_display_name"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

// ValidateResult is the outcome of validate/heartbeat/force-validate.
// Valid=false with ErrorCode ALL_LICENSES_FULL carries the session listing;
// every other failure surfaces as a typed domain error instead.
type ValidateResult struct {
	Valid             bool                   `json:"valid"`
	Resolution        Resolution             `json:"resolution,omitempty"`
	LicenseID         uuid.UUID              `json:"license_id,omitempty"`
	Status            domain.LicenseStatus   `json:"status,omitempty"`
	ValidUntil        *time.Time             `json:"valid_until,omitempty"`
	Entitlements      []string               `json:"entitlements,omitempty"`
	SessionToken      string                 `json:"session_token,omitempty"`
	TerminatedSession *TerminatedSessionInfo `json:"terminated_session,omitempty"`
	ErrorCode         string                 `json:"error_code,omitempty"`
	ActiveSessions    []SessionInfo          `json:"active_sessions,omitempty"`
}

// LicenseView is the owner-scoped license projection.
type LicenseView struct {
	LicenseID     uuid.UUID            `json:"license_id"`
	ProductID     uuid.UUID            `json:"product_id"`
	PlanID        uuid.UUID            `json:"plan_id"`
	LicenseKey    string               `json:"license_key"`
	Status        domain.LicenseStatus `json:"status"`
	MaxDevices    int                  `json:"max_devices"`
	ActiveDevices int                  `json:"active_devices"`
	Entitlements  []string             `json:"entitlements,omitempty"`
	ValidFrom     time.Time            `json:"valid_from"`
	ValidUntil    *time.Time           `json:"valid_until,omitempty"`
}

// IssueLicenseRequest provisions a license from a plan. Invoked by billing on
// order completion, by the redeem engine, and by the admin surface.
type IssueLicenseRequest struct {
	OwnerID       uuid.UUID
	PlanID        uuid.UUID
	SourceOrderID *uuid.UUID
}

// RedeemClaimRequest converts a raw code into a license for the caller.
type RedeemClaimRequest struct {
	Code      string `json:"code"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// RedeemClaimResponse references the license a successful claim produced.
type RedeemClaimResponse struct {
	LicenseID   uuid.UUID  `json:"license_id"`
	LicenseKey  string     `json:"license_key"`
	ProductCode string     `json:"product_code"`
	PlanName    string     `json:"plan_name"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

// CampaignRequest creates or updates a redeem campaign.
type CampaignRequest struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	ProductID    uuid.UUID  `json:"product_id"`
	PlanID       uuid.UUID  `json:"plan_id"`
	SeatLimit    *int       `json:"seat_limit,omitempty"`
	PerUserLimit int        `json:"per_user_limit"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
}

// CampaignView is the admin projection of a campaign.
type CampaignView struct {
	CampaignID   uuid.UUID             `json:"campaign_id"`
	Name         string                `json:"name"`
	Description  string                `json:"description,omitempty"`
	ProductID    uuid.UUID             `json:"product_id"`
	PlanID       uuid.UUID             `json:"plan_id"`
	SeatLimit    *int                  `json:"seat_limit,omitempty"`
	SeatsUsed    int                   `json:"seats_used"`
	PerUserLimit int                   `json:"per_user_limit"`
	Status       domain.CampaignStatus `json:"status"`
	ValidFrom    *time.Time            `json:"valid_from,omitempty"`
	ValidUntil   *time.Time            `json:"valid_until,omitempty"`
	CodeCount    int64                 `json:"code_count"`
	CreatedAt    time.Time             `json:"created_at"`
}

// CodeGenerateRequest mints codes for a campaign. RANDOM generates Count
// fresh codes; REUSABLE stores the hash of the one provided custom code.
type CodeGenerateRequest struct {
	CodeType       domain.CodeType `json:"code_type"`
	Count          int             `json:"count,omitempty"`
	CustomCode     string          `json:"custom_code,omitempty"`
	MaxRedemptions int             `json:"max_redemptions"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

// CodeGenerateResponse returns plaintext codes exactly once, at mint time.
type CodeGenerateResponse struct {
	Count int      `json:"count"`
	Codes []string `json:"codes"`
}

// CodeView lists a stored code without ever exposing the hash preimage.
type CodeView struct {
	CodeID             uuid.UUID       `json:"code_id"`
	CampaignID         uuid.UUID       `json:"campaign_id"`
	CodeType           domain.CodeType `json:"code_type"`
	MaxRedemptions     int             `json:"max_redemptions"`
	CurrentRedemptions int             `json:"current_redemptions"`
	Active             bool            `json:"active"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// PageQuery is the shared pagination input for admin listings.
type PageQuery struct {
	Page  int
	Limit int
}

func (q PageQuery) limitOffset() (int, int) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// Page wraps a listing with its total row count.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}
