package postgres

import (
	"time"

	"github.com/google/uuid"
)

type licenseModel struct {
	LicenseID    uuid.UUID  `gorm:"column:license_id;type:uuid;primaryKey"`
	OwnerID      uuid.UUID  `gorm:"column:owner_id"`
	ProductID    uuid.UUID  `gorm:"column:product_id"`
	PlanID       uuid.UUID  `gorm:"column:plan_id"`
	LicenseKey   string     `gorm:"column:license_key"`
	Status       string     `gorm:"column:status"`
	MaxDevices   int        `gorm:"column:max_devices"`
	Entitlements string     `gorm:"column:entitlements;type:jsonb"`
	ValidFrom    time.Time  `gorm:"column:valid_from"`
	ValidUntil   *time.Time `gorm:"column:valid_until"`
	StatusReason string     `gorm:"column:status_reason"`
	SourceOrder  *uuid.UUID `gorm:"column:source_order_id"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (licenseModel) TableName() string { return "licenses" }

type activationModel struct {
	ActivationID      uuid.UUID  `gorm:"column:activation_id;type:uuid;primaryKey"`
	LicenseID         uuid.UUID  `gorm:"column:license_id"`
	DeviceFingerprint string     `gorm:"column:device_fingerprint"`
	DeviceDisplayName string     `gorm:"column:device_display_name"`
	ClientVersion     string     `gorm:"column:client_version"`
	ClientOS          string     `gorm:"column:client_os"`
	Status            string     `gorm:"column:status"`
	LastSeenAt        time.Time  `gorm:"column:last_seen_at"`
	DeactivatedReason string     `gorm:"column:deactivated_reason"`
	DeactivatedAt     *time.Time `gorm:"column:deactivated_at"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
}

func (activationModel) TableName() string { return "license_activations" }

type planModel struct {
	PlanID       uuid.UUID `gorm:"column:plan_id;type:uuid;primaryKey"`
	Code         string    `gorm:"column:code"`
	Name         string    `gorm:"column:name"`
	ProductID    uuid.UUID `gorm:"column:product_id"`
	ProductCode  string    `gorm:"column:product_code"`
	MaxDevices   int       `gorm:"column:max_devices"`
	DurationDays int       `gorm:"column:duration_days"`
	Entitlements string    `gorm:"column:entitlements;type:jsonb"`
	IsActive     bool      `gorm:"column:is_active"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (planModel) TableName() string { return "license_plans" }

type campaignModel struct {
	CampaignID   uuid.UUID  `gorm:"column:campaign_id;type:uuid;primaryKey"`
	Name         string     `gorm:"column:name"`
	Description  string     `gorm:"column:description"`
	ProductID    uuid.UUID  `gorm:"column:product_id"`
	PlanID       uuid.UUID  `gorm:"column:plan_id"`
	SeatLimit    *int       `gorm:"column:seat_limit"`
	SeatsUsed    int        `gorm:"column:seats_used"`
	PerUserLimit int        `gorm:"column:per_user_limit"`
	Status       string     `gorm:"column:status"`
	ValidFrom    *time.Time `gorm:"column:valid_from"`
	ValidUntil   *time.Time `gorm:"column:valid_until"`
	CreatedBy    uuid.UUID  `gorm:"column:created_by"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (campaignModel) TableName() string { return "redeem_campaigns" }

type codeModel struct {
	CodeID             uuid.UUID  `gorm:"column:code_id;type:uuid;primaryKey"`
	CampaignID         uuid.UUID  `gorm:"column:campaign_id"`
	CodeHash           string     `gorm:"column:code_hash"`
	CodeType           string     `gorm:"column:code_type"`
	MaxRedemptions     int        `gorm:"column:max_redemptions"`
	CurrentRedemptions int        `gorm:"column:current_redemptions"`
	Active             bool       `gorm:"column:active"`
	ExpiresAt          *time.Time `gorm:"column:expires_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (codeModel) TableName() string { return "redeem_codes" }

type redemptionModel struct {
	RedemptionID uuid.UUID  `gorm:"column:redemption_id;type:uuid;primaryKey"`
	CodeID       uuid.UUID  `gorm:"column:code_id"`
	CampaignID   uuid.UUID  `gorm:"column:campaign_id"`
	UserID       uuid.UUID  `gorm:"column:user_id"`
	LicenseID    *uuid.UUID `gorm:"column:license_id"`
	RedeemedAt   time.Time  `gorm:"column:redeemed_at"`
	IPAddress    *string    `gorm:"column:ip_address"`
	UserAgent    string     `gorm:"column:user_agent"`
}

func (redemptionModel) TableName() string { return "redemptions" }

type counterModel struct {
	CounterID  uuid.UUID `gorm:"column:counter_id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id"`
	CampaignID uuid.UUID `gorm:"column:campaign_id"`
	Count      int       `gorm:"column:count"`
}

func (counterModel) TableName() string { return "user_campaign_counters" }

type licensingOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (licensingOutboxModel) TableName() string { return "licensing_outbox" }
