package domain

import "fmt"

// Error is a typed licensing failure carrying the symbolic code exposed at the
// boundary. Adapters map codes to HTTP statuses with errors.Is against the
// sentinels below; application code never invents codes inline.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrLicenseNotFound      = &Error{Code: "LICENSE_NOT_FOUND", Message: "license not found"}
	ErrLicenseExpired       = &Error{Code: "LICENSE_EXPIRED", Message: "license has expired"}
	ErrLicenseSuspended     = &Error{Code: "LICENSE_SUSPENDED", Message: "license is suspended"}
	ErrLicenseRevoked       = &Error{Code: "LICENSE_REVOKED", Message: "license has been revoked"}
	ErrLicenseAlreadyExists = &Error{Code: "LICENSE_ALREADY_EXISTS", Message: "a license for this product already exists"}
	ErrInvalidLicenseState  = &Error{Code: "INVALID_LICENSE_STATE", Message: "license is not in a usable state"}
	ErrActivationNotFound   = &Error{Code: "ACTIVATION_NOT_FOUND", Message: "no activation exists for this device"}
	ErrActivationLimit      = &Error{Code: "ACTIVATION_LIMIT_EXCEEDED", Message: "maximum device activations reached"}
	ErrSessionDeactivated   = &Error{Code: "SESSION_DEACTIVATED", Message: "session was deactivated from another device"}
	ErrActivationOwnership  = &Error{Code: "INVALID_ACTIVATION_OWNERSHIP", Message: "activation does not belong to this license"}
	ErrAllLicensesFull      = &Error{Code: "ALL_LICENSES_FULL", Message: "no license has a free session slot"}
	ErrAccessDenied         = &Error{Code: "ACCESS_DENIED", Message: "caller does not own this resource"}
	ErrInvalidRequest       = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}
	ErrPlanNotFound         = &Error{Code: "PLAN_NOT_FOUND", Message: "license plan not found"}
	ErrPlanNotAvailable     = &Error{Code: "PLAN_NOT_AVAILABLE", Message: "license plan is not available"}
	ErrCodeInvalid          = &Error{Code: "REDEEM_CODE_INVALID", Message: "redeem code format is invalid"}
	ErrCodeNotFound         = &Error{Code: "REDEEM_CODE_NOT_FOUND", Message: "redeem code not found"}
	ErrCodeExpired          = &Error{Code: "REDEEM_CODE_EXPIRED", Message: "redeem code has expired"}
	ErrCodeDisabled         = &Error{Code: "REDEEM_CODE_DISABLED", Message: "redeem code is disabled"}
	ErrCodeDepleted         = &Error{Code: "REDEEM_CODE_DEPLETED", Message: "redeem code has no redemptions left"}
	ErrCodeHashDuplicate    = &Error{Code: "REDEEM_CODE_HASH_DUPLICATE", Message: "an identical code already exists"}
	ErrCampaignNotFound     = &Error{Code: "REDEEM_CAMPAIGN_NOT_FOUND", Message: "redeem campaign not found"}
	ErrCampaignNotActive    = &Error{Code: "REDEEM_CAMPAIGN_NOT_ACTIVE", Message: "campaign is not active"}
	ErrCampaignFull         = &Error{Code: "REDEEM_CAMPAIGN_FULL", Message: "campaign seat limit reached"}
	ErrUserLimitExceeded    = &Error{Code: "REDEEM_USER_LIMIT_EXCEEDED", Message: "per-user redemption limit reached"}
	ErrRedeemRateLimited    = &Error{Code: "REDEEM_RATE_LIMITED", Message: "too many redeem attempts, retry later"}
	ErrUnauthorized         = &Error{Code: "UNAUTHORIZED", Message: "invalid or missing credentials"}
)
