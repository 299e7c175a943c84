package ports

import (
	"time"

	"github.com/google/uuid"
)

// AuthClaims is the verified caller identity extracted from a bearer token
// issued by the authentication service. Core operations take the user id as an
// explicit argument; this type never travels below the HTTP adapter.
type AuthClaims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// SessionTokenClaims are the license-session assertions embedded in tokens
// returned by validate/heartbeat for client-side enforcement.
type SessionTokenClaims struct {
	LicenseID         uuid.UUID
	ProductCode       string
	DeviceFingerprint string
	Entitlements      []string
}

// TokenSigner verifies inbound auth tokens and signs outbound license session
// tokens. Keys live at adapter level so the application stays crypto-agnostic.
type TokenSigner interface {
	VerifyAuthToken(raw string) (AuthClaims, error)
	SignSessionToken(claims SessionTokenClaims, ttl time.Duration) (string, error)
}
