package application

import (
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Config carries the tunables the licensing service needs at runtime.
type Config struct {
	// StaleThreshold is how long a session may miss heartbeats before
	// Auto-Resolve may reclaim its slot.
	StaleThreshold time.Duration
	// SessionTTL bounds how long an activation counts as live for concurrent
	// session accounting.
	SessionTTL time.Duration
	// SessionTokenTTL is the lifetime of signed session tokens returned by
	// validate/heartbeat.
	SessionTokenTTL time.Duration

	RedeemRateThreshold int
	RedeemRateWindow    time.Duration
}

// Service orchestrates license activation and redeem-code claims over the
// entitlement store ports. It holds no mutable state; all correctness comes
// from the store's conditional-write primitives.
type Service struct {
	cfg         Config
	tx          ports.TxManager
	licenses    ports.LicenseRepository
	activations ports.ActivationRepository
	plans       ports.PlanRepository
	campaigns   ports.CampaignRepository
	codes       ports.CodeRepository
	redemptions ports.RedemptionRepository
	counters    ports.CounterRepository
	outbox      ports.OutboxRepository
	rateLimits  ports.RateLimitStore
	tokenSigner ports.TokenSigner
	hasher      CodeHasher
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Tx          ports.TxManager
	Licenses    ports.LicenseRepository
	Activations ports.ActivationRepository
	Plans       ports.PlanRepository
	Campaigns   ports.CampaignRepository
	Codes       ports.CodeRepository
	Redemptions ports.RedemptionRepository
	Counters    ports.CounterRepository
	Outbox      ports.OutboxRepository
	RateLimits  ports.RateLimitStore
	TokenSigner ports.TokenSigner
	Hasher      CodeHasher
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 30 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.SessionTokenTTL <= 0 {
		cfg.SessionTokenTTL = 15 * time.Minute
	}
	if cfg.RedeemRateThreshold <= 0 {
		cfg.RedeemRateThreshold = 5
	}
	if cfg.RedeemRateWindow <= 0 {
		cfg.RedeemRateWindow = time.Minute
	}
	return &Service{
		cfg:         cfg,
		tx:          deps.Tx,
		licenses:    deps.Licenses,
		activations: deps.Activations,
		plans:       deps.Plans,
		campaigns:   deps.Campaigns,
		codes:       deps.Codes,
		redemptions: deps.Redemptions,
		counters:    deps.Counters,
		outbox:      deps.Outbox,
		rateLimits:  deps.RateLimits,
		tokenSigner: deps.TokenSigner,
		hasher:      deps.Hasher,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// liveAfter is the session-liveness cutoff: activations last seen before it
// no longer count toward concurrent session capacity.
func (s *Service) liveAfter(now time.Time) time.Time {
	return now.Add(-s.cfg.SessionTTL)
}

func maskFingerprint(fingerprint string) string {
	if len(fingerprint) <= 8 {
		return "****"
	}
	return fingerprint[:4] + "****" + fingerprint[len(fingerprint)-4:]
}
