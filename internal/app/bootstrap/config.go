package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M91.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	CodePepper string

	StaleThreshold  time.Duration
	SessionTTL      time.Duration
	SessionTokenTTL time.Duration

	RedeemRateThreshold int
	RedeemRateWindow    time.Duration

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Licensing struct {
		StaleThresholdMinutes int    `yaml:"stale_threshold_minutes"`
		SessionTTLMinutes     int    `yaml:"session_ttl_minutes"`
		SessionTokenMinutes   int    `yaml:"session_token_minutes"`
		CodePepper            string `yaml:"code_pepper"`
		RedeemRateThreshold   int    `yaml:"redeem_rate_threshold"`
		RedeemRateWindowSecs  int    `yaml:"redeem_rate_window_seconds"`
	} `yaml:"licensing"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:           "M91-License-Service",
		HTTPPort:            8080,
		GRPCPort:            9090,
		JWTKeyID:            "m91-license-key-1",
		AllowEphemeralJWT:   true,
		StaleThreshold:      30 * time.Minute,
		SessionTTL:          60 * time.Minute,
		SessionTokenTTL:     15 * time.Minute,
		RedeemRateThreshold: 5,
		RedeemRateWindow:    time.Minute,
		MaxDBConns:          20,
		OutboxPollInterval:  2 * time.Second,
		OutboxBatchSize:     100,
		OutboxClaimTTL:      30 * time.Second,
		OutboxMaxRetries:    5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Licensing.StaleThresholdMinutes > 0 {
			cfg.StaleThreshold = time.Duration(f.Licensing.StaleThresholdMinutes) * time.Minute
		}
		if f.Licensing.SessionTTLMinutes > 0 {
			cfg.SessionTTL = time.Duration(f.Licensing.SessionTTLMinutes) * time.Minute
		}
		if f.Licensing.SessionTokenMinutes > 0 {
			cfg.SessionTokenTTL = time.Duration(f.Licensing.SessionTokenMinutes) * time.Minute
		}
		if f.Licensing.CodePepper != "" {
			cfg.CodePepper = f.Licensing.CodePepper
		}
		if f.Licensing.RedeemRateThreshold > 0 {
			cfg.RedeemRateThreshold = f.Licensing.RedeemRateThreshold
		}
		if f.Licensing.RedeemRateWindowSecs > 0 {
			cfg.RedeemRateWindow = time.Duration(f.Licensing.RedeemRateWindowSecs) * time.Second
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.CodePepper = envOrDefault("REDEEM_CODE_PEPPER", cfg.CodePepper)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.StaleThreshold = time.Duration(envInt("STALE_THRESHOLD_MINUTES", int(cfg.StaleThreshold.Minutes()))) * time.Minute
	cfg.SessionTTL = time.Duration(envInt("SESSION_TTL_MINUTES", int(cfg.SessionTTL.Minutes()))) * time.Minute
	cfg.SessionTokenTTL = time.Duration(envInt("SESSION_TOKEN_MINUTES", int(cfg.SessionTokenTTL.Minutes()))) * time.Minute
	cfg.RedeemRateThreshold = envInt("REDEEM_RATE_THRESHOLD", cfg.RedeemRateThreshold)
	cfg.RedeemRateWindow = time.Duration(envInt("REDEEM_RATE_WINDOW_SECONDS", int(cfg.RedeemRateWindow.Seconds()))) * time.Second
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.CodePepper == "" {
		return Config{}, fmt.Errorf("missing REDEEM_CODE_PEPPER")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
