package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/events"
	httpadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

// Runtime holds the fully wired service graph shared by the api and worker
// entrypoints.
type Runtime struct {
	cfg     Config
	logger  *slog.Logger
	db      *gorm.DB
	redis   *redis.Client
	service *application.Service
	outbox  *events.OutboxWorker
	httpSrv *http.Server
	grpcSrv *grpc.Server
	cleanup func()
}

// NewRuntime wires configuration, storage, adapters, and the application
// service. The caller owns the returned Runtime and must invoke Close.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(
		slog.String("module", cfg.ServiceID),
	)
	slog.SetDefault(logger)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	repos := postgres.NewRepositories(db)

	var signer *security.JWTSigner
	if cfg.JWTPrivateKeyPEM != "" && cfg.JWTPublicKeyPEM != "" {
		signer, err = security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("load jwt keys: %w", err)
		}
	} else {
		signer, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral jwt keys: %w", err)
		}
		logger.Warn("no JWT key material configured, using ephemeral keys",
			slog.String("layer", "bootstrap"))
	}

	service := application.NewService(application.Dependencies{
		Config: application.Config{
			StaleThreshold:      cfg.StaleThreshold,
			SessionTTL:          cfg.SessionTTL,
			SessionTokenTTL:     cfg.SessionTokenTTL,
			RedeemRateThreshold: cfg.RedeemRateThreshold,
			RedeemRateWindow:    cfg.RedeemRateWindow,
		},
		Tx:          repos.Tx,
		Licenses:    repos.Licenses,
		Activations: repos.Activations,
		Plans:       repos.Plans,
		Campaigns:   repos.Campaigns,
		Codes:       repos.Codes,
		Redemptions: repos.Redemptions,
		Counters:    repos.Counters,
		Outbox:      repos.Outbox,
		RateLimits:  cache.NewRedisRateLimitStore(redisClient),
		TokenSigner: signer,
		Hasher:      application.NewCodeHasher(cfg.CodePepper),
	})

	handler := httpadapter.NewHandler(service, signer)
	router := httpadapter.NewRouter(handler)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(cfg.ServiceID, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	worker := events.NewOutboxWorker(
		logger,
		repos.Outbox,
		events.NewLoggingPublisher(logger),
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	cleanup := func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis", slog.String("error", err.Error()))
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Error("close postgres", slog.String("error", err.Error()))
			}
		}
	}

	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		service: service,
		outbox:  worker,
		httpSrv: httpSrv,
		grpcSrv: grpcSrv,
		cleanup: cleanup,
	}, nil
}

// Close releases the runtime's external connections.
func (r *Runtime) Close() {
	if r.cleanup != nil {
		r.cleanup()
	}
}

// RunAPI serves HTTP and gRPC until a shutdown signal arrives, then drains
// in-flight requests before returning.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server listening",
			slog.String("layer", "bootstrap"),
			slog.String("addr", r.httpSrv.Addr))
		if err := r.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server listening",
			slog.String("layer", "bootstrap"),
			slog.String("addr", grpcListener.Addr().String()))
		if err := r.grpcSrv.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received", slog.String("layer", "bootstrap"))
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.httpSrv.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	r.grpcSrv.GracefulStop()
	return nil
}

// RunWorker runs the outbox publisher loop until a shutdown signal arrives.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker starting", slog.String("layer", "bootstrap"))
	if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("outbox worker: %w", err)
	}
	return nil
}
