package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyClaims    ctxKey = "auth_claims"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// mapDomainError projects the closed error taxonomy onto HTTP statuses.
// Each symbolic code maps to exactly one status class.
func mapDomainError(err error) (int, string, string) {
	var derr *domain.Error
	code := "INTERNAL_ERROR"
	message := "internal server error"
	if errors.As(err, &derr) {
		code = derr.Code
		message = err.Error()
	}

	switch {
	case errors.Is(err, domain.ErrLicenseNotFound),
		errors.Is(err, domain.ErrActivationNotFound),
		errors.Is(err, domain.ErrCodeNotFound),
		errors.Is(err, domain.ErrCampaignNotFound),
		errors.Is(err, domain.ErrPlanNotFound):
		return http.StatusNotFound, code, message
	case errors.Is(err, domain.ErrLicenseAlreadyExists),
		errors.Is(err, domain.ErrAllLicensesFull),
		errors.Is(err, domain.ErrCodeDepleted),
		errors.Is(err, domain.ErrCodeHashDuplicate),
		errors.Is(err, domain.ErrCampaignFull),
		errors.Is(err, domain.ErrUserLimitExceeded):
		return http.StatusConflict, code, message
	case errors.Is(err, domain.ErrLicenseExpired),
		errors.Is(err, domain.ErrLicenseSuspended),
		errors.Is(err, domain.ErrLicenseRevoked),
		errors.Is(err, domain.ErrActivationLimit),
		errors.Is(err, domain.ErrSessionDeactivated),
		errors.Is(err, domain.ErrActivationOwnership),
		errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden, code, message
	case errors.Is(err, domain.ErrCodeExpired),
		errors.Is(err, domain.ErrCodeDisabled):
		return http.StatusGone, code, message
	case errors.Is(err, domain.ErrInvalidLicenseState),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrCodeInvalid),
		errors.Is(err, domain.ErrCampaignNotActive),
		errors.Is(err, domain.ErrPlanNotAvailable):
		return http.StatusBadRequest, code, message
	case errors.Is(err, domain.ErrRedeemRateLimited):
		return http.StatusTooManyRequests, code, message
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, code, message
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
