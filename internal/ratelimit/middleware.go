package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/af-corp/protobridge/internal/auth"
	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/httputil"
	"github.com/af-corp/protobridge/internal/telemetry"
)

const (
	defaultRPM = 60

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerQuotaLimit                 = "X-Quota-Limit-Conversions"
	headerQuotaUsed                  = "X-Quota-Used-Conversions"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware that enforces per-key request rate and
// per-client daily conversion quota. Only responses below 400 count against
// the quota.
func Middleware(limiter *Limiter, quota *QuotaTracker, limits config.LimitsConfig, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authInfo, ok := auth.AuthFromContext(r.Context())
			if !ok {
				// No auth info; auth middleware rejects these
				next.ServeHTTP(w, r)
				return
			}

			rpm := limits.DefaultRPM
			if rpm <= 0 {
				rpm = defaultRPM
			}
			if authInfo.RPMLimit != nil {
				rpm = *authInfo.RPMLimit
			}

			rpmKey := fmt.Sprintf("rpm:%s", authInfo.KeyID)
			result, _ := limiter.Check(r.Context(), rpmKey, int64(rpm), time.Minute)

			// Always set rate limit headers
			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"key_id", authInfo.KeyID,
					"client_id", authInfo.ClientID,
					"dimension", "rpm",
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("rpm", authInfo.ClientID)
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			daily := int64(limits.DefaultDailyQuota)
			if authInfo.DailyConversionLimit != nil {
				daily = int64(*authInfo.DailyConversionLimit)
			}
			if daily <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			quotaResult, _ := quota.Check(r.Context(), authInfo.ClientID, daily)
			w.Header().Set(headerQuotaLimit, strconv.FormatInt(daily, 10))
			w.Header().Set(headerQuotaUsed, strconv.FormatInt(quotaResult.Used, 10))
			if !quotaResult.Allowed {
				slog.Warn("daily quota exceeded",
					"request_id", reqID,
					"key_id", authInfo.KeyID,
					"client_id", authInfo.ClientID,
					"used", quotaResult.Used,
					"limit", quotaResult.Limit,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("quota", authInfo.ClientID)
				}
				httputil.WriteQuotaExceededError(w, reqID,
					fmt.Sprintf("Daily conversion quota exceeded: used %d of %d", quotaResult.Used, quotaResult.Limit))
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if status := ww.Status(); status == 0 || status < http.StatusBadRequest {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), time.Second)
				defer cancel()
				if err := quota.Record(ctx, authInfo.ClientID); err != nil {
					slog.Warn("quota record failed", "request_id", reqID, "client_id", authInfo.ClientID, "error", err)
				}
			}
		})
	}
}
