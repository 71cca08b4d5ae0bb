package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/af-corp/protobridge/internal/auth"
	"github.com/af-corp/protobridge/internal/config"
)

func intPtr(v int) *int { return &v }

func serveWithAuth(t *testing.T, limits config.LimitsConfig, info *auth.AuthInfo) *httptest.ResponseRecorder {
	t.Helper()
	mw := Middleware(NewLimiter(nil), NewQuotaTracker(nil), limits, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/bridge/v1/convert", nil)
	if info != nil {
		req = req.WithContext(auth.ContextWithAuth(req.Context(), info))
	}
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	rec := serveWithAuth(t, config.LimitsConfig{}, &auth.AuthInfo{
		KeyID:    "key-1",
		ClientID: "client-1",
		RPMLimit: intPtr(100),
	})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h != "99" {
		t.Errorf("expected X-RateLimit-Remaining-Requests=99, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("expected X-RateLimit-Reset-Requests header")
	}
	if h := rec.Header().Get(headerQuotaLimit); h != "" {
		t.Errorf("expected no quota header without a quota, got %s", h)
	}
}

func TestMiddleware_RPMDefaults(t *testing.T) {
	tests := []struct {
		name   string
		limits config.LimitsConfig
		want   string
	}{
		{"configured default", config.LimitsConfig{DefaultRPM: 240}, "240"},
		{"built-in default", config.LimitsConfig{}, "60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithAuth(t, tt.limits, &auth.AuthInfo{KeyID: "key-2", ClientID: "client-1"})
			if h := rec.Header().Get(headerRateLimitRequests); h != tt.want {
				t.Errorf("expected RPM=%s, got %s", tt.want, h)
			}
		})
	}
}

func TestMiddleware_QuotaHeaders(t *testing.T) {
	rec := serveWithAuth(t, config.LimitsConfig{DefaultDailyQuota: 1000}, &auth.AuthInfo{
		KeyID:                "key-3",
		ClientID:             "client-1",
		DailyConversionLimit: intPtr(50),
	})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerQuotaLimit); h != "50" {
		t.Errorf("expected per-key quota 50 to win, got %s", h)
	}
	if h := rec.Header().Get(headerQuotaUsed); h != "0" {
		t.Errorf("expected used=0, got %s", h)
	}
}

func TestMiddleware_NoAuth_PassThrough(t *testing.T) {
	rec := serveWithAuth(t, config.LimitsConfig{}, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected handler to run without auth context, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "" {
		t.Errorf("expected no rate limit headers, got %s", h)
	}
}
