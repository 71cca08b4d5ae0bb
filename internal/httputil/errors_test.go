package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request_error", "bad_request", "test message")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	if rid := w.Header().Get("X-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Request-ID req_123, got %s", rid)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Error.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", resp.Error.Type)
	}
	if resp.Error.RequestID != "req_123" {
		t.Errorf("expected request_id 'req_123', got %q", resp.Error.RequestID)
	}
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"auth", func(w http.ResponseWriter) { WriteAuthError(w, "r", "m") }, http.StatusUnauthorized, "invalid_api_key"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbiddenError(w, "r", "m") }, http.StatusForbidden, "protocol_not_allowed"},
		{"rate limit", func(w http.ResponseWriter) { WriteRateLimitError(w, "r", "m") }, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"quota", func(w http.ResponseWriter) { WriteQuotaExceededError(w, "r", "m") }, http.StatusTooManyRequests, "quota_exceeded"},
		{"route", func(w http.ResponseWriter) { WriteRouteNotFoundError(w, "r", "m") }, http.StatusNotFound, "route_not_found"},
		{"timeout", func(w http.ResponseWriter) { WriteTimeoutError(w, "r", "m") }, http.StatusGatewayTimeout, "conversion_timeout"},
		{"blocked", func(w http.ResponseWriter) { WriteContentBlockedError(w, "r", "m") }, 451, "content_blocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp APIError
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestWriteConversionError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteConversionError(w, "req_9", "JSON@1.0->XML@1.0", "parse xml: bad")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", w.Code)
	}
	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != "conversion_failed" || resp.Error.Edge != "JSON@1.0->XML@1.0" {
		t.Errorf("unexpected body: %+v", resp.Error)
	}
	if resp.Error.Message != "parse xml: bad" {
		t.Errorf("expected adapter message to pass through, got %q", resp.Error.Message)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]int{"n": 1})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Code)
	}
	if w.Body.String() != "{\"n\":1}\n" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}
