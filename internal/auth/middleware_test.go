package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockKeyStore implements KeyStore for testing.
type mockKeyStore struct {
	keys map[string]*KeyMetadata
	err  error
}

func (m *mockKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	meta, ok := m.keys[keyHash]
	if !ok {
		return nil, nil
	}
	return meta, nil
}

func serveRejected(t *testing.T, store KeyStore, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("POST", "/bridge/v1/convert", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	handler.ServeHTTP(w, req)
	return w
}

func TestMiddleware_Rejections(t *testing.T) {
	store := &mockKeyStore{keys: make(map[string]*KeyMetadata)}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"unknown key", "Bearer pb-prod-invalidkey123", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveRejected(t, store, tt.header)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMiddleware_StoreError(t *testing.T) {
	store := &mockKeyStore{err: errors.New("connection refused")}

	w := serveRejected(t, store, "Bearer pb-prod-whatever")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestMiddleware_ValidKey(t *testing.T) {
	rawKey := "pb-prod-testkey12345678901234567890ab"
	rpm := 120
	daily := 5000

	store := &mockKeyStore{
		keys: map[string]*KeyMetadata{
			HashKey(rawKey): {
				ID:                   "key-uuid-123",
				ClientID:             "client-1",
				Name:                 "ingest",
				AllowedProtocols:     []string{"JSON", "XML"},
				RPMLimit:             &rpm,
				DailyConversionLimit: &daily,
				ExpiresAt:            time.Now().Add(24 * time.Hour),
			},
		},
	}

	var gotAuth *AuthInfo
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := AuthFromContext(r.Context())
		if !ok {
			t.Error("expected auth info in context")
			return
		}
		gotAuth = info
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/bridge/v1/convert", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if gotAuth == nil {
		t.Fatal("auth info should be set")
	}
	if gotAuth.KeyID != "key-uuid-123" {
		t.Errorf("expected key-uuid-123, got %s", gotAuth.KeyID)
	}
	if gotAuth.ClientID != "client-1" {
		t.Errorf("expected client-1, got %s", gotAuth.ClientID)
	}
	if len(gotAuth.AllowedProtocols) != 2 {
		t.Errorf("expected 2 allowed protocols, got %v", gotAuth.AllowedProtocols)
	}
	if gotAuth.RPMLimit == nil || *gotAuth.RPMLimit != 120 {
		t.Errorf("expected rpm limit 120, got %v", gotAuth.RPMLimit)
	}
	if gotAuth.DailyConversionLimit == nil || *gotAuth.DailyConversionLimit != 5000 {
		t.Errorf("expected daily limit 5000, got %v", gotAuth.DailyConversionLimit)
	}
}

func TestAuthFromContext_Missing(t *testing.T) {
	if _, ok := AuthFromContext(context.Background()); ok {
		t.Error("expected no auth info on a bare context")
	}
}
