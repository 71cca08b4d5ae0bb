package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestQuotaTracker_NilRedis_FailOpen(t *testing.T) {
	q := NewQuotaTracker(nil)
	result, err := q.Check(context.Background(), "client-1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.Limit != 100 {
		t.Errorf("expected limit=100, got %d", result.Limit)
	}
}

func TestQuotaTracker_NilRedis_Record(t *testing.T) {
	q := NewQuotaTracker(nil)
	if err := q.Record(context.Background(), "client-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuotaTracker_DailyKey(t *testing.T) {
	q := NewQuotaTracker(nil)
	q.now = func() time.Time {
		return time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	}

	key := q.dailyKey("client-1")
	// 23:30 PDT is already the next day in UTC.
	if !strings.HasSuffix(key, ":client-1:2026-03-15") {
		t.Errorf("unexpected key %q", key)
	}
	if !strings.HasPrefix(key, "protobridge:quota:daily:") {
		t.Errorf("unexpected key prefix %q", key)
	}
}
