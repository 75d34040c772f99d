package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	// 5 requests per minute, burst of 5
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()

	for i := range 5 {
		result := l.Allow("test:key")
		if !result.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if result.Limit != 5 {
			t.Errorf("expected Limit=5, got %d", result.Limit)
		}
	}
	result := l.Allow("test:key")
	if result.Allowed {
		t.Error("6th request should be rate limited")
	}
	if result.RetryAfter < time.Second {
		t.Errorf("expected RetryAfter >= 1s, got %v", result.RetryAfter)
	}
	if result.Remaining != 0 {
		t.Errorf("expected Remaining=0, got %d", result.Remaining)
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()

	for range 5 {
		l.Allow("key1")
	}
	if l.Allow("key1").Allowed {
		t.Error("key1 should be rate limited")
	}
	if !l.Allow("key2").Allowed {
		t.Error("key2 should be allowed")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(60, time.Minute, 10)
	defer l.Close()

	l.Allow("idle")
	l.cleanup(time.Now())
	if len(l.buckets) != 1 {
		t.Fatalf("recent bucket should survive, have %d", len(l.buckets))
	}
	l.cleanup(time.Now().Add(time.Hour))
	if len(l.buckets) != 0 {
		t.Errorf("stale bucket should be removed, have %d", len(l.buckets))
	}
}

func TestLimiter_CloseTwice(t *testing.T) {
	l := NewLimiter(1, time.Minute, 1)
	l.Close()
	l.Close()
}
