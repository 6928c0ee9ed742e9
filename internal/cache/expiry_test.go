package cache

import (
	"testing"
	"time"
)

func TestIsExpiredBoundary(t *testing.T) {
	written := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour

	testCases := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{"at write", written, false},
		{"just before ttl", written.Add(ttl - time.Nanosecond), false},
		{"exactly ttl", written.Add(ttl), true},
		{"after ttl", written.Add(ttl + time.Minute), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsExpired(written, tc.now, ttl); got != tc.expired {
				t.Fatalf("IsExpired = %v, want %v", got, tc.expired)
			}
		})
	}
}

func TestZeroTTLExpiresImmediately(t *testing.T) {
	written := time.Now()
	if !IsExpired(written, written, 0) {
		t.Fatalf("zero ttl should expire on the next check")
	}
	if !IsExpired(written, written.Add(time.Microsecond), 0) {
		t.Fatalf("zero ttl should expire entries created microseconds earlier")
	}
}

func TestExpiryPolicyExpiresAt(t *testing.T) {
	written := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := ExpiryPolicy{TTL: 15 * time.Minute}
	if got := policy.ExpiresAt(written); !got.Equal(written.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry time %v", got)
	}
	if policy.Expired(written, written.Add(14*time.Minute)) {
		t.Fatalf("entry should still be fresh")
	}
}
