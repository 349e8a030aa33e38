package service

import (
	"testing"
	"time"
)

func TestRetryBackoffSchedule(t *testing.T) {
	base := time.Minute
	cap := time.Hour

	cases := []struct {
		attempts int32
		expected time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 16 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{12, time.Hour},
	}

	for _, tc := range cases {
		got := retryBackoff(tc.attempts, base, cap)
		if got != tc.expected {
			t.Fatalf("retryBackoff(%d) = %v, expected %v", tc.attempts, got, tc.expected)
		}
	}
}

func TestRetryBackoffIsMonotonic(t *testing.T) {
	base := 30 * time.Second
	cap := 2 * time.Hour

	prev := time.Duration(0)
	for attempts := int32(1); attempts <= 20; attempts++ {
		got := retryBackoff(attempts, base, cap)
		if got < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", attempts, got, prev)
		}
		if got > cap {
			t.Fatalf("backoff exceeded cap at attempt %d: %v", attempts, got)
		}
		prev = got
	}
	if prev != cap {
		t.Fatalf("expected backoff to reach the cap, got %v", prev)
	}
}

func TestRetryBackoffDefaults(t *testing.T) {
	if got := retryBackoff(1, 0, 0); got != time.Minute {
		t.Fatalf("expected default base of 1m, got %v", got)
	}
	if got := retryBackoff(30, 0, 0); got != time.Hour {
		t.Fatalf("expected default cap of 1h, got %v", got)
	}
	if got := retryBackoff(0, time.Minute, time.Hour); got != time.Minute {
		t.Fatalf("expected attempt floor of 1, got %v", got)
	}
}
