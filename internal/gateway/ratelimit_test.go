package gateway

import "testing"

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(0, 5)
	for i := 0; i < 100; i++ {
		if !r.Allow("anyone") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterBurstThenReject(t *testing.T) {
	r := NewRateLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if !r.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected inside burst", i)
		}
	}
	// Refill is 1/s; the fourth immediate request exceeds the burst.
	if r.Allow("1.2.3.4") {
		t.Error("request beyond burst allowed")
	}
	// Other keys have their own bucket.
	if !r.Allow("5.6.7.8") {
		t.Error("fresh key rejected")
	}
}

func TestRateLimiterKeyCap(t *testing.T) {
	r := NewRateLimiter(60, 1)
	for i := 0; i < maxTrackedKeys+10; i++ {
		r.Allow(string(rune(i)))
	}
	if len(r.limiters) > maxTrackedKeys {
		t.Errorf("tracked keys = %d, want <= %d", len(r.limiters), maxTrackedKeys)
	}
}
