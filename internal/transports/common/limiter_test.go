package common

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	l := NewRateLimiter(2, time.Second)
	now := time.Now()
	if !l.Allow("console:ops", now) {
		t.Fatal("first should pass")
	}
	if !l.Allow("console:ops", now.Add(100*time.Millisecond)) {
		t.Fatal("second should pass")
	}
	ok, wait := l.Reserve("console:ops", now.Add(200*time.Millisecond))
	if ok || wait != 800*time.Millisecond {
		t.Fatalf("third: ok=%v wait=%v", ok, wait)
	}
	if !l.Allow("ipc:atfwd", now.Add(200*time.Millisecond)) {
		t.Fatal("keys must be independent")
	}
	if !l.Allow("console:ops", now.Add(2*time.Second)) {
		t.Fatal("should pass after window")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	l := NewRateLimiter(1, time.Second)
	now := time.Now()
	l.Allow("a", now)
	l.Allow("b", now.Add(1500*time.Millisecond))

	if n := l.Sweep(now.Add(2 * time.Second)); n != 1 {
		t.Fatalf("swept %d keys, want 1", n)
	}
	if _, ok := l.hits["b"]; !ok {
		t.Fatal("active key must stay")
	}
}
