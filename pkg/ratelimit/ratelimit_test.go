package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesTokens(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1", 3) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1", 3) {
		t.Fatal("fourth request should be limited")
	}
	if !l.Allow("10.0.0.2", 3) {
		t.Fatal("other key should have its own bucket")
	}
}

func TestResetAndSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx, time.Minute)

	l.Allow("a", 1)
	if l.Allow("a", 1) {
		t.Fatal("expected limit")
	}
	l.Reset("a")
	if !l.Allow("a", 1) {
		t.Fatal("expected allow after reset")
	}

	l.sweep(time.Now().Add(time.Hour))
	if l.Len() != 0 {
		t.Errorf("expected stale entries swept, have %d", l.Len())
	}
}
