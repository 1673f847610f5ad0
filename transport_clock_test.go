package main

import (
	"math"
	"testing"
	"time"
)

func newTestTransportClock(maxLoop float64) (*TransportClock, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTransportClock(maxLoop)
	tc.nowSource = func() time.Time { return now }
	return tc, &now
}

func TestTransportClockAccumulatesAcrossRateChanges(t *testing.T) {
	tc, now := newTestTransportClock(2.5)
	tc.Start()

	*now = now.Add(time.Second)
	if got := tc.Now(); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("Now = %v, want 1.0", got)
	}

	tc.SetRate(2)
	*now = now.Add(time.Second)
	// 1 + 1·2 = 3 → 3 mod 2.5 = 0.5
	if got := tc.Now(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("Now = %v, want 0.5", got)
	}
	if tc.Rate() != 2 {
		t.Fatalf("Rate = %v, want 2", tc.Rate())
	}
}

func TestTransportClockStopFreezesPosition(t *testing.T) {
	tc, now := newTestTransportClock(10)
	tc.Start()
	*now = now.Add(1500 * time.Millisecond)
	tc.Stop()

	*now = now.Add(5 * time.Second)
	if got := tc.Now(); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("Now after Stop = %v, want 1.5", got)
	}

	tc.Start()
	*now = now.Add(500 * time.Millisecond)
	if got := tc.Now(); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("Now after restart = %v, want 2.0", got)
	}
}

func TestTransportClockZeroLoop(t *testing.T) {
	tc, now := newTestTransportClock(0)
	tc.Start()
	*now = now.Add(3 * time.Second)
	if got := tc.Now(); got != 0 {
		t.Fatalf("Now = %v, want 0", got)
	}
}

func TestTransportClockIgnoresNonPositiveRate(t *testing.T) {
	tc, _ := newTestTransportClock(4)
	tc.SetRate(0)
	tc.SetRate(-1)
	if tc.Rate() != 1 {
		t.Fatalf("Rate = %v, want 1", tc.Rate())
	}
}
