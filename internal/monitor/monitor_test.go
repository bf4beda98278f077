package monitor

import (
	"testing"
	"time"
)

func TestMonitorMovingAverages(t *testing.T) {
	m := New(nil)
	m.PullServed(10 * time.Millisecond)
	m.PullServed(20 * time.Millisecond)
	if avg := m.PullAvgMillis(); avg < 14 || avg > 16 {
		t.Fatalf("expected pull avg around 15ms, got %f", avg)
	}

	m.PushServed(40*time.Millisecond, 3)
	if avg := m.PushAvgMillis(); avg < 39 || avg > 41 {
		t.Fatalf("expected push avg around 40ms, got %f", avg)
	}
}

func TestMonitorNilIsSafe(t *testing.T) {
	var m *Monitor
	m.PullServed(time.Millisecond)
	m.PushServed(time.Millisecond, 1)
	m.Start()
	m.Stop()
}

func TestMonitorStartStop(t *testing.T) {
	m := New(nil)
	m.Start()
	m.Start() // second start is a no-op
	m.Stop()
	m.Stop() // second stop is a no-op
}
