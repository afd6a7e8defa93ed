package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerGroupStartStop(t *testing.T) {
	g := NewTickerGroup()
	defer g.StopAll()

	var ticks atomic.Int32
	if !g.Start(context.Background(), "m1", 5*time.Millisecond, func(context.Context) { ticks.Add(1) }) {
		t.Fatalf("Start = false, want true")
	}
	if g.Start(context.Background(), "m1", 5*time.Millisecond, func(context.Context) {}) {
		t.Errorf("second Start = true, want false")
	}

	deadline := time.Now().Add(time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("ticks = %d, want >= 3", ticks.Load())
	}

	if !g.Stop("m1") {
		t.Errorf("Stop = false, want true")
	}
	if g.Stop("m1") {
		t.Errorf("second Stop = true, want false")
	}
	if g.Running("m1") {
		t.Errorf("Running after Stop")
	}

	// let an in-flight tick drain
	time.Sleep(20 * time.Millisecond)
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != after {
		t.Errorf("ticker kept running after Stop")
	}
}

func TestTickerGroupStopFromInsideTick(t *testing.T) {
	g := NewTickerGroup()
	defer g.StopAll()

	done := make(chan struct{})
	var ticks atomic.Int32
	g.Start(context.Background(), "m1", 2*time.Millisecond, func(context.Context) {
		if ticks.Add(1) == 1 {
			g.Stop("m1")
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick never ran")
	}
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != 1 {
		t.Errorf("ticks = %d, want 1", ticks.Load())
	}
}

func TestTickerGroupParentCancel(t *testing.T) {
	g := NewTickerGroup()
	ctx, cancel := context.WithCancel(context.Background())

	g.Start(ctx, "m1", time.Hour, func(context.Context) {})
	cancel()

	deadline := time.Now().Add(time.Second)
	for g.Running("m1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.Running("m1") {
		t.Errorf("ticker still registered after parent cancel")
	}
	// restart with the same id works
	if !g.Start(context.Background(), "m1", time.Hour, func(context.Context) {}) {
		t.Errorf("restart Start = false")
	}
	g.StopAll()
}

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

func TestSweepWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &countingSweeper{}
	StartSweepWorker(ctx, 2*time.Millisecond, s)

	deadline := time.Now().Add(time.Second)
	for s.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.calls.Load() < 2 {
		t.Errorf("sweeps = %d, want >= 2", s.calls.Load())
	}
}
