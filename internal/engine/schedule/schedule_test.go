package schedule

import "testing"

func TestAnnealingRatio(t *testing.T) {
	cases := []struct {
		name        string
		extraPasses float64
		steps       int
	}{
		{"no extra passes", 0, 10000},
		{"one extra pass", 1, 10000},
		{"three extra passes", 3, 20000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAnnealing(tc.extraPasses)
			if err != nil {
				t.Fatalf("NewAnnealing: %v", err)
			}
			var add, remove int
			for i := 0; i < tc.steps; i++ {
				if a.NextActionIsAdd() {
					add++
				} else {
					remove++
				}
			}
			want := tc.extraPasses / (1 + tc.extraPasses)
			got := float64(remove) / float64(add)
			tol := 1.0 / float64(tc.steps) * 10
			if diff := got - want; diff > tol || diff < -tol {
				t.Errorf("remove/add = %v, want ~%v (tol %v)", got, want, tol)
			}
		})
	}
}

func TestNewAnnealingRejectsOutOfRange(t *testing.T) {
	if _, err := NewAnnealing(-1); err == nil {
		t.Fatal("expected error for negative extra_passes")
	}
	if _, err := NewAnnealing(MaxExtraPasses + 1); err == nil {
		t.Fatal("expected error above MaxExtraPasses")
	}
	if _, err := NewAnnealing(0); err != nil {
		t.Fatalf("extra_passes=0 must be accepted (see SPEC_FULL.md §5): %v", err)
	}
}

func TestBatchedAnnealingProcessesBatchWhenStaleDrained(t *testing.T) {
	b, err := NewBatchedAnnealing(1, 0)
	if err != nil {
		t.Fatalf("NewBatchedAnnealing: %v", err)
	}
	var adds, batches int
	if a := b.NextAction(); a != ActionAdd {
		t.Fatalf("action 0: got %v, want add (stale pool starts empty)", a)
	}
	adds++
	// The stale pool is still empty and one fresh row is waiting, so the next
	// call must process the batch rather than attempt a remove against an
	// empty stale pool.
	if a := b.NextAction(); a != ActionProcessBatch {
		t.Fatalf("got %v, want process_batch", a)
	}
	batches++
	if b.StaleCount() != uint64(adds) {
		t.Fatalf("stale count = %d, want %d", b.StaleCount(), adds)
	}
	if b.FreshCount() != 0 {
		t.Fatalf("fresh count = %d, want 0 after batch processed", b.FreshCount())
	}
}

func TestAcceleratingIsMonotonicallyNonincreasing(t *testing.T) {
	acc := NewAccelerating(1000, 0)
	prev := acc.ExtraPasses(1)
	for _, rows := range []uint64{10, 100, 1000, 10000} {
		got := acc.ExtraPasses(rows)
		if got > prev {
			t.Fatalf("extra_passes(%d) = %v > previous %v, want nonincreasing", rows, got, prev)
		}
		prev = got
	}
	if got := acc.ExtraPasses(1_000_000); got != acc.MinExtraPasses {
		t.Fatalf("extra_passes at large row count = %v, want floor %v", got, acc.MinExtraPasses)
	}
}

func TestDisablingLatchTripsAfterConsecutiveZeroMoveSweeps(t *testing.T) {
	latch := NewDisablingLatch(3)
	latch.RecordSweep(5)
	if latch.Disabled() {
		t.Fatal("latch tripped after a productive sweep")
	}
	latch.RecordSweep(0)
	latch.RecordSweep(0)
	if latch.Disabled() {
		t.Fatal("latch tripped before maxRejectIters consecutive zero-move sweeps")
	}
	latch.RecordSweep(0)
	if !latch.Disabled() {
		t.Fatal("latch should have tripped after 3 consecutive zero-move sweeps")
	}
	// One-way: a later productive sweep must not matter, since the latch is
	// never consulted again by the driver once it reports disabled, but
	// RecordSweep itself must remain a no-op rather than reset state.
	latch.RecordSweep(5)
	if !latch.Disabled() {
		t.Fatal("latch must stay disabled once tripped")
	}
}

func TestDisablingLatchNeverTripsWhenMaxIsZero(t *testing.T) {
	latch := NewDisablingLatch(0)
	for i := 0; i < 100; i++ {
		latch.RecordSweep(0)
	}
	if latch.Disabled() {
		t.Fatal("max_reject_iters=0 must mean the latch never trips")
	}
}
