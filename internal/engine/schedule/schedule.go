// Package schedule implements the streaming annealing driver's ADD/REMOVE
// interleaver (spec.md §4.1), its batching wrapper, the accelerating
// extra_passes schedule, and the kind-inference disabling latch. Grounded on
// original_source/src/annealing_schedule.hpp and
// original_source/src/schedules.hpp.
package schedule

import "github.com/crosscatio/crosscat/internal/domain"

// Annealing is the deterministic ADD/REMOVE interleaver: given
// extra_passes >= 0, it emits ADD and REMOVE actions in whatever order
// yields the long-run ratio remove/add = extra_passes/(1+extra_passes) with
// minimal burstiness (spec.md §4.1). NewAnnealing only rejects negative
// extra_passes (see SPEC_FULL.md §5: the source's
// annealing_schedule.hpp asserts extra_passes strictly positive, but
// schedules.hpp — the version the batched wrapper actually uses — relaxes
// this to >= 0, and this port follows schedules.hpp so the batched wrapper's
// zero-extra_passes bootstrap call never fails).
type Annealing struct {
	addRate    float64
	removeRate float64
	state      float64
}

// MaxExtraPasses mirrors the source's enum guard against pathological
// configuration.
const MaxExtraPasses = 1000000

// NewAnnealing returns an interleaver for the given extra_passes. Returns
// ErrInvalidHyperparameters if extra_passes is negative or exceeds
// MaxExtraPasses.
func NewAnnealing(extraPasses float64) (*Annealing, error) {
	if extraPasses < 0 || extraPasses > MaxExtraPasses {
		return nil, domain.ErrInvalidHyperparameters
	}
	addRate := 1.0 + extraPasses
	removeRate := extraPasses
	return &Annealing{
		addRate:    addRate,
		removeRate: removeRate,
		state:      addRate,
	}, nil
}

// Dump returns the interleaver's internal state for checkpointing (spec.md
// §6 Checkpoint record's "schedule_state" field). addRate/removeRate are
// reconstructed from the configured extra_passes on Load, not stored twice.
func (a *Annealing) Dump() float64 { return a.state }

// Load restores state from a prior Dump, leaving addRate/removeRate as
// NewAnnealing already set them.
func (a *Annealing) Load(state float64) { a.state = state }

// NextActionIsAdd reports whether the next action is ADD (true) or REMOVE
// (false), advancing the interleaver's internal state in either case.
func (a *Annealing) NextActionIsAdd() bool {
	if a.state >= 0 {
		a.state -= a.removeRate
		return true
	}
	a.state += a.addRate
	return false
}

// Action is one step of a BatchedAnnealing schedule.
type Action int

const (
	ActionAdd Action = iota
	ActionRemove
	ActionProcessBatch
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionProcessBatch:
		return "process_batch"
	default:
		return "unknown"
	}
}

// BatchedAnnealing wraps Annealing with the stale/fresh row-count pair the
// streaming driver needs: REMOVE actions must only ever touch rows already
// assigned ("stale"), and once every stale row has been revisited the
// schedule hands back the accumulated "fresh" count as a single
// ActionProcessBatch step (spec.md §4.1, §4.9's pipelined batch boundary).
type BatchedAnnealing struct {
	schedule   *Annealing
	staleCount uint64
	freshCount uint64
}

// NewBatchedAnnealing returns a batched schedule starting with
// initialAssignedCount rows already assigned (stale).
func NewBatchedAnnealing(extraPasses float64, initialAssignedCount uint64) (*BatchedAnnealing, error) {
	sched, err := NewAnnealing(extraPasses)
	if err != nil {
		return nil, err
	}
	return &BatchedAnnealing{schedule: sched, staleCount: initialAssignedCount}, nil
}

// NextAction returns the next action: ActionProcessBatch fires exactly once
// whenever the stale pool has been fully drained and at least one fresh row
// is waiting (moving every fresh row into the stale pool for the next
// sweep), otherwise defers to the underlying Annealing interleaver.
func (b *BatchedAnnealing) NextAction() Action {
	if b.staleCount == 0 && b.freshCount > 0 {
		b.staleCount = b.freshCount
		b.freshCount = 0
		return ActionProcessBatch
	}
	if b.schedule.NextActionIsAdd() {
		b.freshCount++
		return ActionAdd
	}
	b.staleCount--
	return ActionRemove
}

// StaleCount and FreshCount expose the schedule's bookkeeping for log
// records and tests.
func (b *BatchedAnnealing) StaleCount() uint64 { return b.staleCount }
func (b *BatchedAnnealing) FreshCount() uint64 { return b.freshCount }

// State is the checkpointable snapshot of a BatchedAnnealing (spec.md §6
// Checkpoint record's "schedule_state" field).
type State struct {
	AnnealingState        float64
	StaleCount, FreshCount uint64
}

// Dump returns b's current state.
func (b *BatchedAnnealing) Dump() State {
	return State{AnnealingState: b.schedule.Dump(), StaleCount: b.staleCount, FreshCount: b.freshCount}
}

// Load restores b from a prior Dump. b must already be constructed with the
// same extra_passes NewBatchedAnnealing used originally.
func (b *BatchedAnnealing) Load(s State) {
	b.schedule.Load(s.AnnealingState)
	b.staleCount = s.StaleCount
	b.freshCount = s.FreshCount
}

// Accelerating computes extra_passes(row_count): a monotonically
// nonincreasing function recomputed at every batch boundary so early
// iterations over small data do proportionally more sweeps (spec.md §4.1).
// Mirrors the source's heuristic of targeting a roughly constant total
// sweep-row budget: extra_passes = max(minExtraPasses, target/rowCount - 1).
type Accelerating struct {
	TargetRowSweeps float64
	MinExtraPasses  float64
}

// NewAccelerating returns an Accelerating schedule targeting targetRowSweeps
// total (row x pass) work per batch, never dropping below minExtraPasses.
func NewAccelerating(targetRowSweeps, minExtraPasses float64) Accelerating {
	return Accelerating{TargetRowSweeps: targetRowSweeps, MinExtraPasses: minExtraPasses}
}

// ExtraPasses returns extra_passes for the given row count. rowCount == 0
// returns MinExtraPasses (nothing to divide by yet, i.e. before the first
// batch boundary).
func (a Accelerating) ExtraPasses(rowCount uint64) float64 {
	if rowCount == 0 {
		return a.MinExtraPasses
	}
	v := a.TargetRowSweeps/float64(rowCount) - 1
	if v < a.MinExtraPasses {
		return a.MinExtraPasses
	}
	return v
}

// DisablingLatch implements `schedule.max_reject_iters` (spec.md §6): the
// kind kernel counts consecutive no-op sweeps (zero feature moves), and once
// that streak reaches maxRejectIters, kind inference is permanently disabled
// for the remainder of the run (spec.md §4.1: "not yet disabled by
// stability"). Never re-enables — a deliberately one-way latch.
type DisablingLatch struct {
	maxRejectIters uint32
	rejectStreak   uint32
	disabled       bool
}

// NewDisablingLatch returns a latch that disables kind inference after
// maxRejectIters consecutive zero-move kind-kernel sweeps. maxRejectIters ==
// 0 means the latch never trips (kind inference always runs).
func NewDisablingLatch(maxRejectIters uint32) *DisablingLatch {
	return &DisablingLatch{maxRejectIters: maxRejectIters}
}

// RecordSweep feeds back one kind-kernel sweep's change count, tripping the
// latch if maxRejectIters consecutive sweeps changed nothing.
func (d *DisablingLatch) RecordSweep(changeCount uint64) {
	if d.maxRejectIters == 0 || d.disabled {
		return
	}
	if changeCount == 0 {
		d.rejectStreak++
		if d.rejectStreak >= d.maxRejectIters {
			d.disabled = true
		}
	} else {
		d.rejectStreak = 0
	}
}

// Disabled reports whether kind inference has been latched off.
func (d *DisablingLatch) Disabled() bool { return d.disabled }

// LatchState is the checkpointable snapshot of a DisablingLatch.
type LatchState struct {
	RejectStreak uint32
	Disabled     bool
}

// Dump returns d's current state.
func (d *DisablingLatch) Dump() LatchState {
	return LatchState{RejectStreak: d.rejectStreak, Disabled: d.disabled}
}

// Load restores d from a prior Dump.
func (d *DisablingLatch) Load(s LatchState) {
	d.rejectStreak = s.RejectStreak
	d.disabled = s.Disabled
}
