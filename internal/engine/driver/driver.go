// Package driver implements the streaming annealing driver (spec.md §4.1,
// component K): it consumes a row stream and, guided by the annealing and
// batching schedule, alternates ADD/REMOVE actions against the
// cross-categorization state, running the kind kernel and the hyperparameter
// kernel at every batch boundary, logging progress, and checkpointing.
// Grounded on original_source/src/loom.cc and original_source/src/infer.cc,
// with the pipeline/sequential split spec.md §4.1 describes ("a loop variant
// also chooses sequential vs. pipelined execution based on whether
// row_queue_capacity > 0").
package driver

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosscatio/crosscat/internal/config"
	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/assignments"
	"github.com/crosscatio/crosscat/internal/engine/catkernel"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/hyperkernel"
	"github.com/crosscatio/crosscat/internal/engine/kindkernel"
	"github.com/crosscatio/crosscat/internal/engine/pipeline"
	"github.com/crosscatio/crosscat/internal/engine/schedule"
	"github.com/crosscatio/crosscat/internal/engine/stream"
	"github.com/crosscatio/crosscat/internal/infra/observability"
	"github.com/crosscatio/crosscat/internal/infra/store"
)

// Config is the subset of internal/config.Config the driver needs, plus the
// grids/seeds the kind and hyper kernels take directly.
type Config struct {
	Seed     int64
	Cat      config.CatConfig
	Kind     config.KindConfig
	Hyper    config.HyperConfig
	Schedule config.ScheduleConfig

	KindKernel  kindkernel.Config
	HyperKernel hyperkernel.Config

	// Accelerating, when non-zero, recomputes schedule.extra_passes at
	// every batch boundary from the current row count (spec.md §4.1). The
	// zero value disables it, leaving Schedule.ExtraPasses fixed.
	Accelerating schedule.Accelerating
}

// Driver orchestrates the category kernel, kind kernel, and hyperparameter
// kernel under the annealing/batching schedule, against one cross_cat and
// one row stream.
type Driver struct {
	cc       *crosscat.CrossCat
	assign   *assignments.Assignments
	interval *stream.Interval
	proposer *kindkernel.Proposer

	cfg   Config
	sched *schedule.BatchedAnnealing
	latch *schedule.DisablingLatch
	rng   *rand.Rand

	logger observability.Logger
	db     *store.DB
	runID  string

	tardisIter uint64
	kindOn     bool
}

// New constructs a driver over an already-loaded cross_cat, a fresh
// assignments store, and source. runID, if empty, is generated via
// uuid.New() (spec.md §3 domain stack: "run IDs stamped into checkpoints and
// log records").
func New(cc *crosscat.CrossCat, source stream.RowSource, cfg Config, logger observability.Logger, db *store.DB, runID string) (*Driver, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	assign := assignments.New(len(cc.Kinds))
	sched, err := schedule.NewBatchedAnnealing(cfg.Schedule.ExtraPasses, 0)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cc:       cc,
		assign:   assign,
		interval: stream.NewInterval(source),
		proposer: kindkernel.NewProposer(),
		cfg:      cfg,
		sched:    sched,
		latch:    schedule.NewDisablingLatch(cfg.Schedule.MaxRejectIters),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logger:   logger.WithFields(observability.Fields{"run_id": runID}),
		db:       db,
		runID:    runID,
		kindOn:   cfg.Kind.Iterations > 0,
	}
	return d, nil
}

// Resume restores a driver's state from a previously saved checkpoint and
// assignments snapshot (spec.md §6 Checkpoint record). sortedToGlobal must
// be the id-tracker remap cc's kinds held at Dump time, in the same order
// Snapshot/Restore expect.
func (d *Driver) Resume(cp store.Checkpoint, records []assignments.Record, sortedToGlobal [][]domain.GlobalGroupID) error {
	d.rng = rand.New(rand.NewSource(cp.Seed))
	d.tardisIter = cp.TardisIter
	d.interval.Load(cp.UnassignedPos, cp.AssignedPos)
	if err := d.assign.Restore(records, sortedToGlobal); err != nil {
		return err
	}
	var state schedule.State
	if err := decodeScheduleState(cp.ScheduleState, &state); err != nil {
		return err
	}
	d.sched.Load(state)
	return nil
}

// TardisIter returns the number of batch boundaries processed so far
// (spec.md §6 Checkpoint record's tardis_iter field).
func (d *Driver) TardisIter() uint64 { return d.tardisIter }

// RunBatches drives the schedule for exactly numBatches PROCESS_BATCH
// boundaries (ADD/REMOVE actions in between are consumed transparently),
// checkpointing after each one if db is non-nil. Returns finished=true once
// numBatches boundaries have been reached; finished=false only if the
// caller-supplied numBatches is 0 (nothing requested).
func (d *Driver) RunBatches(numBatches int) (finished bool, err error) {
	if numBatches <= 0 {
		return false, nil
	}
	for i := 0; i < numBatches; i++ {
		if err := d.runToNextBatch(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// runToNextBatch consumes ADD/REMOVE actions until the schedule emits
// PROCESS_BATCH, applying each action sequentially (RunPipelined is the path
// that routes actions through the pipeline), then runs the kind and hyper
// kernels and checkpoints.
func (d *Driver) runToNextBatch() error {
	for {
		action := d.sched.NextAction()
		switch action {
		case schedule.ActionAdd:
			rec := d.interval.ReadUnassigned()
			if err := d.applyAdd(rec); err != nil {
				return err
			}
			observability.DriverIterationTotal.Inc()
		case schedule.ActionRemove:
			rec := d.interval.ReadAssigned()
			if err := d.applyRemove(rec); err != nil {
				return err
			}
			observability.DriverIterationTotal.Inc()
		case schedule.ActionProcessBatch:
			return d.processBatch()
		}
	}
}

func (d *Driver) applyAdd(rec stream.Record) error {
	if d.useKindLoop() {
		packed, err := catkernel.AddRowGroups(d.cc, d.assign, rec.RowID, rec.Diff, d.rng)
		if err != nil {
			return err
		}
		d.proposer.AddRow(packed, rec.Diff, d.rng)
		return nil
	}
	return catkernel.AddRow(d.cc, d.assign, rec.RowID, rec.Diff, d.rng)
}

func (d *Driver) applyRemove(rec stream.Record) error {
	if d.useKindLoop() {
		packed, err := catkernel.RemoveRowGroups(d.cc, d.assign, rec.RowID, rec.Diff, d.rng)
		if err != nil {
			return err
		}
		d.proposer.RemoveRow(packed, rec.Diff, d.rng)
		return nil
	}
	return catkernel.RemoveRow(d.cc, d.assign, rec.RowID, rec.Diff, d.rng)
}

// useKindLoop reports whether the driver should replay row mutations into
// the shadow proposer too (spec.md §4.1: "if kind inference is enabled and
// not yet disabled by stability, drive the kind-kernel loop").
func (d *Driver) useKindLoop() bool {
	return d.kindOn && !d.latch.Disabled()
}

// processBatch runs the kind kernel (if the kind loop is active) and the
// hyper kernel, recomputes the accelerating extra_passes schedule, logs a
// batch-boundary record, and checkpoints.
func (d *Driver) processBatch() error {
	start := time.Now()

	if d.useKindLoop() {
		result, err := kindkernel.Run(d.cc, d.assign, d.proposer, d.cfg.KindKernel, d.rng)
		if err != nil {
			return err
		}
		d.latch.RecordSweep(uint64(result.Changed))
		observability.KindChangeTotal.Add(float64(result.Changed))
		observability.KindBirthTotal.Add(float64(result.Births))
		observability.KindDeathTotal.Add(float64(result.Deaths))
		observability.KindTareTimeSeconds.Observe(result.TareTime.Seconds())
		observability.KindScoreTimeSeconds.Observe(result.ScoreTime.Seconds())
		observability.KindSampleTimeSeconds.Observe(result.SampleTime.Seconds())
	}

	if d.cfg.Hyper.Run {
		hyperStart := time.Now()
		if err := hyperkernel.Run(d.cc, d.cfg.HyperKernel, d.rng); err != nil {
			return err
		}
		observability.HyperResampleSeconds.Observe(time.Since(hyperStart).Seconds())
	}

	d.tardisIter++

	if d.cfg.Accelerating.TargetRowSweeps > 0 {
		extraPasses := d.cfg.Accelerating.ExtraPasses(uint64(d.assign.RowCount()))
		newSched, err := schedule.NewBatchedAnnealing(extraPasses, uint64(d.assign.RowCount()))
		if err != nil {
			return err
		}
		d.sched = newSched
	}

	ru := observability.RUsageSnapshot()
	observability.DriverRUsageMaxRSSBytes.Set(float64(ru.MaxRSSBytes))
	d.logger.Infof("batch boundary reached", )
	d.logger.WithFields(observability.Fields{
		"tardis_iter":    d.tardisIter,
		"row_count":      d.assign.RowCount(),
		"max_rss_bytes":  ru.MaxRSSBytes,
		"user_time":      ru.UserTime,
		"sys_time":       ru.SysTime,
		"elapsed_seconds": time.Since(start).Seconds(),
	}).Infof("batch %d complete", d.tardisIter)

	if d.db != nil {
		return d.checkpoint()
	}
	return nil
}

// SnapshotAssignments returns every currently-assigned row's id and its
// group id in each kind, remapped through each kind's IDs.SortedToGlobal()
// the same way a checkpoint's assignments blob is (spec.md §6 Checkpoint
// record). That order is ascending global id, not popularity. Used by posterior
// enumeration to capture one sample of the row->group partition without
// requiring a checkpoint database.
func (d *Driver) SnapshotAssignments() ([]assignments.Record, error) {
	sortedToGlobal := make([][]domain.GlobalGroupID, len(d.cc.Kinds))
	for k, kind := range d.cc.Kinds {
		sortedToGlobal[k] = kind.Mixture.IDs.SortedToGlobal()
	}
	return d.assign.Snapshot(sortedToGlobal)
}

func (d *Driver) checkpoint() error {
	unassigned, assignedPos := d.interval.Dump()
	encoded, err := encodeScheduleState(d.sched.Dump())
	if err != nil {
		return err
	}
	cp := store.Checkpoint{
		Seed:          d.rng.Int63(),
		RowCount:      uint64(d.assign.RowCount()),
		TardisIter:    d.tardisIter,
		UnassignedPos: unassigned,
		AssignedPos:   assignedPos,
		ScheduleState: encoded,
		Finished:      false,
	}
	if err := d.db.SaveCheckpoint(d.runID, cp); err != nil {
		return err
	}

	sortedToGlobal := make([][]domain.GlobalGroupID, len(d.cc.Kinds))
	for k, kind := range d.cc.Kinds {
		sortedToGlobal[k] = kind.Mixture.IDs.SortedToGlobal()
	}
	records, err := d.assign.Snapshot(sortedToGlobal)
	if err != nil {
		return err
	}
	return d.db.SaveAssignments(d.runID, records, sortedToGlobal)
}

// RunPipelined is RunBatches' equivalent for the ADD/REMOVE leg of the loop
// when cfg.Cat.RowQueueCapacity (cat loop) or cfg.Kind.RowQueueCapacity
// (kind loop) is nonzero: row mutations are fed through a pipeline.Pipeline
// ring instead of applied inline, giving the fetch/split/mutate stages
// spec.md §4.9 describes their own goroutines. The kind and hyper kernels
// still run outside the pipeline at each batch boundary, draining it first
// (spec.md §5: "fork-join code... happens outside any pipeline").
func (d *Driver) RunPipelined(numBatches int) (finished bool, err error) {
	if numBatches <= 0 {
		return false, nil
	}
	for i := 0; i < numBatches; i++ {
		if err := d.runToNextBatchPipelined(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// pendingAction is a queued ADD/REMOVE decision from the schedule, buffered
// up while runToNextBatchPipelined collects a batch's worth of actions
// before handing them to drainPipeline in one shot.
type pendingAction struct {
	isAdd bool
}

func (d *Driver) runToNextBatchPipelined() error {
	capacity := int(d.cfg.Cat.RowQueueCapacity)
	if d.useKindLoop() {
		capacity = int(d.cfg.Kind.RowQueueCapacity)
	}
	if capacity <= 0 {
		return d.runToNextBatch()
	}

	var actions []pendingAction
	for {
		action := d.sched.NextAction()
		switch action {
		case schedule.ActionAdd:
			actions = append(actions, pendingAction{isAdd: true})
		case schedule.ActionRemove:
			actions = append(actions, pendingAction{isAdd: false})
		case schedule.ActionProcessBatch:
			if err := d.drainPipeline(capacity, actions); err != nil {
				return err
			}
			return d.processBatch()
		}
	}
}

// parserThreads selects kernels.cat.parser_threads or
// kernels.kind.parser_threads (spec.md §6), matching whichever loop the
// batch is currently driving, and sizes the pipeline's "split" stage's
// consumer count (spec.md §4.9 stage 1: "one or more threads").
func (d *Driver) parserThreads() int {
	n := d.cfg.Cat.ParserThreads
	if d.useKindLoop() {
		n = d.cfg.Kind.ParserThreads
	}
	if n == 0 {
		return 1
	}
	return int(n)
}

// drainPipeline pushes every queued action through a 3-stage pipeline
// (fetch from the stream, split into per-kind diffs, mutate the live
// mixtures) and waits for it to drain, observability.PipelineQueueDepth is
// updated from the ring's configured capacity as a coarse backpressure
// signal (the ring itself does not expose live occupancy outside its
// internal mutex).
func (d *Driver) drainPipeline(capacity int, actions []pendingAction) error {
	observability.PipelineQueueDepth.Set(float64(capacity))
	defer observability.PipelineQueueDepth.Set(0)

	var firstErr error
	stages := []pipeline.StageSpec{
		{
			Name:      "fetch",
			Consumers: 1,
			Run: func(task *pipeline.Task, _ int) {
				if task.IsAdd {
					task.RowID, task.Diff = d.readUnassignedInto(task)
				} else {
					task.RowID, task.Diff = d.readAssignedInto(task)
				}
			},
		},
		{
			// "split" races d.parserThreads() consumers against each task:
			// the raw-byte parse itself happens upstream at the RowSource
			// boundary (spec.md §1 places that format outside THE CORE), so
			// per-kind diff routing is the CPU work this stage's
			// parser_threads race protects (spec.md §4.9: "parallelized by
			// a test-and-set flag per task so parsers race for each task
			// but only one wins").
			Name:      "split",
			Consumers: d.parserThreads(),
			Run: func(task *pipeline.Task, _ int) {
				if task.Claimed.CompareAndSwap(false, true) {
					task.PartialDiffs = d.cc.DiffSplit(task.Diff)
				}
			},
		},
		{
			Name:      "mutate",
			Consumers: 1,
			Run: func(task *pipeline.Task, _ int) {
				var err error
				if task.IsAdd {
					err = d.applyAdd(stream.Record{RowID: task.RowID, Diff: task.Diff})
				} else {
					err = d.applyRemove(stream.Record{RowID: task.RowID, Diff: task.Diff})
				}
				if err != nil && firstErr == nil {
					firstErr = err
				}
			},
		},
	}

	p := pipeline.NewPipeline(capacity, stages, d.rng.Int63())
	done := make(chan struct{})
	var wg sync.WaitGroup
	for s, spec := range stages {
		for c := 0; c < spec.Consumers; c++ {
			wg.Add(1)
			go func(stageIdx, consumerIdx int) {
				defer wg.Done()
				p.RunConsumer(stageIdx, consumerIdx)
			}(s, c)
		}
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	for _, a := range actions {
		isAdd := a.isAdd
		p.Produce(func(task *pipeline.Task) { task.IsAdd = isAdd })
	}
	p.Close()
	<-done
	return firstErr
}

func (d *Driver) readUnassignedInto(*pipeline.Task) (domain.RowID, domain.Diff) {
	rec := d.interval.ReadUnassigned()
	return rec.RowID, rec.Diff
}

func (d *Driver) readAssignedInto(*pipeline.Task) (domain.RowID, domain.Diff) {
	rec := d.interval.ReadAssigned()
	return rec.RowID, rec.Diff
}
