// Package pipeline implements the row-processing pipeline (spec.md §4.9): a
// bounded ring of task slots driven through a fixed sequence of ordered
// stages by dedicated consumer goroutines, with strict per-slot stage
// ordering and cyclic-ring reuse. Grounded on original_source/src/pipeline.hpp,
// original_source/src/parallel_queue.hpp, original_source/src/atomic_array.hpp.
//
// Go's sync.Cond stands in for the source's condition variable + atomic
// fence pair (spec.md §9: "no ad-hoc platform-specific fences are required
// if the language model provides acquire/release" — every access to a
// slot's state word happens with p.mu held, including across
// sync.Cond.Wait's releases and reacquires, so the mutex alone already
// gives the needed ordering; no separate atomic type is needed on top of
// it). Every slot carries one packed state word (current stage,
// remaining-consumers-in-stage); the last consumer to release a stage
// advances the word to the next stage's initial count, or back to the
// "free for producer" sentinel after the final stage.
package pipeline

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/crosscatio/crosscat/internal/domain"
)

// Task is one row's payload as it moves through the pipeline: whether it is
// an ADD or REMOVE action, the row id, its raw diff, the per-kind partial
// diffs stage 1 (parse) fills in, and a deterministic per-task rng seeded
// strictly by task index (never by which thread/worker handles it), so that
// the sequential (capacity=0) and pipelined (capacity>0) code paths produce
// bit-identical results from the same seed (spec.md §8 Scenario 5). Exit is
// the shutdown sentinel: every consumer that observes it terminates after
// releasing its stage. Claimed is the test-and-set flag a multi-consumer
// stage uses so that only one of its racing consumers does the real work
// for a given task and the rest release as no-ops (spec.md §4.9 stage 1:
// "parallelized by a test-and-set flag per task so parsers race for each
// task but only one wins").
type Task struct {
	Index        uint64
	IsAdd        bool
	RowID        domain.RowID
	Diff         domain.Diff
	PartialDiffs []domain.Diff
	Rng          *rand.Rand
	Exit         bool
	Claimed      atomic.Bool
}

// StageSpec describes one pipeline stage: its name (for logging/metrics),
// its fixed consumer count, and the callback each of those consumers runs
// against a task once the slot reaches this stage. consumerIdx distinguishes
// the role within the stage (e.g. stage 0's consumerIdx 0 reads the
// unassigned cursor, consumerIdx 1 the assigned cursor; stage 2's
// consumerIdx 0 is the row-id fifo thread, consumerIdx i>0 owns kind i-1).
type StageSpec struct {
	Name      string
	Consumers int
	Run       func(task *Task, consumerIdx int)
}

// slot's state word is read and written only while Pipeline.mu is held
// (including across sync.Cond.Wait's implicit unlock/relock), so a plain
// uint64 suffices; there is no access path that needs its own atomicity.
type slot struct {
	state uint64
	task  Task
}

func pack(stage, count uint32) uint64 { return uint64(stage)<<32 | uint64(count) }
func unpack(v uint64) (stage, count uint32) {
	return uint32(v >> 32), uint32(v)
}

// Pipeline is a fixed-capacity ring of capacity+1 task slots driven through
// stages. Construct with NewPipeline, launch one goroutine per
// (stage, consumerIdx) pair via RunConsumer, feed rows with Produce, and
// call Close once the row source is exhausted to drain every consumer.
type Pipeline struct {
	stages   []StageSpec
	ring     []*slot
	ringSize int
	rootSeed int64

	mu            sync.Mutex
	cond          *sync.Cond
	produceCursor int
	nextIndex     uint64
}

// NewPipeline returns a pipeline with the given ring capacity (the true ring
// size is capacity+1, matching the source's "capacity + 1 task slots" so a
// full ring always leaves the producer one free slot to detect fully-drained
// state) and ordered stage list. rootSeed seeds every task's per-row rng
// deterministically by task index.
func NewPipeline(capacity int, stages []StageSpec, rootSeed int64) *Pipeline {
	ringSize := capacity + 1
	p := &Pipeline{
		stages:   stages,
		ring:     make([]*slot, ringSize),
		ringSize: ringSize,
		rootSeed: rootSeed,
	}
	p.cond = sync.NewCond(&p.mu)
	freeState := pack(uint32(len(stages)), 1)
	for i := range p.ring {
		p.ring[i] = &slot{state: freeState}
	}
	return p
}

// Produce blocks until the next ring slot (in strict cyclic order) is free,
// fills it via fill, seeds its rng from rootSeed+index, and releases it into
// stage 0. fill must not set Index, Exit, or Rng — Produce owns those.
func (p *Pipeline) Produce(fill func(task *Task)) {
	p.produceInternal(fill, false)
}

// Close enqueues the exit sentinel task: every consumer goroutine terminates
// after observing it (spec.md §4.9 "Cancellation and shutdown"). Callers
// must still join every RunConsumer goroutine after calling Close to observe
// full drain.
func (p *Pipeline) Close() {
	p.produceInternal(nil, true)
}

func (p *Pipeline) produceInternal(fill func(task *Task), exit bool) {
	numStages := uint32(len(p.stages))
	freeState := pack(numStages, 1)

	p.mu.Lock()
	s := p.ring[p.produceCursor]
	for s.state != freeState {
		p.cond.Wait()
	}
	index := p.nextIndex
	p.nextIndex++
	s.task = Task{Index: index, Exit: exit}
	if !exit {
		s.task.Rng = rand.New(rand.NewSource(p.rootSeed + int64(index)))
		if fill != nil {
			fill(&s.task)
		}
	}
	var firstCount uint32
	if numStages > 0 {
		firstCount = uint32(p.stages[0].Consumers)
	}
	s.state = pack(0, firstCount)
	p.produceCursor = (p.produceCursor + 1) % p.ringSize
	p.mu.Unlock()
	p.cond.Broadcast()
}

// RunConsumer runs consumerIdx's loop for stage stageIdx until it processes
// the exit sentinel task, then returns. Intended to be launched as its own
// goroutine; a pipeline with stage consumer counts [c0, c1, ...] needs
// sum(ci) goroutines total, one per (stage, consumerIdx) pair.
func (p *Pipeline) RunConsumer(stageIdx, consumerIdx int) {
	numStages := uint32(len(p.stages))
	cursor := 0
	var next uint64
	for {
		s := p.ring[cursor]

		p.mu.Lock()
		for {
			stage, _ := unpack(s.state)
			if stage == uint32(stageIdx) && s.task.Index == next {
				break
			}
			p.cond.Wait()
		}
		task := &s.task
		p.mu.Unlock()

		if !task.Exit {
			p.stages[stageIdx].Run(task, consumerIdx)
		}

		p.mu.Lock()
		stage, count := unpack(s.state)
		count--
		if count == 0 {
			if stageIdx+1 < len(p.stages) {
				s.state = pack(uint32(stageIdx+1), uint32(p.stages[stageIdx+1].Consumers))
			} else {
				s.state = pack(numStages, 1)
			}
		} else {
			s.state = pack(stage, count)
		}
		exit := task.Exit
		p.mu.Unlock()
		p.cond.Broadcast()

		if exit {
			return
		}
		cursor = (cursor + 1) % p.ringSize
		next++
	}
}
