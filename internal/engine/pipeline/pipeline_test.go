package pipeline

import (
	"sync"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
)

func TestPipelineProcessesTasksInOrderAcrossStages(t *testing.T) {
	const n = 200
	var mu sync.Mutex
	var seenStage0, seenFinal []uint64

	stages := []StageSpec{
		{Name: "unzip", Consumers: 1, Run: func(task *Task, _ int) {
			mu.Lock()
			seenStage0 = append(seenStage0, task.Index)
			mu.Unlock()
		}},
		{Name: "parse", Consumers: 1, Run: func(task *Task, _ int) {}},
		{Name: "mutate", Consumers: 2, Run: func(task *Task, consumerIdx int) {
			if consumerIdx != 0 {
				return
			}
			mu.Lock()
			seenFinal = append(seenFinal, task.Index)
			mu.Unlock()
		}},
	}

	p := NewPipeline(8, stages, 42)

	var wg sync.WaitGroup
	for s, spec := range stages {
		for c := 0; c < spec.Consumers; c++ {
			wg.Add(1)
			go func(s, c int) {
				defer wg.Done()
				p.RunConsumer(s, c)
			}(s, c)
		}
	}

	for i := 0; i < n; i++ {
		rid := domain.RowID(i)
		p.Produce(func(task *Task) {
			task.IsAdd = true
			task.RowID = rid
		})
	}
	p.Close()
	wg.Wait()

	if len(seenStage0) != n || len(seenFinal) != n {
		t.Fatalf("stage0 saw %d tasks, final stage saw %d, want %d each", len(seenStage0), len(seenFinal), n)
	}
	for i := 0; i < n; i++ {
		if seenStage0[i] != uint64(i) {
			t.Fatalf("stage0 order[%d] = %d, want %d", i, seenStage0[i], i)
		}
		if seenFinal[i] != uint64(i) {
			t.Fatalf("final stage order[%d] = %d, want %d", i, seenFinal[i], i)
		}
	}
}

func TestPipelineTaskRngIsDeterministicByIndex(t *testing.T) {
	var mu sync.Mutex
	draws := make(map[uint64]float64)

	stages := []StageSpec{
		{Name: "only", Consumers: 1, Run: func(task *Task, _ int) {
			v := task.Rng.Float64()
			mu.Lock()
			draws[task.Index] = v
			mu.Unlock()
		}},
	}

	run := func(capacity int) map[uint64]float64 {
		p := NewPipeline(capacity, stages, 7)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() { defer wg.Done(); p.RunConsumer(0, 0) }()
		for i := 0; i < 50; i++ {
			p.Produce(func(task *Task) {})
		}
		p.Close()
		wg.Wait()
		out := make(map[uint64]float64, len(draws))
		for k, v := range draws {
			out[k] = v
		}
		return out
	}

	draws = make(map[uint64]float64)
	sequential := run(0)
	draws = make(map[uint64]float64)
	pipelined := run(16)

	if len(sequential) != len(pipelined) {
		t.Fatalf("sequential saw %d tasks, pipelined saw %d", len(sequential), len(pipelined))
	}
	for idx, v := range sequential {
		if pipelined[idx] != v {
			t.Fatalf("task %d: sequential rng draw %v != pipelined draw %v (rng must be seeded by task index, not worker)", idx, v, pipelined[idx])
		}
	}
}
