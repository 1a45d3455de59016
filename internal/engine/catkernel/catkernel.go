// Package catkernel implements the category (row-assignment) kernel: for
// each row, sample a group id per kind and record it, or undo that
// assignment on removal. Grounded on original_source/src/cat_kernel.cc/hpp's
// CatKernel::add_row/remove_row and process_add_task/process_remove_task.
package catkernel

import (
	"math"
	"math/rand"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/assignments"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/model"
	"github.com/crosscatio/crosscat/internal/engine/sampling"
)

// AddRow pushes row's id into the assignments FIFO, splits its diff across
// kinds (ascending kind order, one shared rng stream — spec §4.5), and for
// each kind samples a group id proportional to clustering prior times
// likelihood, applies the diff to that group, and records the resulting
// global group id. Fails with ErrDuplicateRow if id is already tracked.
func AddRow(cc *crosscat.CrossCat, a *assignments.Assignments, rowID domain.RowID, diff domain.Diff, rng *rand.Rand) error {
	_, err := AddRowGroups(cc, a, rowID, diff, rng)
	return err
}

// AddRowGroups is AddRow, additionally returning the packed group id chosen
// in each kind. The kind kernel needs these to replay the same assignment
// into its shadow proposer mixture (spec §4.6) without resampling.
func AddRowGroups(cc *crosscat.CrossCat, a *assignments.Assignments, rowID domain.RowID, diff domain.Diff, rng *rand.Rand) ([]uint32, error) {
	if err := a.PushRow(rowID); err != nil {
		return nil, err
	}
	partials := cc.DiffSplit(diff)
	packed := make([]uint32, len(cc.Kinds))
	for k, kind := range cc.Kinds {
		groupPacked := sampleGroup(kind.Mixture, kind.Model, partials[k], rng)
		p, _ := kind.Mixture.AddDiff(kind.Model, groupPacked, partials[k], rng)
		packed[k] = p
		global := kind.Mixture.IDs.PackedToGlobal(p)
		a.PushGroup(domain.KindID(k), global)
	}
	return packed, nil
}

// RemoveRow pops the row id (asserting it matches rowID — RowIDMismatch is
// fatal, per spec §4.5), pops one global group id per kind, translates each
// to its current packed index, and undoes the diff's effect on that group.
func RemoveRow(cc *crosscat.CrossCat, a *assignments.Assignments, rowID domain.RowID, diff domain.Diff, rng *rand.Rand) error {
	_, err := RemoveRowGroups(cc, a, rowID, diff, rng)
	return err
}

// RemoveRowGroups is RemoveRow, additionally returning the packed group id
// each kind's group was resolved to before it was undone — the same
// lockstep-replay need as AddRowGroups.
func RemoveRowGroups(cc *crosscat.CrossCat, a *assignments.Assignments, rowID domain.RowID, diff domain.Diff, rng *rand.Rand) ([]uint32, error) {
	popped, err := a.PopRow()
	if err != nil {
		return nil, err
	}
	if popped != rowID {
		return nil, domain.ErrRowIDMismatch
	}
	partials := cc.DiffSplit(diff)
	packed := make([]uint32, len(cc.Kinds))
	for k, kind := range cc.Kinds {
		global, err := a.PopGroup(domain.KindID(k))
		if err != nil {
			return nil, err
		}
		p, ok := kind.Mixture.IDs.GlobalToPacked(global)
		if !ok {
			return nil, domain.ErrSchemaMismatch
		}
		kind.Mixture.RemoveDiff(kind.Model, p, partials[k], rng)
		packed[k] = p
	}
	return packed, nil
}

// sampleGroup scores partial against every live group in mx (likelihood
// from ScoreDiff, combined with the Pitman-Yor clustering prior), then
// draws a packed group id proportional to the product, via the same
// max-subtracted softmax draw the source's sample_from_scores_overwrite
// implements (sampling.FromLogScores). Every reserve slot carries identical
// prior and (freshly initialised) likelihood, so if the draw lands on any
// reserve it is canonicalized to Clustering.FirstReserve(): GroupCounts only
// maintains its contiguous occupied/reserve layout correctly when the
// consumed reserve sits at that boundary (see FirstReserve's doc comment).
func sampleGroup(mx *model.ProductMixture, mdl *model.ProductModel, partial domain.Diff, rng *rand.Rand) uint32 {
	scores := make([]float64, mx.PackedSize())
	mx.ScoreDiff(mdl, partial, scores, rng)
	for g := range scores {
		scores[g] += math.Log(mx.Clustering.Prior(uint32(g)))
	}
	g := uint32(sampling.FromLogScores(rng, scores))
	if mx.Clustering.IsEmpty(g) {
		g = mx.Clustering.FirstReserve()
	}
	return g
}
