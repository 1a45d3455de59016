package model

import (
	"reflect"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
)

func testSplitter() *Splitter {
	blocks := []domain.Block{domain.BlockBoolean, domain.BlockCount, domain.BlockBoolean, domain.BlockReal}
	kindOf := []int{0, 1, 0, 1}
	return NewSplitter(blocks, kindOf)
}

func TestNewSplitterAssignsLocalPositions(t *testing.T) {
	s := testSplitter()
	if len(s.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2 kinds", len(s.Features))
	}
	if len(s.Features[0]) != 2 || len(s.Features[1]) != 2 {
		t.Fatalf("kind feature counts = %d, %d, want 2, 2", len(s.Features[0]), len(s.Features[1]))
	}
	if s.Features[0][0].GlobalIdx != 0 || s.Features[0][1].GlobalIdx != 2 {
		t.Errorf("kind 0 local order = %+v, want globals [0, 2]", s.Features[0])
	}
	if s.Features[1][0].GlobalIdx != 1 || s.Features[1][1].GlobalIdx != 3 {
		t.Errorf("kind 1 local order = %+v, want globals [1, 3]", s.Features[1])
	}
}

func TestSplitThenJoinRoundTrips(t *testing.T) {
	s := testSplitter()
	original := domain.ProductValue{
		Encoding: domain.EncodingAll,
		Bools:    []bool{true, false},
		Counts:   []uint32{5},
		Reals:    []float32{2.5},
	}

	parts := s.Split(original)
	if len(parts) != 2 {
		t.Fatalf("Split() returned %d parts, want 2", len(parts))
	}
	if !reflect.DeepEqual(parts[0].Bools, []bool{true, false}) {
		t.Errorf("kind 0 part Bools = %v, want [true false]", parts[0].Bools)
	}
	if !reflect.DeepEqual(parts[1].Counts, []uint32{5}) || !reflect.DeepEqual(parts[1].Reals, []float32{2.5}) {
		t.Errorf("kind 1 part = %+v, want Counts [5] Reals [2.5]", parts[1])
	}

	joined, err := s.Join(parts)
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if !reflect.DeepEqual(joined.Bools, original.Bools) ||
		!reflect.DeepEqual(joined.Counts, original.Counts) ||
		!reflect.DeepEqual(joined.Reals, original.Reals) {
		t.Errorf("Join(Split(v)) = %+v, want %+v", joined, original)
	}
}

func TestSplitPreservesPartialObservedMask(t *testing.T) {
	s := testSplitter()
	// Only global feature 2 (kind 0, local position 1) is observed.
	v := domain.ProductValue{Encoding: domain.EncodingDense, Dense: []bool{false, false, true, false}, Bools: []bool{true}}

	parts := s.Split(v)
	if parts[0].Encoding == domain.EncodingAll || parts[0].Encoding == domain.EncodingNone {
		t.Fatalf("kind 0 part encoding = %v, want a partial (not ALL/NONE) since only one of its two slots is observed", parts[0].Encoding)
	}
	if parts[0].IsObserved(0) {
		t.Error("kind 0 local position 0 (global feature 0) should not be observed")
	}
	if !parts[0].IsObserved(1) {
		t.Error("kind 0 local position 1 (global feature 2) should be observed")
	}
	if parts[1].Encoding != domain.EncodingNone {
		t.Errorf("kind 1 part encoding = %v, want NONE (no kind-1 feature observed)", parts[1].Encoding)
	}
}

func TestJoinRejectsSparsePart(t *testing.T) {
	s := testSplitter()
	parts := []domain.ProductValue{
		{Encoding: domain.EncodingSparse, Sparse: []uint32{0}, Bools: []bool{true}},
		domain.Empty(),
	}
	if _, err := s.Join(parts); err != domain.ErrUnsupportedSparsity {
		t.Errorf("Join() with a SPARSE part err = %v, want ErrUnsupportedSparsity", err)
	}
}
