package model

import "github.com/crosscatio/crosscat/internal/domain"

// FeatureRef is one entry in a kind's local feature list: which global
// feature index it is and which schema block it reads from.
type FeatureRef struct {
	GlobalIdx int
	Block     domain.Block
}

// Splitter is the precomputed feature_id -> (kind_id, position-within-kind)
// routing table (spec §4.3 (cont.)): it converts a full product value into
// one partial product value per kind, and joins partials back into a full
// value. Rebuilt by the kind kernel whenever features move between kinds.
type Splitter struct {
	blocks   []domain.Block
	kindOf   []int
	position []int
	Features [][]FeatureRef // [kindID] -> ordered local feature list
}

// NewSplitter builds a routing table from each global feature's block and
// its assigned kind id. Kind ids need not be contiguous from zero; gaps are
// simply kinds with no features.
func NewSplitter(blocks []domain.Block, kindOf []int) *Splitter {
	s := &Splitter{blocks: blocks, kindOf: kindOf, position: make([]int, len(kindOf))}

	kindCount := 0
	for _, k := range kindOf {
		if k+1 > kindCount {
			kindCount = k + 1
		}
	}
	s.Features = make([][]FeatureRef, kindCount)
	for g, k := range kindOf {
		s.position[g] = len(s.Features[k])
		s.Features[k] = append(s.Features[k], FeatureRef{GlobalIdx: g, Block: blocks[g]})
	}
	return s
}

// Split converts a full product value into one partial value per kind, in
// each kind's local feature order. Preserves v's observed-mask shape by
// letting each kind's Builder pick its own smallest encoding independently.
func (s *Splitter) Split(v domain.ProductValue) []domain.ProductValue {
	cursor := domain.NewCursor(v)
	builders := make([]*domain.Builder, len(s.Features))
	for k, feats := range s.Features {
		builders[k] = domain.NewBuilder(len(feats))
	}
	for g, k := range s.kindOf {
		observed, b, c, r := cursor.Next(g, s.blocks[g])
		if observed {
			builders[k].Set(s.position[g], s.blocks[g], b, c, r)
		}
	}
	out := make([]domain.ProductValue, len(builders))
	for k, b := range builders {
		out[k] = b.Build()
	}
	return out
}

// Join recombines one partial value per kind into a full product value.
// SPARSE-encoded partials are not supported on this path (spec §4.3 (cont.):
// "SPARSE join is currently declared not supported") and fail with
// ErrUnsupportedSparsity.
func (s *Splitter) Join(parts []domain.ProductValue) (domain.ProductValue, error) {
	total := len(s.kindOf)
	observed := make([]bool, total)
	boolVals := make([]bool, total)
	countVals := make([]uint32, total)
	realVals := make([]float32, total)

	for k, part := range parts {
		if part.Encoding == domain.EncodingSparse {
			return domain.ProductValue{}, domain.ErrUnsupportedSparsity
		}
		cursor := domain.NewCursor(part)
		for p, ref := range s.Features[k] {
			obs, b, c, r := cursor.Next(p, ref.Block)
			if !obs {
				continue
			}
			observed[ref.GlobalIdx] = true
			switch ref.Block {
			case domain.BlockBoolean:
				boolVals[ref.GlobalIdx] = b
			case domain.BlockCount:
				countVals[ref.GlobalIdx] = c
			case domain.BlockReal:
				realVals[ref.GlobalIdx] = r
			}
		}
	}

	builder := domain.NewBuilder(total)
	for g := 0; g < total; g++ {
		if !observed[g] {
			continue
		}
		builder.Set(g, s.blocks[g], boolVals[g], countVals[g], realVals[g])
	}
	return builder.Build(), nil
}
