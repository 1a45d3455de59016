// Package cli implements the thin CLI entrypoints spec.md §6 names
// (`generate`, `infer`, `posterior-enum`, `mix`, `query`) as a cobra command
// tree, grounded on the teacher's internal/cli/agent.go (command/subcommand
// registration via init(), RunE handlers, cobra.ExactArgs). Spec.md §1
// explicitly places the on-disk column-oriented row/model file formats, gzip
// framing, and CLI entrypoints themselves out of THE CORE's scope — they
// are "external collaborators" the engine is built to be driven by, not
// part of it. This package is exactly that external collaborator: a
// line-delimited JSON rendering of the model/row/checkpoint records spec.md
// §6 describes, thin enough that every byte of inference logic still lives
// in internal/engine/*, internal/family, and internal/domain.
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/stream"
	"github.com/crosscatio/crosscat/internal/family"
)

// noneSentinel is spec.md §6's explicit "omit this optional file" marker.
const noneSentinel = "--none"

// isNone reports whether path is the --none sentinel for an optional file
// argument.
func isNone(path string) bool { return path == noneSentinel }

// ─── Model spec (JSON rendering of spec.md §3's schema/kind/feature model) ──

// FeatureSpec names one feature's family and (for the two Dirichlet-discrete
// specialisations) observed-alphabet width.
type FeatureSpec struct {
	ID     uint32 `json:"id"`
	Family string `json:"family"`
	Width  int    `json:"width,omitempty"`
}

// KindSpec is one kind's clustering hyperparameters and feature membership.
type KindSpec struct {
	Alpha    float64       `json:"alpha"`
	Discount float64       `json:"discount"`
	Features []FeatureSpec `json:"features"`
}

// ModelSpec is the JSON-rendered form of spec.md §6's "Shared model" record:
// the schema plus, per kind, its hyperparameters and feature list.
type ModelSpec struct {
	Schema           domain.Schema `json:"schema"`
	TopologyAlpha    float64       `json:"topology_alpha"`
	TopologyDiscount float64       `json:"topology_discount"`
	ReserveSize      int           `json:"reserve_size"`
	Kinds            []KindSpec    `json:"kinds"`
}

// familyByName resolves a family.Kind from its wire-string name
// (family.Kind.String() values: BB, DD16, DD256, DPD, GP, NICH).
func familyByName(name string) (family.Kind, error) {
	switch name {
	case "BB":
		return family.BetaBernoulli, nil
	case "DD16":
		return family.DirichletDiscrete16, nil
	case "DD256":
		return family.DirichletDiscrete256, nil
	case "DPD":
		return family.DirichletProcessDiscrete, nil
	case "GP":
		return family.GammaPoisson, nil
	case "NICH":
		return family.NormalInverseChiSq, nil
	default:
		return 0, fmt.Errorf("cli: unknown feature family %q: %w", name, domain.ErrConfig)
	}
}

// BuildCrossCat materializes a *crosscat.CrossCat from spec: one
// crosscat.Kind per KindSpec, features added in declaration order, groups
// initialized unobserved, schema validated against the declared per-feature
// block. Fails with ErrSchemaMismatch if any feature id is out of the
// declared schema's range or left unassigned, and with
// ErrDuplicateFeatureID if a feature id is assigned to more than one kind.
func (spec ModelSpec) BuildCrossCat(rng *rand.Rand) (*crosscat.CrossCat, error) {
	cc := crosscat.New(spec.Schema)
	cc.TopologyAlpha = spec.TopologyAlpha
	cc.TopologyDiscount = spec.TopologyDiscount
	total := spec.Schema.Total()
	seen := make([]bool, total)

	for ki, ks := range spec.Kinds {
		kind := crosscat.NewKind(ks.Alpha, ks.Discount, spec.ReserveSize)
		for _, fs := range ks.Features {
			if int(fs.ID) >= total {
				return nil, fmt.Errorf("cli: feature id %d outside schema of %d: %w", fs.ID, total, domain.ErrSchemaMismatch)
			}
			if seen[fs.ID] {
				return nil, fmt.Errorf("cli: feature id %d assigned to more than one kind: %w", fs.ID, domain.ErrDuplicateFeatureID)
			}
			seen[fs.ID] = true
			fam, err := familyByName(fs.Family)
			if err != nil {
				return nil, err
			}
			block, _ := spec.Schema.BlockOf(int(fs.ID))
			kind.Model.AddFeature(domain.FeatureID(fs.ID), fam, block, fs.Width)
			kind.FeatureIDs[domain.FeatureID(fs.ID)] = struct{}{}
			cc.FeatureIDToKind[fs.ID] = domain.KindID(ki)
		}
		kind.Mixture.InitUnobserved(kind.Model, rng)
		cc.Kinds = append(cc.Kinds, kind)
	}
	for f, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("cli: feature id %d not assigned to any kind: %w", f, domain.ErrSchemaMismatch)
		}
	}
	cc.UpdateSplitter()
	return cc, nil
}

// LoadModelSpec reads and parses a ModelSpec from a JSON file at path.
func LoadModelSpec(path string) (ModelSpec, error) {
	var spec ModelSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("cli: read model %s: %w", path, domain.ErrIO)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("cli: parse model %s: %w", path, domain.ErrParse)
	}
	return spec, nil
}

// WriteModelSpec writes spec to path as JSON, or does nothing if path is
// the --none sentinel (spec.md §6).
func WriteModelSpec(path string, spec ModelSpec) error {
	if isNone(path) {
		return nil
	}
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("cli: encode model: %w", domain.ErrParse)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cli: write model %s: %w", path, domain.ErrIO)
	}
	return nil
}

// ─── Rows ────────────────────────────────────────────────────────────────

// valueJSON is the JSON rendering of a domain.ProductValue: Encoding names
// one of ALL/DENSE/SPARSE/NONE (domain.Encoding.String()).
type valueJSON struct {
	Encoding string    `json:"encoding"`
	Dense    []bool    `json:"dense,omitempty"`
	Sparse   []uint32  `json:"sparse,omitempty"`
	Bools    []bool    `json:"bools,omitempty"`
	Counts   []uint32  `json:"counts,omitempty"`
	Reals    []float32 `json:"reals,omitempty"`
}

func encodingName(e domain.Encoding) string { return e.String() }

func encodingFromName(s string) (domain.Encoding, error) {
	switch s {
	case "ALL":
		return domain.EncodingAll, nil
	case "DENSE":
		return domain.EncodingDense, nil
	case "SPARSE":
		return domain.EncodingSparse, nil
	case "NONE":
		return domain.EncodingNone, nil
	default:
		return 0, fmt.Errorf("cli: unknown value encoding %q: %w", s, domain.ErrParse)
	}
}

func toValueJSON(v domain.ProductValue) valueJSON {
	return valueJSON{
		Encoding: encodingName(v.Encoding),
		Dense:    v.Dense,
		Sparse:   v.Sparse,
		Bools:    v.Bools,
		Counts:   v.Counts,
		Reals:    v.Reals,
	}
}

func (j valueJSON) toValue() (domain.ProductValue, error) {
	enc, err := encodingFromName(j.Encoding)
	if err != nil {
		return domain.ProductValue{}, err
	}
	return domain.ProductValue{
		Encoding: enc,
		Dense:    j.Dense,
		Sparse:   j.Sparse,
		Bools:    j.Bools,
		Counts:   j.Counts,
		Reals:    j.Reals,
	}, nil
}

// rowJSON is one line of a rows file: spec.md §6's Row record
// `{row_id, diff: {pos, neg, tares}}`, one JSON object per line.
type rowJSON struct {
	RowID uint64    `json:"row_id"`
	Pos   valueJSON `json:"pos"`
	Neg   valueJSON `json:"neg"`
	Tares []uint32  `json:"tares,omitempty"`
}

// ReadRows reads a newline-delimited JSON rows file into memory, returning
// a stream.MemorySource ready for stream.NewInterval. Blank lines are
// skipped.
func ReadRows(path string) (stream.MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cli: read rows %s: %w", path, domain.ErrIO)
	}
	defer f.Close()

	var out stream.MemorySource
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rj rowJSON
		if err := json.Unmarshal(line, &rj); err != nil {
			return nil, fmt.Errorf("cli: parse row in %s: %w", path, domain.ErrParse)
		}
		pos, err := rj.Pos.toValue()
		if err != nil {
			return nil, err
		}
		neg, err := rj.Neg.toValue()
		if err != nil {
			return nil, err
		}
		out = append(out, stream.Record{
			RowID: domain.RowID(rj.RowID),
			Diff:  domain.Diff{Pos: pos, Neg: neg, Tares: rj.Tares},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cli: scan rows %s: %w", path, domain.ErrIO)
	}
	return out, nil
}

// WriteRows writes records to path as newline-delimited JSON, or does
// nothing if path is the --none sentinel.
func WriteRows(path string, records []stream.Record) error {
	if isNone(path) {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cli: write rows %s: %w", path, domain.ErrIO)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		rj := rowJSON{
			RowID: uint64(r.RowID),
			Pos:   toValueJSON(r.Diff.Pos),
			Neg:   toValueJSON(r.Diff.Neg),
			Tares: r.Diff.Tares,
		}
		if err := enc.Encode(rj); err != nil {
			return fmt.Errorf("cli: encode row %d: %w", r.RowID, domain.ErrParse)
		}
	}
	return w.Flush()
}
