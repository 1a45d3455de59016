package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Every one of these
// is fatal (§7): the engine never retries locally and never continues with a
// corrupted mixture or mis-ordered row stream. Callers wrap with fmt.Errorf
// ("...: %w", err) for context; identity is checked with errors.Is.

var (
	// ConfigError — invalid configuration at startup.
	ErrConfig = errors.New("invalid configuration")

	// SchemaMismatch — a loaded model's total schema disagrees with the sum
	// of its kinds' schemata, or with a tare's schema.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// Model-load errors.
	ErrUnknownFeatureID   = errors.New("unknown feature id")
	ErrDuplicateFeatureID = errors.New("duplicate feature id")

	// InvalidSparsity — a product value's sparse list is not strictly
	// ascending or out of range.
	ErrInvalidSparsity = errors.New("sparse index list is not strictly ascending or out of range")

	// Driver/pipeline bookkeeping invariant violations.
	ErrDuplicateRow  = errors.New("duplicate row id")
	ErrRowIDMismatch = errors.New("row id mismatch on remove")
	ErrEmptyPop      = errors.New("pop from empty fifo")

	// InvalidHyperparameters — block PY sampler received non-finite or
	// out-of-range (alpha, d).
	ErrInvalidHyperparameters = errors.New("invalid clustering hyperparameters")

	// UnsupportedSparsity — a code path hit an unimplemented case (the
	// splitter's SPARSE join, by design — see SPEC_FULL.md §5).
	ErrUnsupportedSparsity = errors.New("unsupported sparsity encoding for this operation")

	ErrIO    = errors.New("io error")
	ErrParse = errors.New("parse error")

	// EmptyGrid — a declared hyperparameter grid is empty.
	ErrEmptyGrid = errors.New("hyperparameter grid is empty")
)
