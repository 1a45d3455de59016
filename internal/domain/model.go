// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ─── Schema ──────────────────────────────────────────────────────────────

// Schema fixes the total feature count and the three block boundaries:
// booleans first, then counts, then reals. It is immutable after load.
type Schema struct {
	BooleansSize uint32 `json:"booleans_size"`
	CountsSize   uint32 `json:"counts_size"`
	RealsSize    uint32 `json:"reals_size"`
}

// Total returns the total declared feature count.
func (s Schema) Total() int {
	return int(s.BooleansSize) + int(s.CountsSize) + int(s.RealsSize)
}

// Block classifies a global feature index into its schema block.
type Block int

const (
	BlockBoolean Block = iota
	BlockCount
	BlockReal
)

func (b Block) String() string {
	switch b {
	case BlockBoolean:
		return "boolean"
	case BlockCount:
		return "count"
	case BlockReal:
		return "real"
	default:
		return "unknown"
	}
}

// BlockOf returns which block a global feature index falls in, and its
// zero-based offset within that block. Panics if idx is out of range —
// callers are expected to have validated against Schema.Total() already.
func (s Schema) BlockOf(idx int) (Block, int) {
	if idx < 0 || idx >= s.Total() {
		panic(fmt.Sprintf("domain: feature index %d out of range [0,%d)", idx, s.Total()))
	}
	if idx < int(s.BooleansSize) {
		return BlockBoolean, idx
	}
	idx -= int(s.BooleansSize)
	if idx < int(s.CountsSize) {
		return BlockCount, idx
	}
	idx -= int(s.CountsSize)
	return BlockReal, idx
}

// ─── Ids ─────────────────────────────────────────────────────────────────

// FeatureID identifies a column, stable across kind moves.
type FeatureID uint32

// KindID identifies a kind. Packed: always in [0, kind_count).
type KindID uint32

// GroupID is a packed, dense group id within one kind: always in
// [0, packed_size). Global group ids (monotonic, never reused) are a
// distinct type — see engine/idtracker.
type GroupID uint32

// GlobalGroupID is a monotonically increasing id that survives
// compaction; never reused.
type GlobalGroupID uint64

// RowID identifies a row. Must not repeat within an assignments store.
type RowID uint64

// ─── Utilities ───────────────────────────────────────────────────────────

// SHA256Hex computes SHA-256 hash and returns hex string. Used to fingerprint
// checkpoint payloads before they are persisted (see infra/store).
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HumanSize formats bytes into human-readable string. Used when logging row
// file sizes and checkpoint payload sizes.
func HumanSize(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)
	switch {
	case b >= TB:
		return fmt.Sprintf("%.1f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
