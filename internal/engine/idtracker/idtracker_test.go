package idtracker

import "testing"

func TestAddIsContiguous(t *testing.T) {
	tr := New()
	for i := 0; i < 5; i++ {
		g := tr.Add()
		packed, ok := tr.GlobalToPacked(g)
		if !ok {
			t.Fatalf("global %d not found after Add", g)
		}
		if int(packed) != i {
			t.Errorf("Add #%d: packed = %d, want %d", i, packed, i)
		}
	}
	if tr.PackedSize() != 5 {
		t.Errorf("PackedSize() = %d, want 5", tr.PackedSize())
	}
}

func TestRemoveCompactsViaSwapWithBack(t *testing.T) {
	tr := New()
	g0 := tr.Add()
	g1 := tr.Add()
	g2 := tr.Add()

	removed, moved := tr.Remove(0)
	if removed != g0 {
		t.Errorf("Remove(0) removed = %d, want %d", removed, g0)
	}
	if moved != g2 {
		t.Errorf("Remove(0) moved = %d, want last global %d", moved, g2)
	}
	if tr.PackedSize() != 2 {
		t.Fatalf("PackedSize() = %d, want 2", tr.PackedSize())
	}
	if tr.PackedToGlobal(0) != g2 {
		t.Errorf("packed 0 = %d after compaction, want %d", tr.PackedToGlobal(0), g2)
	}
	if _, ok := tr.GlobalToPacked(g0); ok {
		t.Errorf("removed global %d still resolves to a packed index", g0)
	}
	if p, ok := tr.GlobalToPacked(g1); !ok || p != 1 {
		t.Errorf("surviving global %d maps to (%d, %v), want (1, true)", g1, p, ok)
	}
}

func TestRemoveLastIsNoSwap(t *testing.T) {
	tr := New()
	g0 := tr.Add()
	g1 := tr.Add()

	removed, moved := tr.Remove(1)
	if removed != g1 || moved != g1 {
		t.Errorf("Remove(last) = (%d, %d), want (%d, %d)", removed, moved, g1, g1)
	}
	if tr.PackedSize() != 1 || tr.PackedToGlobal(0) != g0 {
		t.Errorf("removing the last packed slot disturbed the survivor")
	}
}

func TestSortedToGlobalIsStableUnderChurn(t *testing.T) {
	tr := New()
	ids := make([]uint32, 0, 4)
	for i := 0; i < 4; i++ {
		_ = tr.Add()
		ids = append(ids, uint32(i))
	}
	tr.Remove(1) // global id 1 removed, global id 3 swapped into packed slot 1

	sorted := tr.SortedToGlobal()
	if len(sorted) != 3 {
		t.Fatalf("SortedToGlobal() len = %d, want 3", len(sorted))
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1] > sorted[i] {
			t.Errorf("SortedToGlobal() not sorted: %v", sorted)
		}
	}
}
