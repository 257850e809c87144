package bitmap

import "testing"

func TestL2Size(t *testing.T) {
	tests := []struct {
		name          string
		numPriorities int
		want          int
	}{
		{"exact multiple", 128, 2},
		{"one over", 129, 3},
		{"single word", 1, 1},
		{"64 exactly", 64, 1},
		{"65", 65, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := L2Size(tt.numPriorities); got != tt.want {
				t.Errorf("L2Size(%d) = %d, want %d", tt.numPriorities, got, tt.want)
			}
		})
	}
}

func TestIndex_EmptyInitially(t *testing.T) {
	idx := NewIndex(256)
	if !idx.Empty() {
		t.Fatal("freshly constructed index should be empty")
	}
	if idx.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", idx.Count())
	}
}

func TestIndex_AddRemove(t *testing.T) {
	idx := NewIndex(256)
	idx.Add(10)
	idx.Add(200)
	idx.Add(0)

	if idx.Empty() {
		t.Fatal("index should not be empty after Add")
	}
	if got := idx.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}
	if got := idx.Highest(); got != 200 {
		t.Fatalf("Highest() = %d, want 200", got)
	}

	idx.Remove(200)
	if got := idx.Highest(); got != 10 {
		t.Fatalf("Highest() after removing 200 = %d, want 10", got)
	}
	if got := idx.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	idx.Remove(10)
	idx.Remove(0)
	if !idx.Empty() {
		t.Fatal("index should be empty after removing every priority")
	}
}

func TestIndex_RemoveNotPresentIsSafe(t *testing.T) {
	idx := NewIndex(256)
	idx.Add(5)
	idx.Remove(6) // not present; must not panic or disturb 5
	if idx.Empty() || idx.Highest() != 5 {
		t.Fatal("removing an absent priority disturbed the index")
	}
}

func TestIndex_IsHighest(t *testing.T) {
	idx := NewIndex(256)
	if !idx.IsHighest(0) {
		t.Fatal("IsHighest on an empty index should always be true")
	}
	idx.Add(100)
	if !idx.IsHighest(100) {
		t.Fatal("IsHighest(100) should be true when 100 is the only ready priority")
	}
	if idx.IsHighest(99) {
		t.Fatal("IsHighest(99) should be false when 100 is ready")
	}
	idx.Add(150)
	if idx.IsHighest(100) {
		t.Fatal("IsHighest(100) should be false once 150 is also ready")
	}
}

func TestIndex_HighestAcrossL1Words(t *testing.T) {
	idx := NewIndex(256)
	idx.Add(3)
	idx.Add(67)
	idx.Add(255)
	if got := idx.Highest(); got != 255 {
		t.Fatalf("Highest() = %d, want 255", got)
	}
	idx.Remove(255)
	if got := idx.Highest(); got != 67 {
		t.Fatalf("Highest() = %d, want 67", got)
	}
	idx.Remove(67)
	if got := idx.Highest(); got != 3 {
		t.Fatalf("Highest() = %d, want 3", got)
	}
}

func TestIndex_HighestOnEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Highest() on an empty index should panic")
		}
	}()
	NewIndex(256).Highest()
}
