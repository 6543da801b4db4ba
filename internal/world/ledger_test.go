package world

import (
	"math"
	"testing"

	"terrainbakery/internal/edit"
)

func TestReplayIsIdempotent(t *testing.T) {
	l := Ledger{0: 0.5, 3: 0.25, 7: 0.75}
	once := make([]float32, 8)
	twice := make([]float32, 8)
	l.Replay(once)
	l.Replay(twice)
	l.Replay(twice)
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("index %d: %v after one replay, %v after two", i, once[i], twice[i])
		}
	}
}

func TestReplaySkipsOutOfRange(t *testing.T) {
	l := Ledger{-1: 1, 2: 1, 10: 1}
	field := make([]float32, 4)
	if skipped := l.Replay(field); skipped != 2 {
		t.Fatalf("skipped = %d, want 2", skipped)
	}
	if field[2] != 1 {
		t.Fatal("in range entry not applied")
	}
}

func TestDiffReplayReproducesField(t *testing.T) {
	baseline := make([]float32, 64)
	for i := range baseline {
		baseline[i] = float32(i) / 64
	}
	field := append([]float32(nil), baseline...)
	field[3] = math.Float32frombits(0x3e99999a)
	field[40] = -0.0001
	field[63] = 1

	d := Diff(field, baseline)
	if len(d) != 3 {
		t.Fatalf("diff has %d entries, want 3", len(d))
	}
	restored := append([]float32(nil), baseline...)
	d.Replay(restored)
	for i := range field {
		if math.Float32bits(field[i]) != math.Float32bits(restored[i]) {
			t.Fatalf("index %d: %v != %v", i, field[i], restored[i])
		}
	}
}

func TestRecordLastWriteWins(t *testing.T) {
	l := make(Ledger)
	l.Record([]edit.Write{{Index: 1, Value: 0.9}, {Index: 2, Value: 0.5}})
	l.Record([]edit.Write{{Index: 1, Value: 0.1}})
	if l[1] != 0.1 || l[2] != 0.5 || len(l) != 2 {
		t.Fatalf("ledger = %v", l)
	}
}

func TestPairsSortedAndMerge(t *testing.T) {
	l := Ledger{9: 1, 2: 2, 5: 3}
	pairs := l.Pairs()
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].Index >= pairs[i].Index {
			t.Fatalf("pairs not sorted: %v", pairs)
		}
	}
	other := FromPairs([]Pair{{Index: 2, Value: 7}, {Index: 11, Value: 8}})
	merged := l.Clone()
	merged.Merge(other)
	if merged[2] != 7 || merged[11] != 8 || len(merged) != 4 {
		t.Fatalf("merged = %v", merged)
	}
	if l[2] != 2 {
		t.Fatal("clone shares storage with original")
	}
}
