package world

import (
	"cmp"
	"math"
	"slices"

	"terrainbakery/internal/edit"
)

// Ledger is a sparse index to value overwrite record of a chunk's edits.
// Later writes to an index replace earlier ones.
type Ledger map[int32]float32

// Pair is one ledger entry.
type Pair struct {
	Index int32
	Value float32
}

// Record stores the writes of an edit.
func (l Ledger) Record(writes []edit.Write) {
	for _, w := range writes {
		l[w.Index] = w.Value
	}
}

// Replay overwrites field with every entry and returns how many entries were
// out of range and skipped. Replaying twice is the same as replaying once.
func (l Ledger) Replay(field []float32) int {
	skipped := 0
	for idx, v := range l {
		if idx < 0 || int(idx) >= len(field) {
			skipped++
			continue
		}
		field[idx] = v
	}
	return skipped
}

// Merge copies other into l, other winning on shared indices.
func (l Ledger) Merge(other Ledger) {
	for idx, v := range other {
		l[idx] = v
	}
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	out.Merge(l)
	return out
}

// Pairs returns the entries sorted by index.
func (l Ledger) Pairs() []Pair {
	out := make([]Pair, 0, len(l))
	for idx, v := range l {
		out = append(out, Pair{Index: idx, Value: v})
	}
	slices.SortFunc(out, func(a, b Pair) int { return cmp.Compare(a.Index, b.Index) })
	return out
}

// FromPairs builds a ledger from pairs, later pairs winning.
func FromPairs(pairs []Pair) Ledger {
	l := make(Ledger, len(pairs))
	for _, p := range pairs {
		l[p.Index] = p.Value
	}
	return l
}

// Diff returns the entries where field differs bitwise from baseline.
func Diff(field, baseline []float32) Ledger {
	l := make(Ledger)
	for i := range min(len(field), len(baseline)) {
		if math.Float32bits(field[i]) != math.Float32bits(baseline[i]) {
			l[int32(i)] = field[i]
		}
	}
	return l
}
