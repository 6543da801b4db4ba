package edit

import (
	"fmt"
)

// Rule decides how a brush point combines with the stored value.
type Rule int

const (
	// RuleClamp only writes values that move the field in the stroke direction.
	RuleClamp Rule = iota
	// RuleLerp eases the stored value toward solid or air by a fixed rate.
	RuleLerp
)

// DefaultLerpRate is the per-stroke rate RuleLerp eases with.
const DefaultLerpRate = 0.04

func (r Rule) String() string {
	switch r {
	case RuleClamp:
		return "clamp"
	case RuleLerp:
		return "lerp"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// ParseRule maps a config name onto a Rule.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "", "clamp":
		return RuleClamp, nil
	case "lerp":
		return RuleLerp, nil
	}
	return 0, fmt.Errorf("edit: unknown rule %q", s)
}

// Stroke is a sampled brush and how to apply it.
type Stroke struct {
	Points   []Point
	Add      bool
	Rule     Rule
	LerpRate float32
}

// NewStroke samples a brush at an origin-local center.
func NewStroke(center [3]int, radius float32, add bool, rule Rule) Stroke {
	return Stroke{
		Points:   SampleBrush(center, radius, add),
		Add:      add,
		Rule:     rule,
		LerpRate: DefaultLerpRate,
	}
}

// Write is one changed field value.
type Write struct {
	Index int32
	Value float32
}

// Result reports what an application changed.
type Result struct {
	Writes []Write
	// Discarded counts points that fell outside the target lattice.
	Discarded int
}

// Wrote reports whether any value changed.
func (r Result) Wrote() bool { return len(r.Writes) > 0 }

// Offset translates origin-local positions into the local space of a neighbour.
func Offset(origin, neighbour [3]int, size int) [3]int {
	return [3]int{
		(origin[0] - neighbour[0]) * size,
		(origin[1] - neighbour[1]) * size,
		(origin[2] - neighbour[2]) * size,
	}
}

// Touches reports whether any stroke point lands inside a dim^3 lattice after offset.
func Touches(points []Point, offset [3]int, dim int) bool {
	for _, p := range points {
		if _, ok := local(p.Pos, offset, dim); ok {
			return true
		}
	}
	return false
}

func local(pos, offset [3]int, dim int) (int, bool) {
	x, y, z := pos[0]+offset[0], pos[1]+offset[1], pos[2]+offset[2]
	if x < 0 || y < 0 || z < 0 || x >= dim || y >= dim || z >= dim {
		return 0, false
	}
	return x + dim*(y+dim*z), true
}

// Apply writes a stroke into field, a dim^3 lattice whose local space is origin
// space shifted by offset. Points that land outside are discarded.
func Apply(field []float32, dim int, s Stroke, offset [3]int) Result {
	var res Result
	for _, p := range s.Points {
		idx, ok := local(p.Pos, offset, dim)
		if !ok || idx >= len(field) {
			res.Discarded++
			continue
		}
		cur := field[idx]
		next, write := s.combine(cur, p)
		if !write {
			continue
		}
		field[idx] = next
		res.Writes = append(res.Writes, Write{Index: int32(idx), Value: next})
	}
	return res
}

func (s Stroke) combine(cur float32, p Point) (float32, bool) {
	switch s.Rule {
	case RuleLerp:
		goal := float32(1)
		if s.Add {
			goal = 0
		}
		next := cur + (goal-cur)*s.LerpRate*p.Weight
		return next, next != cur
	default:
		if s.Add {
			return p.Target, p.Target < cur
		}
		return p.Target, p.Target > cur
	}
}
