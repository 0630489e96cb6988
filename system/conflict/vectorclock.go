// Package conflict implements vector-clock causality tracking and the
// resolution strategies the sync fabric consults when concurrent writes to
// the same actor collide.
package conflict

// Clock is a vector clock: node id to logical counter. A nil or empty Clock
// compares as "happens-before everything" since every counter reads as 0.
type Clock map[string]uint64

// Clone returns an independent copy.
func (c Clock) Clone() Clock {
	if c == nil {
		return Clock{}
	}
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Tick returns a copy with node's counter incremented by one, for use when a
// node produces a new event.
func (c Clock) Tick(node string) Clock {
	out := c.Clone()
	out[node] = out[node] + 1
	return out
}

// Merge returns the elementwise maximum of a and b, the standard vector
// clock merge performed when a node observes a remote clock.
func Merge(a, b Clock) Clock {
	out := a.Clone()
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Order describes the causal relationship between two clocks.
type Order int

const (
	Equal Order = iota
	Before
	After
	Concurrent
)

// Compare determines the causal relationship of a to b.
func Compare(a, b Clock) Order {
	aLessOrEqual, aStrictlyLess := lessOrEqual(a, b)
	bLessOrEqual, bStrictlyLess := lessOrEqual(b, a)

	switch {
	case aLessOrEqual && bLessOrEqual:
		return Equal
	case aStrictlyLess:
		return Before
	case bStrictlyLess:
		return After
	default:
		return Concurrent
	}
}

// lessOrEqual reports whether every counter in a is <= the corresponding
// counter in b, and whether it is strictly so (at least one counter smaller
// and none greater).
func lessOrEqual(a, b Clock) (ok bool, strict bool) {
	anyLess := false
	for k, v := range a {
		if v > b[k] {
			return false, false
		}
		if v < b[k] {
			anyLess = true
		}
	}
	for k, v := range b {
		if _, present := a[k]; !present && v > 0 {
			anyLess = true
		}
	}
	return true, anyLess
}

// ConcurrentWith reports whether a and b are mutually concurrent (neither
// happens-before the other).
func ConcurrentWith(a, b Clock) bool {
	return Compare(a, b) == Concurrent
}
