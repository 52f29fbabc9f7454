package selector

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Selector turns scored batches into Selections and numbers them.
type Selector struct {
	mu         sync.Mutex
	generation uint64
	now        func() time.Time
}

func New() *Selector {
	return &Selector{now: time.Now}
}

// Generation returns the generation of the most recent Selection.
func (sl *Selector) Generation() uint64 {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.generation
}

// Select picks the active endpoint from a complete batch. Every call
// advances the generation, also when the outcome is the same as before
// or when no endpoint is eligible.
func (sl *Selector) Select(batch []Candidate, filter Filter) Selection {
	ranked := Rank(batch, filter)

	sl.mu.Lock()
	sl.generation++
	sel := Selection{
		Filter:     filter,
		Generation: sl.generation,
		SelectedAt: sl.now(),
	}
	sl.mu.Unlock()

	if len(ranked) == 0 {
		return sel
	}

	head := ranked[0]
	d := head.Descriptor
	sel.DescriptorID = d.ID
	sel.Descriptor = &d
	sel.Score = head.Score
	sel.Result = head.Result
	sel.ValidatedAt = head.Result.Timestamp
	return sel
}

// Rank returns the eligible candidates of batch in selection order. The
// input is not modified.
func Rank(batch []Candidate, filter Filter) []Candidate {
	ranked := make([]Candidate, 0, len(batch))
	for _, c := range batch {
		if !c.Result.Reachable() || !c.Score.Eligible {
			continue
		}
		if !filter.Match(c.Descriptor) {
			continue
		}
		if filter.MinScore > 0 && c.Score.Value < filter.MinScore {
			continue
		}
		ranked = append(ranked, c)
	}

	slices.SortStableFunc(ranked, Compare)
	return ranked
}

// Compare orders candidates by priority, score, fallback order and
// registration order.
func Compare(a, b Candidate) int {
	if c := cmp.Compare(a.Descriptor.Priority, b.Descriptor.Priority); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score.Value, a.Score.Value); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Descriptor.Fallback, b.Descriptor.Fallback); c != 0 {
		return c
	}
	return cmp.Compare(a.Position, b.Position)
}
