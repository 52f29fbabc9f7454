package selector

import (
	"testing"
	"time"

	"go.lipi.dev/providerd/probe"
	"go.lipi.dev/providerd/registry"
	"go.lipi.dev/providerd/scorer"
)

func candidate(id string, position, priority int, outcome probe.Outcome, score float64, caps ...string) Candidate {
	eligible := outcome == probe.Reachable
	if !eligible {
		score = scorer.Ineligible
	}
	return Candidate{
		Descriptor: registry.Descriptor{
			ID:           id,
			Kind:         registry.KindTransport,
			Priority:     priority,
			Capabilities: caps,
		},
		Result: probe.Result{
			DescriptorID: id,
			Outcome:      outcome,
			Latency:      10 * time.Millisecond,
			Timestamp:    time.Unix(1700000000, 0),
		},
		Score:    scorer.Score{DescriptorID: id, Value: score, Eligible: eligible},
		Position: position,
	}
}

// TestPriorityDominatesScore checks that a lower priority number wins
// even against a much better score
func TestPriorityDominatesScore(t *testing.T) {
	sl := New()
	batch := []Candidate{
		candidate("cloud", 0, 2, probe.Reachable, 90),
		candidate("local", 1, 1, probe.Reachable, 40),
	}

	sel := sl.Select(batch, Filter{})
	if sel.DescriptorID != "local" {
		t.Fatalf("selected %q, want local", sel.DescriptorID)
	}
	if sel.Score.Value != 40 {
		t.Errorf("score = %v, want 40", sel.Score.Value)
	}
	if sel.Descriptor == nil || sel.Descriptor.Priority != 1 {
		t.Errorf("descriptor not carried in selection: %+v", sel.Descriptor)
	}
}

func TestScoreBreaksPriorityTie(t *testing.T) {
	sel := New().Select([]Candidate{
		candidate("a", 0, 1, probe.Reachable, 40),
		candidate("b", 1, 1, probe.Reachable, 60),
	}, Filter{})
	if sel.DescriptorID != "b" {
		t.Errorf("selected %q, want b", sel.DescriptorID)
	}
}

func TestExactTieUsesRegistrationOrder(t *testing.T) {
	batch := []Candidate{
		candidate("second", 1, 1, probe.Reachable, 50),
		candidate("first", 0, 1, probe.Reachable, 50),
	}
	sel := New().Select(batch, Filter{})
	if sel.DescriptorID != "first" {
		t.Errorf("selected %q, want first", sel.DescriptorID)
	}
}

func TestFallbackOrderBeforeRegistrationOrder(t *testing.T) {
	a := candidate("a", 0, 1, probe.Reachable, 50)
	b := candidate("b", 1, 1, probe.Reachable, 50)
	a.Descriptor.Fallback = 2
	b.Descriptor.Fallback = 1

	sel := New().Select([]Candidate{a, b}, Filter{})
	if sel.DescriptorID != "b" {
		t.Errorf("selected %q, want b", sel.DescriptorID)
	}
}

func TestUnreachableNeverSelected(t *testing.T) {
	batch := []Candidate{
		candidate("down", 0, 1, probe.Unreachable, 0),
		candidate("slow", 1, 1, probe.TimedOut, 0),
		candidate("broken", 2, 1, probe.Errored, 0),
		candidate("up", 3, 5, probe.Reachable, 1),
	}
	sel := New().Select(batch, Filter{})
	if sel.DescriptorID != "up" {
		t.Errorf("selected %q, want up", sel.DescriptorID)
	}
}

func TestMinScore(t *testing.T) {
	batch := []Candidate{
		candidate("sluggish", 0, 1, probe.Reachable, 15),
		candidate("backup", 1, 2, probe.Reachable, 60),
	}

	sel := New().Select(batch, Filter{MinScore: 20})
	if sel.DescriptorID != "backup" {
		t.Errorf("selected %q, want backup", sel.DescriptorID)
	}

	sel = New().Select(batch, Filter{MinScore: 80})
	if sel.Active() {
		t.Errorf("selected %q, want none above the floor", sel.DescriptorID)
	}
}

func TestNoEligibleEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		batch []Candidate
	}{
		{"empty registry", nil},
		{"all unreachable", []Candidate{
			candidate("a", 0, 1, probe.Unreachable, 0),
			candidate("b", 1, 2, probe.TimedOut, 0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl := New()
			sel := sl.Select(tt.batch, Filter{})
			if sel.Active() {
				t.Fatalf("expected no selection, got %q", sel.DescriptorID)
			}
			if sel.Descriptor != nil {
				t.Errorf("empty selection carries a descriptor")
			}
			if sel.Generation != 1 {
				t.Errorf("generation = %d, want 1", sel.Generation)
			}
		})
	}
}

func TestDomainFilter(t *testing.T) {
	batch := []Candidate{
		candidate("fast", 0, 1, probe.Reachable, 95, "code-completion"),
		candidate("bangla", 1, 3, probe.Reachable, 20, "code-completion", "bengali-support"),
		candidate("bangla-down", 2, 1, probe.Unreachable, 0, "bengali-support"),
	}

	sel := New().Select(batch, Filter{Capability: "bengali-support"})
	if sel.DescriptorID != "bangla" {
		t.Fatalf("selected %q, want bangla", sel.DescriptorID)
	}
	if !sel.Descriptor.HasCapability("bengali-support") {
		t.Errorf("selected descriptor does not satisfy the filter")
	}
	if sel.Filter.Capability != "bengali-support" {
		t.Errorf("filter not recorded in selection")
	}

	sel = New().Select(batch, Filter{Capability: "voice"})
	if sel.Active() {
		t.Errorf("no endpoint has voice, got %q", sel.DescriptorID)
	}
}

func TestSelectIsIdempotent(t *testing.T) {
	sl := New()
	batch := []Candidate{
		candidate("a", 0, 2, probe.Reachable, 70),
		candidate("b", 1, 1, probe.Reachable, 30),
		candidate("c", 2, 1, probe.Reachable, 30),
	}

	first := sl.Select(batch, Filter{})
	second := sl.Select(batch, Filter{})

	if first.DescriptorID != second.DescriptorID || first.Score != second.Score {
		t.Errorf("selections differ: %+v vs %+v", first, second)
	}
	if second.Generation != first.Generation+1 {
		t.Errorf("generation did not advance: %d -> %d", first.Generation, second.Generation)
	}
	if sl.Generation() != second.Generation {
		t.Errorf("Generation() = %d, want %d", sl.Generation(), second.Generation)
	}
}

func TestRankDoesNotModifyInput(t *testing.T) {
	batch := []Candidate{
		candidate("b", 0, 2, probe.Reachable, 10),
		candidate("a", 1, 1, probe.Reachable, 10),
	}
	ranked := Rank(batch, Filter{})
	if len(ranked) != 2 || ranked[0].Descriptor.ID != "a" {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
	if batch[0].Descriptor.ID != "b" {
		t.Errorf("input batch was reordered")
	}
}

func TestRefresh(t *testing.T) {
	sel := New().Select([]Candidate{candidate("a", 0, 1, probe.Reachable, 50)}, Filter{})

	later := probe.Result{DescriptorID: "a", Outcome: probe.Reachable, Timestamp: sel.Result.Timestamp.Add(time.Minute)}
	refreshed := sel.Refresh(later, scorer.Score{DescriptorID: "a", Value: 60, Eligible: true})

	if refreshed.Generation != sel.Generation {
		t.Errorf("refresh changed generation")
	}
	if !refreshed.ValidatedAt.Equal(later.Timestamp) {
		t.Errorf("ValidatedAt = %v, want %v", refreshed.ValidatedAt, later.Timestamp)
	}
	if refreshed.Score.Value != 60 {
		t.Errorf("score not refreshed")
	}
}
