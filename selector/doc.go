// Package selector picks the active provider endpoint.
//
// The selector takes a complete batch of probe results with their scores
// and produces a Selection. It never probes anything itself.
//
// # Selection Algorithm
//
//  1. Drop every endpoint whose last probe was not reachable.
//  2. If a domain filter is set, drop endpoints without the required
//     capability.
//  3. If the filter has a score floor, drop endpoints scoring below it.
//  4. Order the survivors by static priority (lower first), then score
//     (higher first), then fallback order, then registration order.
//  5. The head of that ordering is selected.
//
// Priority always dominates the score: a priority 1 endpoint scoring 40
// is preferred over a priority 2 endpoint scoring 90.
//
// When nothing survives the Selection is empty. That is a normal outcome
// meaning "no provider available", not an error.
//
// # Usage
//
//	sl := selector.New()
//	sel := sl.Select(batch, selector.Filter{Capability: "bengali-support"})
//	if !sel.Active() {
//	    // no provider
//	}
package selector
