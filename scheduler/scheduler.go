// Package scheduler picks the outgoing link for each SRT data packet.
package scheduler

import (
	"time"

	"github.com/srtla-go/sender/link"
)

// Scorer is the subset of *link.Link the scheduler needs. Defined as an
// interface, and used as a type constraint on Pick, so tests can supply
// fakes without building a full Link.
type Scorer interface {
	Score(now time.Time) float64
}

var _ Scorer = (*link.Link)(nil)

// Pick returns the virtual-IP of the Connected, non-timed-out link with
// the highest score among links, breaking ties by the order order lists
// them in (stable — the caller is expected to pass a stable iteration
// order, e.g. insertion order). ok is false if no link qualifies.
func Pick[S Scorer](order []string, links map[string]S, now time.Time) (virtualIP string, ok bool) {
	bestScore := 0.0
	best := ""
	found := false
	for _, vip := range order {
		l, present := links[vip]
		if !present {
			continue
		}
		score := l.Score(now)
		if score <= 0 {
			continue
		}
		if !found || score > bestScore {
			bestScore = score
			best = vip
			found = true
		}
	}
	return best, found
}
