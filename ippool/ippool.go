// Package ippool allocates the short virtual-IP labels used to identify
// links in logs and de-duplication, per the finite ordered pool in the
// data model.
package ippool

import "fmt"

// Pool is a fixed-size, ordered sequence of reservable labels. Its zero
// value is not usable; construct with New.
type Pool struct {
	labels []string
	free   []bool
}

// New builds a pool of n labels named "vip0".."vip<n-1>", all initially free.
func New(n int) *Pool {
	p := &Pool{
		labels: make([]string, n),
		free:   make([]bool, n),
	}
	for i := range p.labels {
		p.labels[i] = fmt.Sprintf("vip%d", i)
		p.free[i] = true
	}
	return p
}

// Allocate returns the first free label in pool order, or ok=false if
// the pool is exhausted.
func (p *Pool) Allocate() (label string, ok bool) {
	for i, isFree := range p.free {
		if isFree {
			p.free[i] = false
			return p.labels[i], true
		}
	}
	return "", false
}

// Release returns label to the pool, making it immediately reusable.
// Releasing a label not owned by this pool, or already free, is a no-op.
func (p *Pool) Release(label string) {
	for i, l := range p.labels {
		if l == label {
			p.free[i] = true
			return
		}
	}
}

// Len returns the pool's total capacity.
func (p *Pool) Len() int { return len(p.labels) }

// Available returns the number of currently free labels.
func (p *Pool) Available() int {
	n := 0
	for _, isFree := range p.free {
		if isFree {
			n++
		}
	}
	return n
}
