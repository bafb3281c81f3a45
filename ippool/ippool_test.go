package ippool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAllocateFirstFree(t *testing.T) {
	p := New(3)
	a, ok := p.Allocate()
	require.True(t, ok)
	assert.Equal(t, "vip0", a)

	b, ok := p.Allocate()
	require.True(t, ok)
	assert.Equal(t, "vip1", b)
}

func TestReleaseMakesLabelReusable(t *testing.T) {
	p := New(1)
	a, ok := p.Allocate()
	require.True(t, ok)

	_, ok = p.Allocate()
	assert.False(t, ok, "pool of 1 must be exhausted after one allocation")

	p.Release(a)
	b, ok := p.Allocate()
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestExhaustedPoolReportsFalse(t *testing.T) {
	p := New(0)
	_, ok := p.Allocate()
	assert.False(t, ok)
}

func TestLabelsUniqueUnderRandomAllocateRelease(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 8).Draw(t, "size")
		p := New(size)
		live := map[string]bool{}

		steps := rapid.IntRange(0, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "allocate") || len(live) == 0 {
				label, ok := p.Allocate()
				if ok {
					require.False(t, live[label], "label handed out while still live")
					live[label] = true
				}
			} else {
				for label := range live {
					p.Release(label)
					delete(live, label)
					break
				}
			}
		}
	})
}
