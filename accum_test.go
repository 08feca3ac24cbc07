package vkrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// advance takes the next dispatch and commits it.
func advance(a *Accumulation) (start, n int) {
	start, n = a.Next()
	a.Commit(n)
	return start, n
}

func TestAccumulationAdvance(t *testing.T) {
	a := Accumulation{PerFrame: 3, Target: 10}
	var starts, counts []int
	for i := 0; i < 6; i++ {
		prev := a.Count
		s, n := advance(&a)
		assert.Equal(t, prev, s)
		assert.GreaterOrEqual(t, a.Count, prev)
		starts = append(starts, s)
		counts = append(counts, a.Count)
		assert.LessOrEqual(t, a.Count, a.Target)
		assert.Equal(t, prev+n, a.Count)
	}
	assert.Equal(t, []int{0, 3, 6, 9, 10, 10}, starts)
	assert.Equal(t, []int{3, 6, 9, 10, 10, 10}, counts)
	assert.True(t, a.Converged())
}

func TestAccumulationConvergedAdvanceIsEmpty(t *testing.T) {
	a := Accumulation{PerFrame: 1, Target: 2, Count: 2}
	s, n := advance(&a)
	assert.Equal(t, 2, s)
	assert.Zero(t, n)
	assert.Equal(t, 2, a.Count)
}

func TestAccumulationReset(t *testing.T) {
	a := Accumulation{PerFrame: 2, Target: 8}
	advance(&a)
	advance(&a)
	a.Reset()
	assert.Zero(t, a.Count)
	s, n := a.Next()
	assert.Zero(t, s)
	assert.Zero(t, a.Count, "next does not commit")
	a.Commit(n)
	assert.Equal(t, 2, a.Count)
	a.Reset()
	s, n = advance(&a)
	assert.Zero(t, s)
	assert.Equal(t, 2, n)
}

func TestAccumulationSetSamples(t *testing.T) {
	a := Accumulation{PerFrame: 1, Target: 8, Count: 5}

	a.SetSamples(16, 4)
	assert.Equal(t, 5, a.Count)
	assert.Equal(t, 4, a.PerFrame)

	a.SetSamples(3, 0)
	assert.Zero(t, a.Count)
	assert.Equal(t, 1, a.PerFrame)
	assert.Equal(t, 3, a.Target)

	a.SetSamples(-1, 1)
	assert.Zero(t, a.Target)
	_, n := advance(&a)
	assert.Zero(t, n)
}
