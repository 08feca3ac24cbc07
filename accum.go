package vkrt

// Accumulation is the progressive refinement state: the samples averaged
// in the render target so far and the number to reach.
type Accumulation struct {
	Count    int
	PerFrame int
	Target   int
}

// Next returns the first sample index and the number of samples of the
// next dispatch. A converged state returns n == 0 and the dispatch is
// skipped. The samples count once Commit is called.
func (a *Accumulation) Next() (start, n int) {
	start = a.Count
	n = a.PerFrame
	if rem := a.Target - a.Count; n > rem {
		n = rem
	}
	if n < 0 {
		n = 0
	}
	return start, n
}

// Commit counts n samples of a submitted dispatch as accumulated.
func (a *Accumulation) Commit(n int) { a.Count += n }

// Converged reports whether the target has been reached.
func (a *Accumulation) Converged() bool { return a.Count >= a.Target }

// Reset discards the accumulated samples. The next dispatch overwrites
// the render target.
func (a *Accumulation) Reset() { a.Count = 0 }

// SetSamples changes the target and the samples per frame. Lowering the
// target below the accumulated count resets.
func (a *Accumulation) SetSamples(target, perFrame int) {
	if perFrame < 1 {
		perFrame = 1
	}
	if target < 0 {
		target = 0
	}
	a.Target, a.PerFrame = target, perFrame
	if a.Count > target {
		a.Reset()
	}
}
