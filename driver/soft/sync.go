package soft

import (
	"errors"
	"sync"
	"time"

	"github.com/celer/vkrt/driver"
)

type fence struct {
	g        *GPU
	mu       sync.Mutex
	signaled bool
	armed    bool
	ready    time.Time
}

// NewFence implements driver.GPU.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	g.track("fence", 1)
	return &fence{g: g, signaled: signaled}, nil
}

func (f *fence) arm(ready time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled || f.armed {
		return errors.New("fence submitted without being reset")
	}
	f.armed, f.ready = true, ready
	return nil
}

// poll updates the signal state; f.mu must be held.
func (f *fence) poll() bool {
	if f.armed && !time.Now().Before(f.ready) {
		f.armed, f.signaled = false, true
	}
	return f.signaled
}

func (f *fence) Signaled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poll(), nil
}

// Wait sleeps until the fence's completion time instead of spinning.
// A fence that was never submitted can only time out.
func (f *fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	if f.poll() {
		f.mu.Unlock()
		return nil
	}
	armed, ready := f.armed, f.ready
	f.mu.Unlock()

	if !armed {
		time.Sleep(timeout)
		return driver.ErrTimeout
	}
	if d := time.Until(ready); d > timeout {
		time.Sleep(timeout)
		return driver.ErrTimeout
	} else if d > 0 {
		time.Sleep(d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.poll() && f.armed {
		f.mu.Unlock()
		time.Sleep(time.Until(ready) + time.Millisecond)
		f.mu.Lock()
	}
	return nil
}

func (f *fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed {
		f.g.violation("fence reset while its submission is pending")
	}
	f.signaled, f.armed = false, false
	return nil
}

func (f *fence) Destroy() {
	f.mu.Lock()
	pending := f.armed && time.Now().Before(f.ready)
	f.mu.Unlock()
	if pending {
		f.g.violation("fence destroyed while its submission is pending")
	}
	f.g.track("fence", -1)
}

type semaphore struct {
	g        *GPU
	mu       sync.Mutex
	signaled bool
}

// NewSemaphore implements driver.GPU.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	g.track("semaphore", 1)
	return &semaphore{g: g}, nil
}

// signal reports false if the semaphore was already signaled.
func (s *semaphore) signal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.signaled
	s.signaled = true
	return !was
}

// consume reports false if there was no signal to wait on.
func (s *semaphore) consume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.signaled
	s.signaled = false
	return was
}

func (s *semaphore) Destroy() { s.g.track("semaphore", -1) }
