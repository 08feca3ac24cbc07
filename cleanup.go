package vkrt

import "github.com/celer/vkrt/driver"

// cleanup is a stack of release functions run in reverse order of
// registration, so objects die in the inverse of construction order.
type cleanup []func()

func (c *cleanup) push(fn func()) { *c = append(*c, fn) }

// add registers objects destroyed by run. A nil interface is skipped.
func (c *cleanup) add(ds ...driver.Destroyer) {
	for _, d := range ds {
		if d != nil {
			c.push(d.Destroy)
		}
	}
}

func (c *cleanup) run() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
	*c = nil
}

// take transfers the registered functions to the caller and leaves c
// empty, which commits a transaction built on c.
func (c *cleanup) take() cleanup {
	r := *c
	*c = nil
	return r
}
