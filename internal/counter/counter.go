// Package counter keeps the public "collections generated" tally. It is
// owned by whoever builds it and passed to the code that updates it; the
// value lives in memory only.
package counter

import "sync/atomic"

type Counter struct {
	n atomic.Int64
}

func New(seed int64) *Counter {
	c := &Counter{}
	c.n.Store(seed)
	return c
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int64 {
	return c.n.Add(1)
}

func (c *Counter) Value() int64 {
	return c.n.Load()
}
