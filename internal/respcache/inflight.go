package respcache

import (
	"context"
	"sync"
)

// Call is a write-once result cell for an upstream call already underway.
// Closing done broadcasts to every waiter, including ones that attach late.
type Call struct {
	once  sync.Once
	done  chan struct{}
	value []byte
	err   error

	// set when the leader gave up on its own ctx; read only after done is closed
	abandoned bool
}

func newCall() *Call {
	return &Call{done: make(chan struct{})}
}

// Resolve stores the outcome; only the first call has any effect
func (c *Call) Resolve(value []byte, err error) {
	c.once.Do(func() {
		c.value = value
		c.err = err
		close(c.done)
	})
}

// abandon resolves the call with the leader's cancellation error
func (c *Call) abandon(err error) {
	c.once.Do(func() {
		c.err = err
		c.abandoned = true
		close(c.done)
	})
}

// Wait blocks until the call resolves or ctx ends
func (c *Call) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
