package util

import "context"

// A Gate limits concurrency. Every gate has a maximum number of goroutines
// it lets through at a time. Goroutines enter the gate by calling Enter() or
// EnterContext(), and signal they are done by calling Leave().
type Gate chan struct{}

// NewGate returns a Gate which accepts at most n entries at a time. A value
// of n less than one is treated as one.
func NewGate(n int) Gate {
	if n < 1 {
		n = 1
	}
	return Gate(make(chan struct{}, n))
}

// Enter blocks the calling goroutine until there are fewer than n goroutines
// inside the gate. It is safe to call from multiple goroutines.
func (g Gate) Enter() {
	g <- struct{}{}
}

// EnterContext is Enter, but gives up if ctx is done first. When it returns
// an error the caller is not inside the gate and must not call Leave.
func (g Gate) EnterContext(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave marks a goroutine as outside the gate. Each successful Enter needs a
// matching Leave, though they need not happen on the same goroutine.
func (g Gate) Leave() {
	<-g
}
