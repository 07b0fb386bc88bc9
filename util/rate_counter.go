package util

import (
	"errors"
	"io"
	"sync"
	"time"
)

// A RateCounter limits how many bytes per second a group of readers may
// consume. It is used to keep fixity checks from saturating a shared
// volume while people are working on it.
//
// Every rateInterval the pool is refilled. Reads remove credits from the
// pool, and when it goes negative readers wait until it is positive again.
type RateCounter struct {
	c       chan struct{} // receives when credits are positive
	stop    chan struct{} // closed to make the adder goroutine exit
	m       sync.Mutex    // protects below
	credits int64         // current credit balance
}

// Interval between adding credits to the pool. The shorter it is, the more
// waking and churning we do.
const rateInterval = 1 * time.Minute

// NewRateCounter returns a counter allowing rate bytes per second. The
// whole allowance for an interval is added at once, and the counter starts
// with one interval's worth of credit.
func NewRateCounter(rate float64) *RateCounter {
	amount := int64(rate * rateInterval.Seconds())
	r := &RateCounter{
		c:       make(chan struct{}),
		stop:    make(chan struct{}),
		credits: amount,
	}
	go r.adder(amount)
	return r
}

// Use some number of units. It is okay if it takes this counter negative.
func (r *RateCounter) Use(count int64) {
	r.m.Lock()
	r.credits -= count
	r.m.Unlock()
}

// OK returns a channel which receives when it is fine to read more. It is
// closed once the RateCounter is stopped.
func (r *RateCounter) OK() <-chan struct{} {
	return r.c
}

// Stop the background goroutine refilling the RateCounter. Pending readers
// fail with ErrStopped. Calling Stop twice panics.
func (r *RateCounter) Stop() {
	close(r.stop)
}

func (r *RateCounter) adder(amount int64) {
	tick := time.NewTicker(rateInterval)
	defer tick.Stop()
	for {
		var signal chan struct{}
		r.m.Lock()
		if r.credits > 0 {
			signal = r.c
		}
		r.m.Unlock()
		select {
		case <-tick.C:
			r.Use(-amount)
		case signal <- struct{}{}:
		case <-r.stop:
			close(r.c)
			return
		}
	}
}

// Wrap returns a reader whose reads are charged against this counter. A
// nil counter returns reader unchanged, so callers need not special case an
// unlimited rate.
func (r *RateCounter) Wrap(reader io.Reader) io.Reader {
	if r == nil {
		return reader
	}
	return rateReader{reader: reader, rate: r}
}

// ErrStopped means a read failed because the governing rate counter was stopped.
var ErrStopped = errors.New("RateCounter stopped")

type rateReader struct {
	reader io.Reader
	rate   *RateCounter
}

func (r rateReader) Read(p []byte) (int, error) {
	if _, ok := <-r.rate.OK(); !ok {
		return 0, ErrStopped
	}
	n, err := r.reader.Read(p)
	r.rate.Use(int64(n))
	return n, err
}
