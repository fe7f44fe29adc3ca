package streamcrypto

import (
	"io"
	"sync/atomic"
)

// ByteCounter wraps an io.Reader, exposing a shared atomic counter
// incremented by each passed-through read's length. The Count view is
// cheap to clone and safe to read from another goroutine concurrently
// with the stream being consumed, for progress and quota accounting on
// the upload/download path.
type ByteCounter struct {
	upstream io.Reader
	count    *atomic.Int64
}

func NewByteCounter(upstream io.Reader) *ByteCounter {
	return &ByteCounter{upstream: upstream, count: new(atomic.Int64)}
}

func (c *ByteCounter) Read(p []byte) (int, error) {
	n, err := c.upstream.Read(p)
	if n > 0 {
		c.count.Add(int64(n))
	}
	return n, err
}

// Count returns the number of bytes read through the stream so far.
func (c *ByteCounter) Count() int64 { return c.count.Load() }

// View returns a clonable, thread-safe handle onto the same counter
// without exposing the underlying reader.
func (c *ByteCounter) View() *CounterView { return &CounterView{count: c.count} }

// CounterView is a read-only, shareable view of a ByteCounter's tally.
type CounterView struct {
	count *atomic.Int64
}

func (v *CounterView) Count() int64 { return v.count.Load() }
