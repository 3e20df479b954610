/*Package ringbuf consumes a driver-managed circular sample buffer.

The producer is the device (hardware timed, DMA or interrupt driven) and is
not a goroutine this process controls; its progress is only observable by
polling.  Ownership of the bytes stays with the driver until the consumer
acknowledges them, so the discipline is the classic single-producer
single-consumer ring: two monotonically increasing logical counters, front
(bytes the hardware has made available) and back (bytes acknowledged), with
physical offsets taken modulo the window size.  No locks are needed.
*/
package ringbuf

import (
	"errors"
	"fmt"
)

// Source is the capability the device layer hands the consumer: a read-only
// window onto the circular buffer plus the two driver calls that move data
// through it.
type Source interface {
	// Contents returns the number of bytes the device has produced
	// since the previous call.  A negative value means the driver
	// detected lost data (the producer lapped the consumer).
	Contents() (int, error)

	// MarkRead tells the driver n bytes have been consumed and their
	// space may be overwritten.
	MarkRead(n int) error

	// Window returns the memory-mapped window over the circular
	// buffer.  The consumer never writes through it.
	Window() []byte
}

// Consumer tracks the logical cursors over a Source.
type Consumer struct {
	src    Source
	window []byte
	size   int64
	front  int64
	back   int64
}

// Errors produced by the consumer.  All of them are terminal for the
// session: once buffer accounting is broken, intervening samples cannot be
// reconstructed and scan/channel alignment is lost.
var (
	// ErrOverrun means the consumer could not keep up and the device
	// overwrote unread data.
	ErrOverrun = errors.New("ring buffer overrun: acquisition outpaced the consumer")

	// ErrAcknowledgeTooFar means an acknowledgment exceeded the number
	// of unconsumed bytes.
	ErrAcknowledgeTooFar = errors.New("acknowledged more bytes than were available")
)

// New creates a consumer over src.  The window must be non-empty.
func New(src Source) (*Consumer, error) {
	w := src.Window()
	if len(w) == 0 {
		return nil, errors.New("ringbuf: source window is empty")
	}
	return &Consumer{src: src, window: w, size: int64(len(w))}, nil
}

// Size returns the physical window size in bytes.
func (c *Consumer) Size() int64 { return c.size }

// Front returns the logical count of bytes made available so far.
func (c *Consumer) Front() int64 { return c.front }

// Back returns the logical count of bytes acknowledged so far.
func (c *Consumer) Back() int64 { return c.back }

// Buffered returns the number of unconsumed bytes, front-back.
func (c *Consumer) Buffered() int64 { return c.front - c.back }

// Poll asks the device how much new data exists and advances front.  This
// is the only way front moves; window bytes at the new offsets are valid to
// read only after Poll has confirmed them.  The returned count is the
// number of new bytes.
func (c *Consumer) Poll() (int, error) {
	n, err := c.src.Contents()
	if err != nil {
		return 0, fmt.Errorf("ring buffer poll: %w", err)
	}
	if n < 0 {
		return 0, ErrOverrun
	}
	c.front += int64(n)
	if c.front-c.back > c.size {
		return 0, ErrOverrun
	}
	return n, nil
}

// Sample copies the width bytes at logical offset i into scratch and
// returns the filled slice.  The read may straddle the wrap boundary, in
// which case it is spliced from both ends of the window.  scratch must have
// capacity >= width.
func (c *Consumer) Sample(i int64, width int, scratch []byte) []byte {
	p := i % c.size
	out := scratch[:width]
	if p+int64(width) <= c.size {
		copy(out, c.window[p:p+int64(width)])
		return out
	}
	head := c.size - p
	copy(out, c.window[p:])
	copy(out[head:], c.window[:int64(width)-head])
	return out
}

// Ranges returns the logical byte range [from, to) as at most two
// contiguous slices of the window, split at the wrap boundary.  The second
// slice is nil when no wrap occurs.
func (c *Consumer) Ranges(from, to int64) ([]byte, []byte) {
	if from >= to {
		return nil, nil
	}
	p := from % c.size
	n := to - from
	if p+n <= c.size {
		return c.window[p : p+n], nil
	}
	return c.window[p:], c.window[:n-(c.size-p)]
}

// Acknowledge advances back by n bytes and releases them to the driver.  n
// must be exactly the number of bytes processed since the previous
// acknowledgment: less wastes buffer capacity, more would let the device
// overwrite unread data.
func (c *Consumer) Acknowledge(n int) error {
	if int64(n) > c.front-c.back {
		return ErrAcknowledgeTooFar
	}
	if n == 0 {
		return nil
	}
	if err := c.src.MarkRead(n); err != nil {
		return fmt.Errorf("mark buffer read: %w", err)
	}
	c.back += int64(n)
	return nil
}
