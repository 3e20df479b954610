/*Package stream is the acquisition streaming pipeline: it consumes the
device's circular buffer, decodes and calibrates raw samples, reassembles
them into scans, integrates, timestamps, and writes rows to an output
stream.

The pipeline is a single consumer over a hardware producer.  There is no
internal parallelism and exactly one suspension point: the idle sleep taken
when the buffer has no new data.
*/
package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/daqio/acquire/calib"
	"github.com/daqio/acquire/ringbuf"
	"github.com/daqio/acquire/timeutil"
)

// DefaultIdleInterval is how long the loop sleeps when a poll finds no new
// data.  It bounds CPU usage while waiting for hardware-paced data without
// requiring the driver to support blocking reads.
const DefaultIdleInterval = 10 * time.Millisecond

// Counters is a point-in-time snapshot of session progress, safe to read
// from other goroutines (the diagnostics server polls it).
type Counters struct {
	Front    int64  `json:"front"`
	Back     int64  `json:"back"`
	Samples  int64  `json:"samples"`
	Scans    int64  `json:"scans"`
	Rows     int64  `json:"rows"`
	PeriodNS uint32 `json:"period_ns"`
}

// Session runs one acquisition from command start to end of stream.
// Construct it with the validated command's authoritative period and call
// Run once.
type Session struct {
	// Source is the ring buffer capability for the streaming
	// subdevice.
	Source ringbuf.Source

	// Converter maps raw samples to physical units.
	Converter calib.Converter

	// Width is the sample stride in bytes (daq.BytesPerSample).
	Width int

	// Channels is the number of channels per scan.
	Channels int

	// Integrate is the number of consecutive scans averaged per row.
	Integrate int

	// NScan ends the session after this many scans; zero streams
	// forever.
	NScan int

	// PeriodNS is the authoritative scan period from the double-tested
	// command.
	PeriodNS uint32

	// Absolute selects wall-clock timestamps.
	Absolute bool

	// Out receives one text line per row.
	Out io.Writer

	// Start, if set, installs the command on the device.  It runs
	// after the wall-clock anchor is captured so the anchor marks the
	// start of acquisition.
	Start func() error

	// Clock defaults to the real clock; tests inject a mock.
	Clock timeutil.Clock

	// IdleInterval defaults to DefaultIdleInterval.
	IdleInterval time.Duration

	// Verbose emits cursor positions to Diag, rate limited so a fast
	// acquisition does not drown stderr.
	Verbose bool

	// Diag is the diagnostic logger; defaults to stderr.
	Diag *log.Logger

	front, back, samples, scans, rows int64
}

// Status returns a snapshot of the session counters.
func (s *Session) Status() Counters {
	return Counters{
		Front:    atomic.LoadInt64(&s.front),
		Back:     atomic.LoadInt64(&s.back),
		Samples:  atomic.LoadInt64(&s.samples),
		Scans:    atomic.LoadInt64(&s.scans),
		Rows:     atomic.LoadInt64(&s.rows),
		PeriodNS: s.PeriodNS,
	}
}

func (s *Session) publish(c *ringbuf.Consumer, a *Accumulator) {
	atomic.StoreInt64(&s.front, c.Front())
	atomic.StoreInt64(&s.back, c.Back())
	atomic.StoreInt64(&s.scans, int64(a.CompletedScans()))
	atomic.StoreInt64(&s.rows, int64(a.EmittedRows()))
}

// Run executes the polling loop until the configured scan count is
// reached, the context is canceled, or a fault occurs.  Cancellation is
// cooperative, checked before each poll; a partially integrated
// accumulator is discarded, never flushed.
//
// Faults (buffer overrun, acknowledgment rejection, write failure) are
// terminal: the pipeline has no way to reconstruct lost or misaligned
// samples, so the error is returned immediately.  Rows already written
// remain valid.
func (s *Session) Run(ctx context.Context) error {
	if s.Width != 2 && s.Width != 4 {
		return fmt.Errorf("unsupported sample width %d bytes", s.Width)
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	idle := s.IdleInterval
	if idle <= 0 {
		idle = DefaultIdleInterval
	}
	diag := s.Diag
	if diag == nil {
		diag = log.New(os.Stderr, "", log.LstdFlags)
	}
	cons, err := ringbuf.New(s.Source)
	if err != nil {
		return err
	}
	acc, err := NewAccumulator(s.Channels, s.Integrate)
	if err != nil {
		return err
	}
	tb := NewTimebase(clock, s.PeriodNS, s.Absolute)
	tb.Anchor()
	if s.Start != nil {
		if err := s.Start(); err != nil {
			return fmt.Errorf("start command: %w", err)
		}
	}
	if s.Verbose {
		diag.Printf("scan period = %d ns", s.PeriodNS)
	}
	lim := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)
	scratch := make([]byte, 4)
	width := int64(s.Width)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := cons.Poll(); err != nil {
			s.publish(cons, acc)
			return err
		}
		s.publish(cons, acc)
		if s.Verbose && lim.Allow() {
			diag.Printf("front = %d, back = %d", cons.Front(), cons.Back())
		}
		if cons.Buffered() < width {
			if s.NScan > 0 && acc.CompletedScans() >= s.NScan {
				return nil
			}
			clock.Sleep(idle)
			continue
		}
		// consume whole samples only; a partial sample at the front
		// stays unacknowledged until the device completes it
		back := cons.Back()
		n := (cons.Front() - back) / width * width
		for i := back; i < back+n; i += width {
			raw := DecodeSample(cons.Sample(i, s.Width, scratch))
			v := s.Converter.ToPhysical(raw)
			row, emitted, scanDone := acc.Accept(v)
			if emitted {
				if err := WriteRow(s.Out, tb.Stamp(), row); err != nil {
					return fmt.Errorf("write row: %w", err)
				}
			}
			if scanDone {
				tb.Advance()
			}
			atomic.AddInt64(&s.samples, 1)
		}
		if err := cons.Acknowledge(int(n)); err != nil {
			return err
		}
		s.publish(cons, acc)
	}
}
