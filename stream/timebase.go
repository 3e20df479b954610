package stream

import "github.com/daqio/acquire/timeutil"

// Timebase reconstructs row timestamps from the authoritative scan period.
// The wall clock is read exactly once, lazily, to anchor the session; after
// that the timeline is purely arithmetic, so sustained acquisition does not
// accumulate clock-read jitter.
type Timebase struct {
	clock    timeutil.Clock
	periodNS uint32
	absolute bool
	anchored bool
	anchor   float64
	t        float64
}

// NewTimebase creates a timebase over the tested scan period in
// nanoseconds.  absolute selects wall-clock timestamps; otherwise stamps
// are seconds since the anchor.
func NewTimebase(clock timeutil.Clock, periodNS uint32, absolute bool) *Timebase {
	return &Timebase{clock: clock, periodNS: periodNS, absolute: absolute}
}

// Anchor captures the wall-clock anchor on first call and returns the same
// value on every call after.
func (tb *Timebase) Anchor() float64 {
	if !tb.anchored {
		now := tb.clock.Now()
		tb.anchor = float64(now.UnixNano()) / 1e9
		tb.anchored = true
	}
	return tb.anchor
}

// Stamp returns the timestamp for a row emitted now: the elapsed scan time,
// plus the anchor in absolute mode.  The value reflects the last scan that
// contributed to the row; call Stamp before Advance for that scan.
func (tb *Timebase) Stamp() float64 {
	if tb.absolute {
		return tb.Anchor() + tb.t
	}
	return tb.t
}

// Advance moves the timeline forward by one scan period.  It is called
// once per completed scan, not once per emitted row, so integration does
// not slow the clock down.
func (tb *Timebase) Advance() {
	tb.t += float64(tb.periodNS) / 1e9
}

// Elapsed returns the scan-relative elapsed time in seconds.
func (tb *Timebase) Elapsed() float64 { return tb.t }
