package stream

import "fmt"

// Row is one emitted output row: channel-count many averaged physical
// values.  The timestamp travels separately.
type Row []float64

// Accumulator reassembles converted samples into scans and integrates N
// consecutive scans into each output row.  It replaces the function-local
// static state of the classic C utilities with an explicit instance so
// sessions are re-entrant and testable.
type Accumulator struct {
	sums      []float64
	nchan     int
	integrate int
	col       int
	remaining int
	scans     int
	rows      int
}

// NewAccumulator creates an accumulator for nchan channels averaging
// integrate consecutive scans per row.
func NewAccumulator(nchan, integrate int) (*Accumulator, error) {
	if nchan < 1 {
		return nil, fmt.Errorf("accumulator needs at least one channel, got %d", nchan)
	}
	if integrate < 1 {
		return nil, fmt.Errorf("integration factor must be >= 1, got %d", integrate)
	}
	return &Accumulator{
		sums:      make([]float64, nchan),
		nchan:     nchan,
		integrate: integrate,
		remaining: integrate,
	}, nil
}

// Accept adds one converted sample.  Samples arrive in channel order within
// each scan; the column index wraps after nchan samples, which completes a
// scan (scanComplete true).  A row is emitted (emitted true) only when the
// integration window closes; its values are the per-channel sums divided by
// the integration factor.  The sums and window counter reset on emission.
//
// With integrate == 1 every completed scan emits a row; the general path
// covers it without special casing.
func (a *Accumulator) Accept(v float64) (row Row, emitted, scanComplete bool) {
	a.sums[a.col] += v
	a.col++
	if a.col < a.nchan {
		return nil, false, false
	}
	a.col = 0
	a.scans++
	a.remaining--
	if a.remaining > 0 {
		return nil, false, true
	}
	row = make(Row, a.nchan)
	for i := range a.sums {
		row[i] = a.sums[i] / float64(a.integrate)
		a.sums[i] = 0
	}
	a.remaining = a.integrate
	a.rows++
	return row, true, true
}

// CompletedScans reports how many full scans have been reassembled.
func (a *Accumulator) CompletedScans() int { return a.scans }

// EmittedRows reports how many rows have been produced.
func (a *Accumulator) EmittedRows() int { return a.rows }
