package stream_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/daqio/acquire/stream"
)

func feedScan(t *testing.T, a *stream.Accumulator, scan []float64) (stream.Row, bool) {
	t.Helper()
	var (
		row     stream.Row
		emitted bool
	)
	for i, v := range scan {
		r, e, done := a.Accept(v)
		if i < len(scan)-1 && (e || done) {
			t.Fatalf("scan completed early at sample %d", i)
		}
		if i == len(scan)-1 && !done {
			t.Fatal("last sample of the scan did not complete it")
		}
		row, emitted = r, e
	}
	return row, emitted
}

func TestAccumulatorAveragesFourScans(t *testing.T) {
	a, err := stream.NewAccumulator(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	scans := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}}
	var rows []stream.Row
	for _, s := range scans {
		if row, emitted := feedScan(t, a, s); emitted {
			rows = append(rows, row)
		}
	}
	expect := []stream.Row{{2.5, 25.0}}
	if diff := cmp.Diff(expect, rows); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
	if a.CompletedScans() != 4 || a.EmittedRows() != 1 {
		t.Errorf("expected 4 scans and 1 row, got %d and %d", a.CompletedScans(), a.EmittedRows())
	}
}

func TestAccumulatorRowsAreFloorOfScans(t *testing.T) {
	a, err := stream.NewAccumulator(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	// 10 scans at N=3: rows only for the three full windows, the
	// trailing partial window stays buffered
	for i := 0; i < 10; i++ {
		a.Accept(float64(i))
	}
	if a.EmittedRows() != 3 {
		t.Errorf("expected floor(10/3) = 3 rows, got %d", a.EmittedRows())
	}
	if a.CompletedScans() != 10 {
		t.Errorf("expected 10 completed scans, got %d", a.CompletedScans())
	}
}

func TestAccumulatorNoAveragingPassesThrough(t *testing.T) {
	a, err := stream.NewAccumulator(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	row, emitted := feedScan(t, a, []float64{1.5, -2.5, 0})
	if !emitted {
		t.Fatal("expected a row per scan with integrate 1")
	}
	if diff := cmp.Diff(stream.Row{1.5, -2.5, 0}, row); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestAccumulatorWindowResets(t *testing.T) {
	a, err := stream.NewAccumulator(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	a.Accept(2)
	row, _, _ := a.Accept(4)
	if row[0] != 3 {
		t.Fatalf("expected first row average 3, got %g", row[0])
	}
	a.Accept(100)
	row, _, _ = a.Accept(200)
	if row[0] != 150 {
		t.Errorf("expected second row average 150 (sums reset), got %g", row[0])
	}
}

func TestNewAccumulatorRejectsBadArguments(t *testing.T) {
	if _, err := stream.NewAccumulator(0, 1); err == nil {
		t.Error("expected an error for zero channels")
	}
	if _, err := stream.NewAccumulator(1, 0); err == nil {
		t.Error("expected an error for a zero integration factor")
	}
}
