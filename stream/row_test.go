package stream_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/daqio/acquire/stream"
)

func TestDecodeSampleWidths(t *testing.T) {
	if got := stream.DecodeSample([]byte{0x34, 0x12}); got != 0x1234 {
		t.Errorf("expected 0x1234 from a 16 bit sample, got %#x", got)
	}
	if got := stream.DecodeSample([]byte{0x78, 0x56, 0x34, 0x12}); got != 0x12345678 {
		t.Errorf("expected 0x12345678 from a 32 bit sample, got %#x", got)
	}
}

func TestWriteRowFormat(t *testing.T) {
	var b strings.Builder
	err := stream.WriteRow(&b, 0.003, stream.Row{2.5, 25})
	if err != nil {
		t.Fatal(err)
	}
	expect := "0.0030000 2.500000 25.000000 \n"
	if b.String() != expect {
		t.Errorf("expected %q, got %q", expect, b.String())
	}
}

func TestWriteRowNegativeValues(t *testing.T) {
	var b strings.Builder
	if err := stream.WriteRow(&b, 1234.5678901, stream.Row{-9.875}); err != nil {
		t.Fatal(err)
	}
	expect := "1234.5678901 -9.875000 \n"
	if b.String() != expect {
		t.Errorf("expected %q, got %q", expect, b.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteRowPropagatesWriteFailure(t *testing.T) {
	if err := stream.WriteRow(failingWriter{}, 0, stream.Row{1}); err == nil {
		t.Error("expected the write error to propagate")
	}
}
