package ringbuf_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/daqio/acquire/ringbuf"
)

// scriptedSource plays back a fixed window and a script of Contents
// returns.
type scriptedSource struct {
	window  []byte
	deltas  []int
	reads   []int
	readErr error
}

func (s *scriptedSource) Contents() (int, error) {
	if len(s.deltas) == 0 {
		return 0, nil
	}
	n := s.deltas[0]
	s.deltas = s.deltas[1:]
	return n, nil
}

func (s *scriptedSource) MarkRead(n int) error {
	if s.readErr != nil {
		return s.readErr
	}
	s.reads = append(s.reads, n)
	return nil
}

func (s *scriptedSource) Window() []byte { return s.window }

func TestNewRejectsEmptyWindow(t *testing.T) {
	_, err := ringbuf.New(&scriptedSource{})
	if err == nil {
		t.Error("expected an error for an empty window")
	}
}

func TestPollAdvancesFront(t *testing.T) {
	src := &scriptedSource{window: make([]byte, 16), deltas: []int{4, 0, 6}}
	c, err := ringbuf.New(src)
	if err != nil {
		t.Fatal(err)
	}
	for _, expect := range []int64{4, 4, 10} {
		if _, err := c.Poll(); err != nil {
			t.Fatal(err)
		}
		if c.Front() != expect {
			t.Errorf("expected front %d, got %d", expect, c.Front())
		}
	}
	if c.Buffered() != 10 {
		t.Errorf("expected 10 buffered bytes, got %d", c.Buffered())
	}
}

func TestAcknowledgeAccounting(t *testing.T) {
	src := &scriptedSource{window: make([]byte, 16), deltas: []int{8}}
	c, err := ringbuf.New(src)
	if err != nil {
		t.Fatal(err)
	}
	c.Poll()
	if err := c.Acknowledge(8); err != nil {
		t.Fatal(err)
	}
	if c.Front() != c.Back() {
		t.Errorf("after acknowledging everything, front %d != back %d", c.Front(), c.Back())
	}
	// nothing buffered: zero ack is a no-op, more is an error
	if err := c.Acknowledge(0); err != nil {
		t.Errorf("zero acknowledgment should be a no-op, got %v", err)
	}
	if err := c.Acknowledge(1); !errors.Is(err, ringbuf.ErrAcknowledgeTooFar) {
		t.Errorf("expected ErrAcknowledgeTooFar, got %v", err)
	}
	if len(src.reads) != 1 || src.reads[0] != 8 {
		t.Errorf("expected exactly one MarkRead(8), got %v", src.reads)
	}
}

func TestOverrunOnNegativeContents(t *testing.T) {
	src := &scriptedSource{window: make([]byte, 16), deltas: []int{-1}}
	c, _ := ringbuf.New(src)
	if _, err := c.Poll(); !errors.Is(err, ringbuf.ErrOverrun) {
		t.Errorf("expected ErrOverrun, got %v", err)
	}
}

func TestOverrunOnCursorGap(t *testing.T) {
	// the device claims more unread bytes than the window holds
	src := &scriptedSource{window: make([]byte, 16), deltas: []int{17}}
	c, _ := ringbuf.New(src)
	if _, err := c.Poll(); !errors.Is(err, ringbuf.ErrOverrun) {
		t.Errorf("expected ErrOverrun, got %v", err)
	}
}

func TestSampleStraddlesWrap(t *testing.T) {
	window := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	src := &scriptedSource{window: window}
	c, _ := ringbuf.New(src)
	scratch := make([]byte, 4)

	got := c.Sample(6, 4, scratch)
	expect := []byte{6, 7, 0, 1}
	if !bytes.Equal(got, expect) {
		t.Errorf("expected wrapped sample %v, got %v", expect, got)
	}

	// a later lap lands on the same physical bytes
	got = c.Sample(6+8, 4, scratch)
	if !bytes.Equal(got, expect) {
		t.Errorf("expected lapped sample %v, got %v", expect, got)
	}
}

func TestRangesEquivalentToSamples(t *testing.T) {
	window := make([]byte, 10)
	for i := range window {
		window[i] = byte(i)
	}
	src := &scriptedSource{window: window}
	c, _ := ringbuf.New(src)

	// [7, 13) wraps: the two slices stitched together must equal the
	// per-sample reads over the same logical range
	a, b := c.Ranges(7, 13)
	stitched := append(append([]byte{}, a...), b...)
	scratch := make([]byte, 1)
	for i := int64(0); i < 6; i++ {
		one := c.Sample(7+i, 1, scratch)
		if stitched[i] != one[0] {
			t.Fatalf("byte %d: ranges gave %d, sample gave %d", i, stitched[i], one[0])
		}
	}
	if len(a)+len(b) != 6 {
		t.Errorf("expected 6 bytes across both slices, got %d", len(a)+len(b))
	}
}

func TestRangesNoWrap(t *testing.T) {
	src := &scriptedSource{window: make([]byte, 10)}
	c, _ := ringbuf.New(src)
	a, b := c.Ranges(2, 6)
	if len(a) != 4 || b != nil {
		t.Errorf("expected one contiguous 4 byte slice, got %d and %d", len(a), len(b))
	}
	a, b = c.Ranges(6, 6)
	if a != nil || b != nil {
		t.Error("expected nil slices for an empty range")
	}
}
