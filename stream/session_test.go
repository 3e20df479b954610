package stream_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daqio/acquire/calib"
	"github.com/daqio/acquire/daq"
	"github.com/daqio/acquire/ringbuf"
	"github.com/daqio/acquire/simdaq"
	"github.com/daqio/acquire/stream"
	"github.com/daqio/acquire/timeutil"
)

// rampWaveform makes averages easy to predict: channel 0 counts scans,
// channel 1 counts tens of scans.
func rampWaveform(scan int64, channel int) uint32 {
	v := uint32(scan + 1)
	if channel == 1 {
		v *= 10
	}
	return v
}

func testSession(t *testing.T, nscan, integrate int) (*stream.Session, *simdaq.Device, *simdaq.Buffer, *bytes.Buffer) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	dev := simdaq.New(simdaq.Options{NChannels: 2, Clock: clock, Waveform: rampWaveform})

	cfg := daq.DefaultConfig()
	cfg.Channels = []int{0, 1}
	cfg.Frequency = 1000 // 1 ms scans
	cfg.NScan = nscan
	cfg.Integrate = integrate

	cmd, err := daq.PrepareTimedCommand(dev, cfg)
	if err != nil {
		t.Fatal(err)
	}
	period, err := daq.DoubleCheck(dev, cmd)
	if err != nil {
		t.Fatal(err)
	}

	buf, err := dev.Buffer(0)
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	sess := &stream.Session{
		Source:       buf,
		Converter:    calib.Identity{},
		Width:        2,
		Channels:     len(cfg.Channels),
		Integrate:    cfg.Integrate,
		NScan:        cfg.NScan,
		PeriodNS:     period,
		Out:          out,
		Start:        func() error { return dev.RunCommand(cmd) },
		Clock:        clock,
		IdleInterval: time.Millisecond,
	}
	return sess, dev, buf, out
}

func TestSessionEndToEnd(t *testing.T) {
	sess, dev, _, out := testSession(t, 8, 4)
	defer dev.Close()

	if err := sess.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 8 scans averaged 4 at a time: two rows, each stamped with the
	// last scan that fed it
	expect := "0.0030000 2.500000 25.000000 \n" +
		"0.0070000 6.500000 65.000000 \n"
	if out.String() != expect {
		t.Errorf("output mismatch:\nwant %q\ngot  %q", expect, out.String())
	}

	st := sess.Status()
	if st.Scans != 8 || st.Rows != 2 || st.Samples != 16 {
		t.Errorf("expected 8 scans, 2 rows, 16 samples; got %+v", st)
	}
	if st.Front != st.Back {
		t.Errorf("expected a fully drained buffer, front %d back %d", st.Front, st.Back)
	}
}

func TestSessionNoAveraging(t *testing.T) {
	sess, dev, _, out := testSession(t, 3, 1)
	defer dev.Close()

	if err := sess.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	expect := "0.0000000 1.000000 10.000000 \n" +
		"0.0010000 2.000000 20.000000 \n" +
		"0.0020000 3.000000 30.000000 \n"
	if out.String() != expect {
		t.Errorf("output mismatch:\nwant %q\ngot  %q", expect, out.String())
	}
}

func TestSessionOverrunIsTerminal(t *testing.T) {
	sess, dev, buf, out := testSession(t, 8, 1)
	defer dev.Close()

	buf.ForceOverrun()
	err := sess.Run(context.Background())
	if !errors.Is(err, ringbuf.ErrOverrun) {
		t.Fatalf("expected ErrOverrun, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no rows after an immediate overrun, got %q", out.String())
	}
}

func TestSessionHonorsCancellation(t *testing.T) {
	sess, dev, _, _ := testSession(t, 0, 1)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sess.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSessionRejectsBadWidth(t *testing.T) {
	sess, dev, _, _ := testSession(t, 1, 1)
	defer dev.Close()
	sess.Width = 3
	if err := sess.Run(context.Background()); err == nil {
		t.Error("expected an error for a 3 byte sample width")
	}
}
