/*Package simdaq provides a software-simulated acquisition card.

It implements the daq.Device contract plus the ring buffer Source, pacing
sample production off an injectable clock.  It exists for two reasons: the
test suite needs a deterministic producer, and `daq-acquire -d sim` lets the
pipeline be exercised end to end on machines without hardware.

The command test routine imitates the driver behavior the builder's
double-check protocol is written against: unsupported trigger sources are
narrowed bitwise and the scan period is clamped to the supported interval,
with a non-zero return whenever something had to change.
*/
package simdaq

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/daqio/acquire/calib"
	"github.com/daqio/acquire/daq"
	"github.com/daqio/acquire/timeutil"
	"github.com/daqio/acquire/util"
)

// Options configures the simulated card.  The zero value is completed by
// Defaults.
type Options struct {
	// NChannels is the number of channels on the streaming subdevice.
	NChannels int

	// BufferSize is the circular buffer size in bytes.
	BufferSize int

	// Wide selects 32-bit samples (FlagLSample) instead of 16-bit.
	Wide bool

	// SoftCalibrated advertises FlagSoftCalibrated instead of on-board
	// calibration.
	SoftCalibrated bool

	// MinPeriodNS and MaxPeriodNS bound the scan period the board can
	// time; TestCommand clamps requests to this interval.
	MinPeriodNS uint32
	MaxPeriodNS uint32

	// Clock paces production; tests inject a mock.
	Clock timeutil.Clock

	// Waveform produces the raw value for a scan/channel pair.  The
	// default is a full-scale sine per channel with a phase offset.
	Waveform func(scan int64, channel int) uint32
}

// Defaults fills unset fields: one channel, a 100 kB buffer, 16-bit
// samples, 10 us..1 s period bounds, real clock.
func Defaults(o Options) Options {
	if o.NChannels == 0 {
		o.NChannels = 1
	}
	if o.BufferSize == 0 {
		o.BufferSize = 100000
	}
	if o.MinPeriodNS == 0 {
		o.MinPeriodNS = 10000
	}
	if o.MaxPeriodNS == 0 {
		o.MaxPeriodNS = 1000000000
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	return o
}

// trigger sources the simulated board supports per command phase
const (
	startMask     = daq.TrigNow
	scanBeginMask = daq.TrigTimer
	convertMask   = daq.TrigTimer | daq.TrigNow
	scanEndMask   = daq.TrigCount
	stopMask      = daq.TrigCount | daq.TrigNone
)

// Device is a simulated acquisition card with one streaming analog input
// subdevice (subdevice 0).
type Device struct {
	mu   sync.Mutex
	opts Options
	buf  *Buffer

	running bool
	cmd     daq.Command
	started time.Time
	closed  bool
}

// New creates a simulated device.
func New(opts Options) *Device {
	opts = Defaults(opts)
	d := &Device{opts: opts}
	d.buf = &Buffer{dev: d, window: make([]byte, opts.BufferSize)}
	return d
}

// Open is a daq.Opener for the simulated device.
func Open(opts Options) daq.Opener {
	return func() (daq.Device, error) { return New(opts), nil }
}

func (d *Device) checkSubdevice(subdevice int) error {
	if subdevice != 0 {
		return fmt.Errorf("simdaq has no subdevice %d", subdevice)
	}
	return nil
}

// SubdeviceFlags reports the capability flags of the streaming subdevice.
func (d *Device) SubdeviceFlags(subdevice int) (daq.SubdeviceFlag, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return 0, err
	}
	flags := daq.FlagGround | daq.FlagCommon | daq.FlagDiff
	if d.opts.Wide {
		flags |= daq.FlagLSample
	}
	if d.opts.SoftCalibrated {
		flags |= daq.FlagSoftCalibrated
	}
	return flags, nil
}

// BufferSize reports the circular buffer size in bytes.
func (d *Device) BufferSize(subdevice int) (int, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return 0, err
	}
	return d.opts.BufferSize, nil
}

// GenericTimedCommand returns a stock periodic command for the subdevice.
func (d *Device) GenericTimedCommand(subdevice, nchan int, scanPeriodNS uint32) (*daq.Command, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return nil, err
	}
	if nchan < 1 || nchan > daq.MaxChannels {
		return nil, fmt.Errorf("cannot build a command for %d channels", nchan)
	}
	return &daq.Command{
		Subdevice:    subdevice,
		StartSrc:     daq.TrigNow,
		StartArg:     0,
		ScanBeginSrc: daq.TrigTimer,
		ScanBeginArg: scanPeriodNS,
		ConvertSrc:   daq.TrigTimer,
		ConvertArg:   scanPeriodNS / uint32(nchan),
		ScanEndSrc:   daq.TrigCount,
		ScanEndArg:   uint32(nchan),
		StopSrc:      daq.TrigNone,
		StopArg:      0,
	}, nil
}

func narrow(src *daq.TriggerSource, mask daq.TriggerSource) bool {
	narrowed := *src & mask
	changed := narrowed != *src || narrowed == 0
	*src = narrowed
	return changed
}

// TestCommand validates and repairs cmd the way a real driver does.  Step
// one narrows each phase's trigger source against the supported mask
// (return code 1 when anything changed or vanished); step two clamps the
// scan period and scan-end argument to what the board can time (return
// code 3).  Zero means the command passed untouched.
func (d *Device) TestCommand(cmd *daq.Command) (int, error) {
	if err := d.checkSubdevice(cmd.Subdevice); err != nil {
		return 0, err
	}
	changed := false
	changed = narrow(&cmd.StartSrc, startMask) || changed
	changed = narrow(&cmd.ScanBeginSrc, scanBeginMask) || changed
	changed = narrow(&cmd.ConvertSrc, convertMask) || changed
	changed = narrow(&cmd.ScanEndSrc, scanEndMask) || changed
	changed = narrow(&cmd.StopSrc, stopMask) || changed
	if changed {
		return 1, nil
	}
	adjusted := false
	if p := util.ClampU32(cmd.ScanBeginArg, d.opts.MinPeriodNS, d.opts.MaxPeriodNS); p != cmd.ScanBeginArg {
		cmd.ScanBeginArg = p
		adjusted = true
	}
	if n := len(cmd.ChanList); n > 0 && cmd.ScanEndArg != uint32(n) {
		cmd.ScanEndArg = uint32(n)
		adjusted = true
	}
	if adjusted {
		return 3, nil
	}
	return 0, nil
}

// RunCommand installs the command and starts producing data.
func (d *Device) RunCommand(cmd *daq.Command) error {
	if err := d.checkSubdevice(cmd.Subdevice); err != nil {
		return err
	}
	if len(cmd.ChanList) == 0 {
		return fmt.Errorf("command has an empty channel list")
	}
	if cmd.ScanBeginArg < d.opts.MinPeriodNS || cmd.ScanBeginArg > d.opts.MaxPeriodNS {
		return fmt.Errorf("command was not tested: scan period %d ns unsupported", cmd.ScanBeginArg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("a command is already running")
	}
	d.cmd = *cmd
	d.cmd.ChanList = append([]daq.ChanSpec(nil), cmd.ChanList...)
	d.running = true
	d.started = d.opts.Clock.Now()
	return nil
}

// Close stops the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.closed = true
	return nil
}

// Buffer returns the ring buffer source for the streaming subdevice.
func (d *Device) Buffer(subdevice int) (*Buffer, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return nil, err
	}
	return d.buf, nil
}

// HardcalConverter reports the board calibration: a linear map of the full
// code range onto the range's physical span.
func (d *Device) HardcalConverter(subdevice, channel, rng int) (calib.Polynomial, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return calib.Polynomial{}, err
	}
	if d.opts.SoftCalibrated {
		return calib.Polynomial{}, fmt.Errorf("simdaq is configured as soft calibrated")
	}
	r, err := d.RangeInfo(subdevice, channel, rng)
	if err != nil {
		return calib.Polynomial{}, err
	}
	return calib.LinearRange(r.Min, r.Max, d.maxCode()), nil
}

func (d *Device) maxCode() uint32 {
	if d.opts.Wide {
		return math.MaxUint32
	}
	return math.MaxUint16
}

func (d *Device) width() int {
	if d.opts.Wide {
		return 4
	}
	return 2
}

// BoardName identifies the simulated board.
func (d *Device) BoardName() string { return "simdaq" }

// DriverName identifies the simulated driver.
func (d *Device) DriverName() string { return "simdaq" }

// NSubdevices reports one streaming subdevice.
func (d *Device) NSubdevices() int { return 1 }

// SubdeviceType reports analog input for subdevice 0.
func (d *Device) SubdeviceType(subdevice int) (int, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return 0, err
	}
	return daq.SubdAI, nil
}

// NChannels reports the configured channel count.
func (d *Device) NChannels(subdevice int) (int, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return 0, err
	}
	return d.opts.NChannels, nil
}

// NRanges reports one range per channel.
func (d *Device) NRanges(subdevice, channel int) (int, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return 0, err
	}
	return 1, nil
}

// RangeInfo reports the +/- 10 V range.
func (d *Device) RangeInfo(subdevice, channel, rng int) (daq.Range, error) {
	if err := d.checkSubdevice(subdevice); err != nil {
		return daq.Range{}, err
	}
	if rng != 0 {
		return daq.Range{}, fmt.Errorf("simdaq has no range %d", rng)
	}
	return daq.Range{Min: -10, Max: 10}, nil
}

// raw produces the sample value for a scan/channel pair.
func (d *Device) raw(scan int64, channel int) uint32 {
	if d.opts.Waveform != nil {
		return d.opts.Waveform(scan, channel)
	}
	// one sine cycle per 1000 scans, phase shifted per channel
	max := float64(d.maxCode())
	phase := 2 * math.Pi * (float64(scan)/1000 + float64(channel)/float64(d.opts.NChannels))
	return uint32((math.Sin(phase) + 1) / 2 * max)
}

// Buffer is the simulated circular buffer.  It implements ringbuf.Source:
// production is paced by the device clock against the running command's
// period, and produced bytes are written into the window at their physical
// offsets the way a DMA engine would.
type Buffer struct {
	dev    *Device
	window []byte

	produced int64 // bytes written by the "hardware"
	acked    int64 // bytes released by the consumer
	lost     bool
}

// Window returns the mapped window.  The consumer treats it as read-only.
func (b *Buffer) Window() []byte { return b.window }

// ForceOverrun makes the next Contents call report lost data.
func (b *Buffer) ForceOverrun() { b.lost = true }

// Contents reports how many new bytes arrived since the previous call,
// producing them on demand.  Production is capped at the free window space
// so the simulation is lossless; a negative return only happens after
// ForceOverrun.
func (b *Buffer) Contents() (int, error) {
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.lost {
		b.lost = false
		return -1, nil
	}
	if !d.running {
		return 0, nil
	}
	nchan := int64(len(d.cmd.ChanList))
	width := int64(d.width())
	period := int64(d.cmd.ScanBeginArg)
	elapsed := d.opts.Clock.Now().Sub(d.started).Nanoseconds()
	scans := elapsed / period
	if d.cmd.StopSrc == daq.TrigCount && scans > int64(d.cmd.StopArg) {
		scans = int64(d.cmd.StopArg)
	}
	total := scans * nchan * width
	if limit := b.acked + int64(len(b.window)); total > limit {
		total = limit
	}
	delta := total - b.produced
	if delta <= 0 {
		return 0, nil
	}
	for i := b.produced; i < total; i += width {
		sample := i / width
		raw := d.raw(sample/nchan, int(sample%nchan))
		b.write(i, raw, int(width))
	}
	b.produced = total
	return int(delta), nil
}

func (b *Buffer) write(logical int64, raw uint32, width int) {
	var scratch [4]byte
	if width == 4 {
		binary.LittleEndian.PutUint32(scratch[:], raw)
	} else {
		binary.LittleEndian.PutUint16(scratch[:2], uint16(raw))
	}
	size := int64(len(b.window))
	for k := 0; k < width; k++ {
		b.window[(logical+int64(k))%size] = scratch[k]
	}
}

// MarkRead releases n consumed bytes back to the producer.
func (b *Buffer) MarkRead(n int) error {
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if int64(n) > b.produced-b.acked {
		return fmt.Errorf("marked %d bytes read with only %d outstanding", n, b.produced-b.acked)
	}
	b.acked += int64(n)
	return nil
}
