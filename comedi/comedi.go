// Package comedi provides a Go interface to comedi-supported DAQ cards
// through comedilib.
package comedi

/*
#cgo LDFLAGS: -lcomedi
#include <errno.h>
#include <stdlib.h>
#include <comedilib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/daqio/acquire/calib"
	"github.com/daqio/acquire/daq"
)

// Device is an opened comedi device.
type Device struct {
	dev  *C.comedi_t
	path string
}

// Open opens a comedi device file, e.g. /dev/comedi0.
func Open(path string) (*Device, error) {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	dev := C.comedi_open(cs)
	if dev == nil {
		return nil, fmt.Errorf("comedi_open %s: %s", path, lastError())
	}
	return &Device{dev: dev, path: path}, nil
}

// Opener adapts Open for use with daq.OpenWithRetry.
func Opener(path string) daq.Opener {
	return func() (daq.Device, error) { return Open(path) }
}

func lastError() string {
	return C.GoString(C.comedi_strerror(C.comedi_errno()))
}

// Close releases the device.
func (d *Device) Close() error {
	if ret := C.comedi_close(d.dev); ret < 0 {
		return fmt.Errorf("comedi_close: %s", lastError())
	}
	return nil
}

// SubdeviceFlags returns the capability flags of a subdevice.
func (d *Device) SubdeviceFlags(subdevice int) (daq.SubdeviceFlag, error) {
	flags := C.comedi_get_subdevice_flags(d.dev, C.uint(subdevice))
	if flags < 0 {
		return 0, fmt.Errorf("comedi_get_subdevice_flags: %s", lastError())
	}
	return daq.SubdeviceFlag(flags), nil
}

// BufferSize returns the size in bytes of the driver's streaming buffer.
func (d *Device) BufferSize(subdevice int) (int, error) {
	size := C.comedi_get_buffer_size(d.dev, C.uint(subdevice))
	if size < 0 {
		return 0, fmt.Errorf("comedi_get_buffer_size: %s", lastError())
	}
	return int(size), nil
}

func commandFromC(cmd *C.comedi_cmd) *daq.Command {
	return &daq.Command{
		Subdevice:    int(cmd.subdev),
		StartSrc:     daq.TriggerSource(cmd.start_src),
		StartArg:     uint32(cmd.start_arg),
		ScanBeginSrc: daq.TriggerSource(cmd.scan_begin_src),
		ScanBeginArg: uint32(cmd.scan_begin_arg),
		ConvertSrc:   daq.TriggerSource(cmd.convert_src),
		ConvertArg:   uint32(cmd.convert_arg),
		ScanEndSrc:   daq.TriggerSource(cmd.scan_end_src),
		ScanEndArg:   uint32(cmd.scan_end_arg),
		StopSrc:      daq.TriggerSource(cmd.stop_src),
		StopArg:      uint32(cmd.stop_arg),
	}
}

func commandToC(cmd *daq.Command, c *C.comedi_cmd, chanlist []C.uint) {
	c.subdev = C.uint(cmd.Subdevice)
	c.start_src = C.uint(cmd.StartSrc)
	c.start_arg = C.uint(cmd.StartArg)
	c.scan_begin_src = C.uint(cmd.ScanBeginSrc)
	c.scan_begin_arg = C.uint(cmd.ScanBeginArg)
	c.convert_src = C.uint(cmd.ConvertSrc)
	c.convert_arg = C.uint(cmd.ConvertArg)
	c.scan_end_src = C.uint(cmd.ScanEndSrc)
	c.scan_end_arg = C.uint(cmd.ScanEndArg)
	c.stop_src = C.uint(cmd.StopSrc)
	c.stop_arg = C.uint(cmd.StopArg)
	for i, spec := range cmd.ChanList {
		chanlist[i] = C.uint(spec.Pack())
	}
	if len(chanlist) > 0 {
		c.chanlist = &chanlist[0]
	}
	c.chanlist_len = C.uint(len(cmd.ChanList))
}

// GenericTimedCommand asks comedilib for a stock periodic sampling command.
func (d *Device) GenericTimedCommand(subdevice, nchan int, scanPeriodNS uint32) (*daq.Command, error) {
	var cmd C.comedi_cmd
	ret := C.comedi_get_cmd_generic_timed(d.dev, C.uint(subdevice), &cmd, C.uint(nchan), C.uint(scanPeriodNS))
	if ret < 0 {
		return nil, fmt.Errorf("comedi_get_cmd_generic_timed: %s", lastError())
	}
	return commandFromC(&cmd), nil
}

// TestCommand runs comedi_command_test, copying any repairs the driver made
// back into cmd.
func (d *Device) TestCommand(cmd *daq.Command) (int, error) {
	var c C.comedi_cmd
	chanlist := make([]C.uint, len(cmd.ChanList))
	commandToC(cmd, &c, chanlist)
	ret := C.comedi_command_test(d.dev, &c)
	if ret < 0 {
		if C.comedi_errno() == C.EIO {
			return 0, fmt.Errorf("%w (subdevice %d)", daq.ErrStreamingUnsupported, cmd.Subdevice)
		}
		return 0, fmt.Errorf("comedi_command_test: %s", lastError())
	}
	repaired := commandFromC(&c)
	repaired.ChanList = cmd.ChanList
	*cmd = *repaired
	return int(ret), nil
}

// RunCommand installs the command; the board starts producing data.
func (d *Device) RunCommand(cmd *daq.Command) error {
	var c C.comedi_cmd
	chanlist := make([]C.uint, len(cmd.ChanList))
	commandToC(cmd, &c, chanlist)
	if ret := C.comedi_command(d.dev, &c); ret < 0 {
		return fmt.Errorf("comedi_command: %s", lastError())
	}
	return nil
}

// HardcalConverter queries the board's hardware calibration for one
// subdevice/channel/range and returns it as a polynomial.
func (d *Device) HardcalConverter(subdevice, channel, rng int) (calib.Polynomial, error) {
	var poly C.comedi_polynomial_t
	ret := C.comedi_get_hardcal_converter(d.dev, C.uint(subdevice), C.uint(channel), C.uint(rng),
		C.COMEDI_TO_PHYSICAL, &poly)
	if ret < 0 {
		return calib.Polynomial{}, fmt.Errorf("comedi_get_hardcal_converter: %s", lastError())
	}
	order := int(poly.order)
	coef := make([]float64, order+1)
	for i := 0; i <= order; i++ {
		coef[i] = float64(poly.coefficients[i])
	}
	return calib.Polynomial{
		Origin:       float64(poly.expansion_origin),
		Coefficients: coef,
	}, nil
}

// BoardName returns the board name.
func (d *Device) BoardName() string {
	return C.GoString(C.comedi_get_board_name(d.dev))
}

// DriverName returns the kernel driver name.
func (d *Device) DriverName() string {
	return C.GoString(C.comedi_get_driver_name(d.dev))
}

// NSubdevices returns the subdevice count.
func (d *Device) NSubdevices() int {
	return int(C.comedi_get_n_subdevices(d.dev))
}

// SubdeviceType returns the type id of a subdevice.
func (d *Device) SubdeviceType(subdevice int) (int, error) {
	t := C.comedi_get_subdevice_type(d.dev, C.uint(subdevice))
	if t < 0 {
		return 0, fmt.Errorf("comedi_get_subdevice_type: %s", lastError())
	}
	return int(t), nil
}

// NChannels returns the channel count of a subdevice.
func (d *Device) NChannels(subdevice int) (int, error) {
	n := C.comedi_get_n_channels(d.dev, C.uint(subdevice))
	if n < 0 {
		return 0, fmt.Errorf("comedi_get_n_channels: %s", lastError())
	}
	return int(n), nil
}

// NRanges returns the number of gain ranges of a channel.
func (d *Device) NRanges(subdevice, channel int) (int, error) {
	n := C.comedi_get_n_ranges(d.dev, C.uint(subdevice), C.uint(channel))
	if n < 0 {
		return 0, fmt.Errorf("comedi_get_n_ranges: %s", lastError())
	}
	return int(n), nil
}

// RangeInfo returns the physical span of one gain range.
func (d *Device) RangeInfo(subdevice, channel, rng int) (daq.Range, error) {
	info := C.comedi_get_range(d.dev, C.uint(subdevice), C.uint(channel), C.uint(rng))
	if info == nil {
		return daq.Range{}, fmt.Errorf("comedi_get_range: %s", lastError())
	}
	return daq.Range{Min: float64(info.min), Max: float64(info.max)}, nil
}

// Buffer is the memory-mapped view of a subdevice's streaming buffer; it
// satisfies ringbuf.Source.
type Buffer struct {
	dev       *Device
	subdevice int
	window    []byte

	// produced/acked translate the driver's "bytes currently unread"
	// report into the delta semantics of ringbuf.Source
	produced int64
	acked    int64
}

// MapBuffer mmaps the streaming buffer of a subdevice read-only.
func (d *Device) MapBuffer(subdevice int) (*Buffer, error) {
	size, err := d.BufferSize(subdevice)
	if err != nil {
		return nil, err
	}
	fd := int(C.comedi_fileno(d.dev))
	window, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes of %s: %w", size, d.path, err)
	}
	return &Buffer{dev: d, subdevice: subdevice, window: window}, nil
}

// Window returns the mapped window.
func (b *Buffer) Window() []byte { return b.window }

// Contents asks the driver how many new bytes arrived since the previous
// call.  comedilib reports the bytes currently unread, so the delta is
// reconstructed from the mark-read accounting.  A negative driver report
// (board overran its buffer) propagates as a negative count, which the
// ring consumer treats as fatal.
func (b *Buffer) Contents() (int, error) {
	n := C.comedi_get_buffer_contents(b.dev.dev, C.uint(b.subdevice))
	if n < 0 {
		return -1, nil
	}
	total := b.acked + int64(n)
	delta := total - b.produced
	if delta < 0 {
		// the driver's idea of unread data went backwards; data was lost
		return -1, nil
	}
	b.produced = total
	return int(delta), nil
}

// MarkRead releases n consumed bytes back to the driver.
func (b *Buffer) MarkRead(n int) error {
	if ret := C.comedi_mark_buffer_read(b.dev.dev, C.uint(b.subdevice), C.uint(n)); ret < 0 {
		return fmt.Errorf("comedi_mark_buffer_read: %s", lastError())
	}
	b.acked += int64(n)
	return nil
}

// Unmap releases the mapped window.
func (b *Buffer) Unmap() error {
	return unix.Munmap(b.window)
}
