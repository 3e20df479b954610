/*Package daq provides the device-facing contracts for streaming acquisition.

A data acquisition card is modeled as a Device: a handle with capability
queries (subdevice flags, buffer size) plus the command machinery used to
start a hardware-timed scan.  The concrete implementations live elsewhere
(package comedi for real hardware, package simdaq for a software device);
everything in this package is expressed against the interfaces so the
streaming core never touches a driver directly.

The flag and trigger constants mirror the comedi kernel interface, which is
the lingua franca for this class of hardware on Linux.
*/
package daq

import "errors"

// SubdeviceFlag is a bitmask describing the capabilities of one subdevice.
type SubdeviceFlag uint32

// Subdevice capability flags.
const (
	// FlagSoftCalibrated indicates the board relies on a software
	// calibration file rather than on-board trim.
	FlagSoftCalibrated SubdeviceFlag = 0x2000

	// FlagGround, FlagCommon, FlagDiff and FlagOther describe the
	// analog reference wirings the subdevice supports.
	FlagGround SubdeviceFlag = 0x00100000
	FlagCommon SubdeviceFlag = 0x00200000
	FlagDiff   SubdeviceFlag = 0x00400000
	FlagOther  SubdeviceFlag = 0x00800000

	// FlagLSample indicates samples are 32 bits wide instead of 16.
	FlagLSample SubdeviceFlag = 0x10000000
)

// BytesPerSample returns the sample stride implied by the subdevice flags.
// The width is fixed for a whole session; mixing widths mid-stream is not a
// thing the hardware can do.
func BytesPerSample(flags SubdeviceFlag) int {
	if flags&FlagLSample != 0 {
		return 4
	}
	return 2
}

// TriggerSource is a bitmask of event sources for a command phase.  A
// device's test routine narrows an over-specified mask by ANDing it with
// the sources it supports.
type TriggerSource uint32

// Trigger sources, one bit each.
const (
	TrigNone   TriggerSource = 0x0001
	TrigNow    TriggerSource = 0x0002
	TrigFollow TriggerSource = 0x0004
	TrigTime   TriggerSource = 0x0008
	TrigTimer  TriggerSource = 0x0010
	TrigCount  TriggerSource = 0x0020
	TrigExt    TriggerSource = 0x0040
	TrigInt    TriggerSource = 0x0080
	TrigOther  TriggerSource = 0x0100
)

// Analog reference ids, matching the -a flag of the CLI.
const (
	ARefGround = 0
	ARefCommon = 1
	ARefDiff   = 2
	ARefOther  = 3
)

// Subdevice types as reported by Introspector.SubdeviceType.
const (
	SubdUnused = iota
	SubdAI
	SubdAO
	SubdDI
	SubdDO
	SubdDIO
	SubdCounter
	SubdTimer
	SubdMemory
	SubdCalib
	SubdProc
	SubdSerial
	SubdPWM
)

// ChanSpec is one entry of a command channel list: which channel to sample,
// with which gain range and analog reference.
type ChanSpec struct {
	Channel int
	Range   int
	ARef    int
}

// Pack encodes the spec the way the kernel interface does (CR_PACK).
func (c ChanSpec) Pack() uint32 {
	return uint32(c.Channel&0xffff) | uint32(c.Range&0xff)<<16 | uint32(c.ARef&0x3)<<24
}

// Command is a streaming acquisition command descriptor.  It is produced by
// PrepareTimedCommand and must pass DoubleCheck before being installed on
// the device with RunCommand.
type Command struct {
	Subdevice int

	StartSrc TriggerSource
	StartArg uint32

	// ScanBeginArg is the scan period in nanoseconds.  After a
	// successful DoubleCheck it is the authoritative period; the
	// requested frequency is only advisory.
	ScanBeginSrc TriggerSource
	ScanBeginArg uint32

	ConvertSrc TriggerSource
	ConvertArg uint32

	ScanEndSrc TriggerSource
	ScanEndArg uint32

	// StopSrc is TrigCount with StopArg = number of scans, or TrigNone
	// for continuous capture.
	StopSrc TriggerSource
	StopArg uint32

	ChanList []ChanSpec
}

// Device is an opened acquisition card.  Implementations are expected to be
// used from a single goroutine; the streaming core is strictly
// single-consumer.
type Device interface {
	// SubdeviceFlags returns the capability flags for a subdevice.
	SubdeviceFlags(subdevice int) (SubdeviceFlag, error)

	// BufferSize returns the size in bytes of the driver's circular
	// buffer for a subdevice.  This is the size of the mapped window.
	BufferSize(subdevice int) (int, error)

	// GenericTimedCommand asks the driver for a stock command that
	// periodically samples nchan channels at the given scan period.
	GenericTimedCommand(subdevice, nchan int, scanPeriodNS uint32) (*Command, error)

	// TestCommand validates cmd against the hardware, repairing what it
	// can in place: invalid trigger sources are bitwise narrowed and
	// out-of-range arguments clamped to the nearest valid value.  The
	// return code is zero only if nothing had to be adjusted.
	TestCommand(cmd *Command) (int, error)

	// RunCommand installs the command and starts the acquisition.  The
	// device produces data asynchronously from this point on.
	RunCommand(cmd *Command) error

	// Close releases the device.
	Close() error
}

// Range describes one gain range of a channel in physical units.
type Range struct {
	Min float64
	Max float64
}

// Introspector is an optional interface a Device may satisfy to support the
// info subcommand.  Implementations that cannot answer these queries simply
// do not implement it.
type Introspector interface {
	BoardName() string
	DriverName() string
	NSubdevices() int
	SubdeviceType(subdevice int) (int, error)
	NChannels(subdevice int) (int, error)
	NRanges(subdevice, channel int) (int, error)
	RangeInfo(subdevice, channel, rng int) (Range, error)
}

// Errors shared across device implementations.
var (
	// ErrStreamingUnsupported is returned by TestCommand when the
	// subdevice does not support streaming commands at all.
	ErrStreamingUnsupported = errors.New("subdevice does not support streaming commands")

	// ErrCommandUnsatisfiable is returned by DoubleCheck when the test
	// routine is still adjusting the command on its second pass.
	ErrCommandUnsatisfiable = errors.New("device cannot satisfy the requested command")
)
