package daq

import (
	"fmt"
	"math"
)

// MaxChannels bounds the channel list length; it matches the fixed channel
// list arrays used by the drivers.
const MaxChannels = 256

// Config holds the resolved acquisition options.  It is assembled once by
// the CLI layer (flags merged over the YAML config file) and treated as
// immutable afterward.
type Config struct {
	// Device is the device file, e.g. /dev/comedi0, or "sim" for the
	// built-in simulated card.
	Device string `yaml:"device" koanf:"device"`

	// Subdevice selects the streaming subdevice on the card.
	Subdevice int `yaml:"subdevice" koanf:"subdevice"`

	// Channels is the ordered list of channels in each scan.
	Channels []int `yaml:"channels" koanf:"channels"`

	// ARef is the analog reference id (ARefGround and friends).
	ARef int `yaml:"aref" koanf:"aref"`

	// Range is the gain range id.
	Range int `yaml:"range" koanf:"range"`

	// Frequency is the requested scan rate in Hz.  The tested command's
	// period is authoritative; this is a request.
	Frequency float64 `yaml:"frequency" koanf:"frequency"`

	// NScan stops the acquisition after this many scans; zero means
	// capture continuously.
	NScan int `yaml:"nscan" koanf:"nscan"`

	// Integrate averages this many consecutive scans into each output
	// row.  One means every scan produces a row.
	Integrate int `yaml:"integrate" koanf:"integrate"`

	// FullTime emits absolute (wall-clock) timestamps instead of
	// seconds since the start of the acquisition.
	FullTime bool `yaml:"fulltime" koanf:"fulltime"`

	// Verbose emits ring buffer cursor diagnostics on stderr.
	Verbose bool `yaml:"verbose" koanf:"verbose"`
}

// DefaultConfig mirrors the defaults of the classic comedi acquisition
// utilities: channel 0 of subdevice 0 at 10 kHz, ground referenced, first
// range, no averaging, no scan limit.
func DefaultConfig() Config {
	return Config{
		Device:    "/dev/comedi0",
		Subdevice: 0,
		Channels:  []int{0},
		ARef:      ARefGround,
		Range:     0,
		Frequency: 10000,
		NScan:     0,
		Integrate: 1,
	}
}

// Validate returns a descriptive error if the configuration cannot produce
// a well-formed command.
func (c Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("channel list is empty")
	}
	if len(c.Channels) > MaxChannels {
		return fmt.Errorf("channel list has %d entries, max is %d", len(c.Channels), MaxChannels)
	}
	for _, ch := range c.Channels {
		if ch < 0 {
			return fmt.Errorf("channel %d is negative", ch)
		}
	}
	if c.Subdevice < 0 {
		return fmt.Errorf("subdevice %d is negative", c.Subdevice)
	}
	if !(c.Frequency > 0) {
		return fmt.Errorf("frequency must be positive, got %g", c.Frequency)
	}
	if c.NScan < 0 {
		return fmt.Errorf("scan count must be >= 0, got %d", c.NScan)
	}
	if c.Integrate < 1 {
		return fmt.Errorf("integration factor must be >= 1, got %d", c.Integrate)
	}
	return nil
}

// ScanPeriodNS converts the requested frequency to a scan period in
// nanoseconds, rounded to the nearest integer.
func (c Config) ScanPeriodNS() uint32 {
	return uint32(math.Round(1e9 / c.Frequency))
}

// ChanList expands the channel indices into full ChanSpec entries with the
// configured range and reference.
func (c Config) ChanList() []ChanSpec {
	out := make([]ChanSpec, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = ChanSpec{Channel: ch, Range: c.Range, ARef: c.ARef}
	}
	return out
}
