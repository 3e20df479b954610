/*Package calib converts raw sample integers to physical units.

The streaming core only sees the Converter interface; whether the numbers
behind it came from on-board trim (hardware calibration) or a calibration
file written by a calibration utility (software calibration) is resolved
once at session setup and is invisible afterward.
*/
package calib

import (
	"errors"
	"fmt"
)

// Converter maps a raw sample to a physical value (volts, usually).
type Converter interface {
	ToPhysical(raw uint32) float64
}

// Polynomial is a calibration polynomial evaluated about an expansion
// origin.  Both hardware and software calibration reduce to this form; a
// plain linear range mapping is the order-1 special case.
type Polynomial struct {
	// Origin is the expansion origin; the polynomial is evaluated in
	// powers of (raw - Origin).
	Origin float64 `yaml:"origin"`

	// Coefficients are ordered from the constant term up.
	Coefficients []float64 `yaml:"coefficients"`
}

// ToPhysical evaluates the polynomial at raw (Horner form).
func (p Polynomial) ToPhysical(raw uint32) float64 {
	x := float64(raw) - p.Origin
	out := 0.0
	for i := len(p.Coefficients) - 1; i >= 0; i-- {
		out = out*x + p.Coefficients[i]
	}
	return out
}

// LinearRange builds the order-1 polynomial that maps the full code range
// [0, maxCode] onto [min, max] physical units.  Hardware-calibrated boards
// without per-channel trim use exactly this.
func LinearRange(min, max float64, maxCode uint32) Polynomial {
	return Polynomial{
		Origin:       0,
		Coefficients: []float64{min, (max - min) / float64(maxCode)},
	}
}

// Identity passes raw values through unchanged.  Useful for tests and for
// boards where raw counts are the unit of interest.
type Identity struct{}

// ToPhysical returns raw as a float64.
func (Identity) ToPhysical(raw uint32) float64 { return float64(raw) }

// HardwareCalibrator is satisfied by devices whose calibration lives on the
// board and can be queried directly.
type HardwareCalibrator interface {
	HardcalConverter(subdevice, channel, rng int) (Polynomial, error)
}

// ErrNoConverter is returned when neither calibration source can supply a
// polynomial for the requested subdevice/channel/range.
var ErrNoConverter = errors.New("no calibration converter available")

// Resolve picks the converter for one subdevice/channel/range.  soft should
// be true when the subdevice carries the soft-calibrated capability flag;
// in that case path names the calibration file to parse.  Otherwise the
// device itself is asked for its hardware calibration.
func Resolve(soft bool, hw HardwareCalibrator, path string, subdevice, channel, rng int) (Converter, error) {
	if soft {
		f, err := LoadSoftCal(path)
		if err != nil {
			return nil, fmt.Errorf("parse calibration file: %w", err)
		}
		conv, err := f.Converter(subdevice, channel, rng)
		if err != nil {
			return nil, err
		}
		return conv, nil
	}
	if hw == nil {
		return nil, fmt.Errorf("%w: device is not hardware calibrated and no calibration file given", ErrNoConverter)
	}
	conv, err := hw.HardcalConverter(subdevice, channel, rng)
	if err != nil {
		return nil, fmt.Errorf("hardware calibration: %w", err)
	}
	return conv, nil
}
