package calib

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// SoftCalEntry is one calibration record from a software calibration file.
// Empty Channels or Ranges lists mean the entry applies to all of them.
type SoftCalEntry struct {
	Subdevice  int        `yaml:"subdevice"`
	Channels   []int      `yaml:"channels"`
	Ranges     []int      `yaml:"ranges"`
	Polynomial Polynomial `yaml:"polynomial"`
}

// SoftCalFile is a parsed software calibration file, as produced by a board
// calibration utility.
type SoftCalFile struct {
	Board   string         `yaml:"board"`
	Entries []SoftCalEntry `yaml:"entries"`
}

// LoadSoftCal parses the calibration file at path.
func LoadSoftCal(path string) (*SoftCalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := &SoftCalFile{}
	if err := yaml.NewDecoder(f).Decode(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Converter returns the polynomial for a subdevice/channel/range triple.
// The first matching entry wins, in file order.
func (f *SoftCalFile) Converter(subdevice, channel, rng int) (Polynomial, error) {
	for _, e := range f.Entries {
		if e.Subdevice != subdevice {
			continue
		}
		if !matches(e.Channels, channel) || !matches(e.Ranges, rng) {
			continue
		}
		if len(e.Polynomial.Coefficients) == 0 {
			return Polynomial{}, fmt.Errorf("calibration entry for subdevice %d has no coefficients", subdevice)
		}
		return e.Polynomial, nil
	}
	return Polynomial{}, fmt.Errorf("%w: subdevice %d channel %d range %d", ErrNoConverter, subdevice, channel, rng)
}

func matches(list []int, v int) bool {
	if len(list) == 0 {
		return true
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
