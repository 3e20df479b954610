package daq

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Opener produces an open Device.  It exists so OpenWithRetry can be used
// with any implementation.
type Opener func() (Device, error)

// OpenWithRetry opens a device with a short exponential backoff.  Drivers
// can report busy for a moment right after module load or a previous
// session's teardown; thrashing them with immediate reopens does not help.
func OpenWithRetry(open Opener) (Device, error) {
	var dev Device
	op := func() error {
		d, err := open()
		if err != nil {
			return err
		}
		dev = d
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, err
	}
	return dev, nil
}
