package daq

import "fmt"

// PrepareTimedCommand builds a command from the configuration the generic
// way: ask the driver for a stock periodic command, then override the parts
// we care about (channel list and stop condition).  Hand-rolling a command
// from scratch works on far fewer boards.
func PrepareTimedCommand(dev Device, cfg Config) (*Command, error) {
	cmd, err := dev.GenericTimedCommand(cfg.Subdevice, len(cfg.Channels), cfg.ScanPeriodNS())
	if err != nil {
		return nil, fmt.Errorf("generic timed command: %w", err)
	}
	cmd.ChanList = cfg.ChanList()
	if cfg.NScan > 0 {
		cmd.StopSrc = TrigCount
		cmd.StopArg = uint32(cfg.NScan)
	} else {
		cmd.StopSrc = TrigNone
		cmd.StopArg = 0
	}
	return cmd, nil
}

// DoubleCheck submits cmd to the device's test routine twice.  The first
// pass may repair both invalid trigger sources (narrowed bitwise) and
// invalid arguments (clamped to the nearest valid value); a well-formed
// command therefore converges by the second pass.  If the second test still
// had to adjust something, the board cannot satisfy the requested
// rate/channel combination and the error wraps ErrCommandUnsatisfiable.
//
// On success the returned value is the tested scan period in nanoseconds.
// This, not the requested frequency, is what timestamps are built from.
func DoubleCheck(dev Device, cmd *Command) (uint32, error) {
	if _, err := dev.TestCommand(cmd); err != nil {
		return 0, fmt.Errorf("first command test: %w", err)
	}
	ret, err := dev.TestCommand(cmd)
	if err != nil {
		return 0, fmt.Errorf("second command test: %w", err)
	}
	if ret != 0 {
		return 0, fmt.Errorf("%w: test still adjusting after two passes (code %d)", ErrCommandUnsatisfiable, ret)
	}
	return cmd.ScanBeginArg, nil
}
