package stream

import "encoding/binary"

// DecodeSample reads one raw sample from b as a little-endian unsigned
// integer.  b must be exactly 2 or 4 bytes long; the width is fixed for a
// whole session by the subdevice flags (see daq.BytesPerSample) and the
// consumer steps the byte stream at exactly that stride.
func DecodeSample(b []byte) uint32 {
	if len(b) == 4 {
		return binary.LittleEndian.Uint32(b)
	}
	return uint32(binary.LittleEndian.Uint16(b))
}
