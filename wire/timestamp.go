package wire

import "time"

// TimestampUnit is the granularity of a session packet's local-time
// and echo-time header fields: one tick every 4ms, the classic RTMFP
// resolution that lets a 16-bit field span several minutes before it
// wraps.
const TimestampUnit = 4 * time.Millisecond

// Timestamp reduces now to the 16-bit, TimestampUnit-granularity value
// carried by a session packet's local-time (and, when present,
// echo-time) header field.
func Timestamp(now time.Time) uint16 {
	return uint16(now.UnixNano() / int64(TimestampUnit))
}

// AppendTimestamp appends t to b as a 2-byte big-endian value.
func AppendTimestamp(b []byte, t uint16) []byte {
	return append(b, byte(t>>8), byte(t))
}

// ReadTimestamp reads a 2-byte big-endian timestamp off the front of
// b, returning the value and the remaining bytes.
func ReadTimestamp(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, ErrMalformedPacket
	}
	return uint16(b[0])<<8 | uint16(b[1]), b[2:], nil
}
