package wire

import "encoding/binary"

// checksum computes RTMFP's 16-bit integrity sum over b: big-endian
// 16-bit words added with end-around carry (the same one's-complement
// running sum used by IP/UDP checksums, but without the final
// complement step — RTMFP compares the raw sum, it does not invert it).
func checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return uint16(sum)
}
