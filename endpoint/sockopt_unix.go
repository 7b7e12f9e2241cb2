//go:build unix

package endpoint

import (
	"net"

	"golang.org/x/sys/unix"
)

// getSocketBufSize reads back the kernel's actual SO_RCVBUF/SO_SNDBUF
// value, which is usually double what was requested (the kernel
// reserves bookkeeping overhead on top).
func getSocketBufSize(conn *net.UDPConn, recv bool) int {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0
	}
	opt := unix.SO_SNDBUF
	if recv {
		opt = unix.SO_RCVBUF
	}
	var val int
	_ = raw.Control(func(fd uintptr) {
		val, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	})
	return val
}
