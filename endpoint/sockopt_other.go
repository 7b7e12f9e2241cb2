//go:build !unix

package endpoint

import "net"

func getSocketBufSize(_ *net.UDPConn, _ bool) int { return 0 }
