// Package endpoint binds one UDP socket and turns its datagrams into
// the marker-tagged packets the registry and handshaker expect, and
// vice versa for outbound traffic.
package endpoint

import (
	"fmt"
	"net"

	"rtmfp/wire"
)

// MaxDatagramSize is the largest UDP payload this endpoint will read
// in one call; RTMFP's own path MTU assumptions stay well under this.
const MaxDatagramSize = 2048

// Endpoint owns one bound UDP socket. It implements both
// handshake.PacketSender and session.Endpoint, since both just need
// SendTo, letting one socket serve the handshaker and every live
// session without adapters.
type Endpoint struct {
	conn *net.UDPConn
	cfg  SocketConfig
}

// Listen binds addr ("" for any interface) on port and applies cfg's
// socket buffer tuning.
func Listen(addr string, port int, cfg SocketConfig) (*Endpoint, error) {
	udpAddr := &net.UDPAddr{IP: net.ParseIP(addr), Port: port}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("endpoint: listen: %w", err)
	}
	report := ApplySocketOptions(conn, cfg)
	_ = report // callers that want the tuning detail can call ApplySocketOptions themselves
	return &Endpoint{conn: conn, cfg: cfg}, nil
}

// LocalAddr reports the bound local address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo writes payload to addr. Short writes can't happen on UDP; any
// error here means the datagram was dropped, matching RTMFP's
// fire-and-forget transport model (loss is handled by retransmission
// above this layer, not here).
func (e *Endpoint) SendTo(addr *net.UDPAddr, payload []byte) error {
	_, err := e.conn.WriteToUDP(payload, addr)
	return err
}

// PacketHandler receives one decoded inbound packet: the source
// address, the data marker byte, and everything after it.
type PacketHandler func(from *net.UDPAddr, marker byte, body []byte)

// ReadLoop blocks reading datagrams until a read fails with anything
// other than a timeout (closing the socket is one such failure), and
// returns that error. Each non-empty datagram is forwarded to handle. It never decrypts: that is the registry's and handshaker's
// job, since which cipher applies depends on routing the marker and
// (for session traffic) the session tag decide first.
func (e *Endpoint) ReadLoop(handle PacketHandler) error {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		if n < 1 {
			continue
		}
		marker := buf[0]
		body := make([]byte, n-1)
		copy(body, buf[1:n])
		handle(from, marker, body)
	}
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// IsSessionMarker reports whether marker identifies an established
// session's data packet, as opposed to a handshake packet.
func IsSessionMarker(marker byte) bool {
	switch marker {
	case wire.MarkerAMF, wire.MarkerRaw, wire.MarkerWithEcho:
		return true
	default:
		return false
	}
}
