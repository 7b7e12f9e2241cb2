package endpoint

import (
	"fmt"
	"net"
	"strings"
)

const (
	// DefaultRecvBufSize and DefaultSendBufSize size the kernel socket
	// buffers generously: RTMFP's retransmission and NACK bookkeeping
	// already absorb reordering, so the goal here is just to avoid
	// kernel-level drops under burst load.
	DefaultRecvBufSize = 2 * 1024 * 1024
	DefaultSendBufSize = 2 * 1024 * 1024
)

// SocketConfig holds the socket buffer sizes applied at Listen time.
// Zero values fall back to the defaults.
type SocketConfig struct {
	RecvBufSize int
	SendBufSize int
}

// DefaultSocketConfig returns the recommended defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{RecvBufSize: DefaultRecvBufSize, SendBufSize: DefaultSendBufSize}
}

// OptimizationEntry records one socket-tuning attempt's outcome.
type OptimizationEntry struct {
	Name    string
	Applied bool
	Detail  string
	Err     error
}

// OptimizationReport collects every attempt ApplySocketOptions made.
type OptimizationReport struct {
	Entries []OptimizationEntry
}

func (r *OptimizationReport) String() string {
	var b strings.Builder
	b.WriteString("[endpoint] socket tuning:")
	for _, e := range r.Entries {
		switch {
		case e.Applied:
			fmt.Fprintf(&b, "\n  %-12s [ok] %s", e.Name, e.Detail)
		case e.Err != nil:
			fmt.Fprintf(&b, "\n  %-12s [failed: %v]", e.Name, e.Err)
		default:
			fmt.Fprintf(&b, "\n  %-12s [skipped]", e.Name)
		}
	}
	return b.String()
}

// ApplySocketOptions sets the socket's receive/send buffer sizes,
// trying each independently so one failure doesn't block the other.
func ApplySocketOptions(conn *net.UDPConn, cfg SocketConfig) *OptimizationReport {
	report := &OptimizationReport{}

	recvBuf := cfg.RecvBufSize
	if recvBuf <= 0 {
		recvBuf = DefaultRecvBufSize
	}
	if err := conn.SetReadBuffer(recvBuf); err != nil {
		report.Entries = append(report.Entries, OptimizationEntry{Name: "SO_RCVBUF", Err: err})
	} else {
		actual := getSocketBufSize(conn, true)
		report.Entries = append(report.Entries, OptimizationEntry{
			Name: "SO_RCVBUF", Applied: true,
			Detail: fmt.Sprintf("requested=%d actual=%d", recvBuf, actual),
		})
	}

	sendBuf := cfg.SendBufSize
	if sendBuf <= 0 {
		sendBuf = DefaultSendBufSize
	}
	if err := conn.SetWriteBuffer(sendBuf); err != nil {
		report.Entries = append(report.Entries, OptimizationEntry{Name: "SO_SNDBUF", Err: err})
	} else {
		actual := getSocketBufSize(conn, false)
		report.Entries = append(report.Entries, OptimizationEntry{
			Name: "SO_SNDBUF", Applied: true,
			Detail: fmt.Sprintf("requested=%d actual=%d", sendBuf, actual),
		})
	}

	return report
}
