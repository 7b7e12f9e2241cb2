// Package session implements the per-peer RTMFP session: the flow and
// writer tables, the sub-message dispatch that drives them, the sender
// that batches outbound messages into datagrams, and the ping/keepalive
// and close lifecycle that ride on top.
package session

import "time"

const (
	// KeepAliveInterval is how long a session waits idle before
	// sending an unprompted KeepAlive.
	KeepAliveInterval = 95 * time.Second

	// MaxMissedKeepAlives is how many KeepAlives in a row can go
	// unanswered before the session fails with a timeout.
	MaxMissedKeepAlives = 11

	// CloseLingerTime is how long a NEAR_CLOSED session waits for
	// quiet before it is torn down for good.
	CloseLingerTime = 90 * time.Second

	// MinRetransmitInterval is the floor under 2x measured ping used
	// to schedule a writer's retransmit of its oldest unacked stage.
	MinRetransmitInterval = 200 * time.Millisecond
)

// nextRetransmitDelay returns how long a writer should wait with no
// progress before retransmitting its lowest unacked stage, given the
// session's last measured round-trip ping.
func nextRetransmitDelay(ping time.Duration) time.Duration {
	if d := 2 * ping; d > MinRetransmitInterval {
		return d
	}
	return MinRetransmitInterval
}
