package rtmfp

import "time"

// command is one unit of host-requested work, applied by the network
// task. Host-facing methods on Engine that touch sessions build one of
// these and push it onto the engine-wide queue (the read goroutine
// pushes one per inbound datagram too); the connect calls then wait on
// an attached signal. Only the network task ever touches session state.
type command func(e *Engine, now time.Time)
