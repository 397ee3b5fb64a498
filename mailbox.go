package actor

import "time"

type envelopeKind int

const (
	envCall envelopeKind = iota
	envCast
	envStop
	envLinkExit
	envTimeout
)

// envelope is a Mailbox entry (§3). Exactly one of the payload-shaped
// fields is meaningful for a given kind.
type envelope struct {
	kind envelopeKind

	// call
	correlationID string
	payload       interface{}
	replyCh       chan callResult
	deadline      time.Time
	cancelled     *int32 // set to 1 by the caller on timeout/cancel

	// cast: payload above is used.

	// stop / linkExit
	reason string
	from   ServerRef

	// timeout
	tag string
}

type callResult struct {
	reply interface{}
	err   error
}

// DefaultMailboxSize is the buffered channel capacity backing a new
// server's mailbox before it blocks producers. The mailbox is logically
// unbounded (§3); the buffer only smooths bursts.
const DefaultMailboxSize = 128

// DefaultCallTimeout is used by Call when the caller does not specify
// one (§4.2).
const DefaultCallTimeout = 5 * time.Second

// DefaultBackpressureTimeout bounds the blocking send Cast and link-exit
// propagation fall back to once a mailbox's buffer is full. It preserves
// per-sender FIFO ordering (§8 property 2): a spawned goroutine racing a
// later, un-buffered send could otherwise deliver out of order.
const DefaultBackpressureTimeout = 5 * time.Second
