// Package actor implements the L1 actor runtime described by this
// module: server lifecycle, serialized mailbox dispatch, call/cast
// semantics, the local process registry, the monitor/link graph, and
// the lifecycle event bus. Supervision (package supervisor) and
// distribution (package cluster) are layered on top and depend only on
// the exported surface of this package.
//
// The scheduling model is "parallel workers with per-server
// serialization": every Server owns one goroutine and one mailbox
// channel; callbacks for a given server never run concurrently with
// each other, but different servers run fully in parallel. This
// mirrors the teacher's registrar/Process pair (one goroutine per
// registrar, one channel-based mailbox per process), generalized from
// Erlang-term routing to a Go interface{}-typed Behavior.
package actor
